package vault

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/candyshop/internal/types"
	"github.com/elys-network/candyshop/internal/utils"
)

func (c *Can) authorize(caller common.Address) error {
	if caller == c.owner || (c.factory != common.Address{} && caller == c.factory) {
		return nil
	}
	return fmt.Errorf("can: %w", types.ErrPermission)
}

// administer applies a settings change and persists it, undoing the change
// when it cannot be stored.
func (c *Can) administer(ctx context.Context, caller common.Address, change func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.authorize(caller); err != nil {
		return err
	}

	owner, feeReceiver, revertFlag := c.owner, c.feeReceiver, c.revertFlag
	saved := c.ledger.Clone()
	if err := change(); err != nil {
		return err
	}
	if err := c.store.SaveCan(ctx, c.snapshotLocked(nil)); err != nil {
		c.owner, c.feeReceiver, c.revertFlag = owner, feeReceiver, revertFlag
		c.ledger = saved
		return fmt.Errorf("failed to persist can: %w", err)
	}
	return nil
}

// SetFee updates the claim fee in basis points.
func (c *Can) SetFee(ctx context.Context, caller common.Address, bps uint64) error {
	if bps > utils.BasisPointsDenominator {
		return fmt.Errorf("%w: %d", ErrInvalidFee, bps)
	}
	return c.administer(ctx, caller, func() error {
		c.ledger.SetFee(bps)
		c.logger.Info().Uint64("fee", bps).Msg("Fee updated")
		return nil
	})
}

// SetFeeReceiver updates the account collecting claim fees.
func (c *Can) SetFeeReceiver(ctx context.Context, caller, receiver common.Address) error {
	if receiver == (common.Address{}) {
		return fmt.Errorf("%w: fee receiver is zero", ErrInvalidParams)
	}
	return c.administer(ctx, caller, func() error {
		c.feeReceiver = receiver
		c.logger.Info().Str("feeReceiver", receiver.Hex()).Msg("Fee receiver updated")
		return nil
	})
}

// SetRevertFlag pauses or resumes mint and burn.
func (c *Can) SetRevertFlag(ctx context.Context, caller common.Address, paused bool) error {
	return c.administer(ctx, caller, func() error {
		c.revertFlag = paused
		c.logger.Info().Bool("revertFlag", paused).Msg("Revert flag updated")
		return nil
	})
}

// TransferOwnership hands administration of the can to newOwner.
func (c *Can) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return fmt.Errorf("%w: new owner is zero", ErrInvalidParams)
	}
	return c.administer(ctx, caller, func() error {
		c.owner = newOwner
		c.logger.Info().Str("owner", newOwner.Hex()).Msg("Ownership transferred")
		return nil
	})
}

// EmergencyTakeout sends coin held by the can to to, bypassing the ledger.
func (c *Can) EmergencyTakeout(ctx context.Context, caller, to common.Address, coin sdktypes.Coin) (*types.Receipt, error) {
	if coin.Amount.IsNil() || !coin.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: takeout amount must be positive", ErrInvalidAmount)
	}
	return c.execute(ctx, types.OperationEmergency, caller, to, func(ctx context.Context, r *types.Receipt) error {
		if err := c.authorize(caller); err != nil {
			return err
		}
		if err := c.bank.Transfer(ctx, c.address, to, coin); err != nil {
			return fmt.Errorf("failed to take out %s: %w", coin, err)
		}
		r.Transfers = append(r.Transfers, coin)
		c.logger.Warn().Str("coin", coin.String()).Str("to", to.Hex()).Msg("Emergency takeout")
		return nil
	})
}

// EmergencySendToFarming stakes liquidity shares the can holds unstaked, e.g.
// after EmergencyGetFromFarming. The shares stay counted in TotalLiquidity.
func (c *Can) EmergencySendToFarming(ctx context.Context, caller common.Address, liquidity sdkmath.Int) (*types.Receipt, error) {
	if liquidity.IsNil() || !liquidity.IsPositive() {
		return nil, fmt.Errorf("%w: liquidity must be positive", ErrInvalidAmount)
	}
	return c.execute(ctx, types.OperationEmergency, caller, c.address, func(ctx context.Context, r *types.Receipt) error {
		if err := c.authorize(caller); err != nil {
			return err
		}
		info := c.ledger.Info()
		if err := c.updateVault(ctx, r); err != nil {
			return err
		}
		if err := c.touchFarm(ctx, r, func(ctx context.Context) error {
			return c.farm.Deposit(ctx, info.FarmID, c.address, liquidity)
		}); err != nil {
			return fmt.Errorf("failed to stake %s: %w", liquidity, err)
		}
		r.LiquidityDelta = liquidity
		c.logger.Warn().Str("liquidity", liquidity.String()).Msg("Emergency send to farming")
		return nil
	})
}

// EmergencyGetFromFarming unstakes liquidity shares into the can's own custody
// without breaking them up. Burns fail until they are sent back.
func (c *Can) EmergencyGetFromFarming(ctx context.Context, caller common.Address, liquidity sdkmath.Int) (*types.Receipt, error) {
	if liquidity.IsNil() || !liquidity.IsPositive() {
		return nil, fmt.Errorf("%w: liquidity must be positive", ErrInvalidAmount)
	}
	return c.execute(ctx, types.OperationEmergency, caller, c.address, func(ctx context.Context, r *types.Receipt) error {
		if err := c.authorize(caller); err != nil {
			return err
		}
		info := c.ledger.Info()
		if err := c.updateVault(ctx, r); err != nil {
			return err
		}
		if err := c.touchFarm(ctx, r, func(ctx context.Context) error {
			return c.farm.Withdraw(ctx, info.FarmID, c.address, liquidity)
		}); err != nil {
			return fmt.Errorf("failed to unstake %s: %w", liquidity, err)
		}
		r.LiquidityDelta = liquidity
		c.logger.Warn().Str("liquidity", liquidity.String()).Msg("Emergency get from farming")
		return nil
	})
}
