/*

This file contains the CandyShop registry: it creates cans, keeps them in creation order and
administers them on behalf of its owner.

*/

package candyshop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/elys-network/candyshop/internal/logger"
	"github.com/elys-network/candyshop/internal/types"
	"github.com/elys-network/candyshop/internal/vault"
)

var (
	ErrPermission = fmt.Errorf("candyshop: %w", types.ErrPermission)
	ErrUnknownCan = errors.New("candyshop: unknown can")
	ErrShopClosed = errors.New("candyshop: shop is closed")
)

// Config holds the dependencies of a shop.
type Config struct {
	Address  common.Address
	Owner    common.Address
	Chain    vault.Chain
	Store    vault.Store
	Recorder vault.Recorder
	Clock    clockwork.Clock
}

// Shop is the registry of cans. It is safe for concurrent use.
type Shop struct {
	mu sync.RWMutex

	address common.Address
	owner   common.Address
	closed  bool
	nonce   uint64

	cans      []*vault.Can
	byAddress map[common.Address]*vault.Can

	chain    vault.Chain
	store    vault.Store
	recorder vault.Recorder
	clock    clockwork.Clock
	logger   zerolog.Logger
}

// New returns an empty shop owned by cfg.Owner.
func New(cfg Config) (*Shop, error) {
	if cfg.Chain == nil {
		return nil, errors.New("candyshop: chain is required")
	}
	if cfg.Address == (common.Address{}) || cfg.Owner == (common.Address{}) {
		return nil, errors.New("candyshop: address and owner are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	s := &Shop{
		address:   cfg.Address,
		owner:     cfg.Owner,
		byAddress: make(map[common.Address]*vault.Can),
		chain:     cfg.Chain,
		store:     cfg.Store,
		recorder:  cfg.Recorder,
		clock:     cfg.Clock,
		logger:    logger.GetForComponent("candyshop").With().Str("shop", cfg.Address.Hex()).Logger(),
	}
	s.logger.Info().Str("owner", cfg.Owner.Hex()).Msg("CandyShop opened")
	return s, nil
}

// Address returns the account of the shop.
func (s *Shop) Address() common.Address {
	return s.address
}

// Owner returns the current owner.
func (s *Shop) Owner() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// onlyOwner must be called with s.mu held.
func (s *Shop) onlyOwner(caller common.Address) error {
	if s.closed {
		return ErrShopClosed
	}
	if caller != s.owner {
		return ErrPermission
	}
	return nil
}

func (s *Shop) canConfig(addr common.Address, index int, owner common.Address, params types.CanParams) vault.Config {
	return vault.Config{
		Address:     addr,
		Index:       index,
		Owner:       owner,
		FeeReceiver: owner,
		Factory:     s.address,
		Params:      params,
		Bank:        s.chain,
		Liquidity:   s.chain,
		Farm:        s.chain,
		Journal:     s.chain,
		Store:       s.store,
		Recorder:    s.recorder,
		Clock:       s.clock,
	}
}

// CreateCan opens a can for params. The caller becomes its owner and fee receiver.
func (s *Shop) CreateCan(ctx context.Context, caller common.Address, params types.CanParams) (*vault.Can, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.onlyOwner(caller); err != nil {
		return nil, err
	}

	addr := crypto.CreateAddress(s.address, s.nonce)
	can, err := vault.New(s.canConfig(addr, len(s.cans), caller, params))
	if err != nil {
		return nil, fmt.Errorf("failed to create can: %w", err)
	}
	if s.store != nil {
		if err := s.store.SaveCan(ctx, can.Snapshot()); err != nil {
			return nil, fmt.Errorf("failed to persist can %s: %w", addr.Hex(), err)
		}
	}
	s.nonce++
	s.cans = append(s.cans, can)
	s.byAddress[addr] = can

	s.logger.Info().
		Str("can", addr.Hex()).
		Int("index", can.Index()).
		Uint64("farmId", params.FarmID).
		Str("lpDenom", params.LiquidityDenom).
		Str("providingDenom", params.ProvidingDenom).
		Msg("Can created")
	return can, nil
}

// RestoreCans reopens persisted cans in the given order, e.g. after a restart.
func (s *Shop) RestoreCans(snaps []types.CanSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShopClosed
	}
	for _, snap := range snaps {
		if _, ok := s.byAddress[snap.Address]; ok {
			continue
		}
		can, err := vault.Restore(s.canConfig(snap.Address, len(s.cans), snap.Owner, snap.Info.Params()), snap)
		if err != nil {
			return fmt.Errorf("failed to restore can %s: %w", snap.Address.Hex(), err)
		}
		s.cans = append(s.cans, can)
		s.byAddress[snap.Address] = can
		s.nonce++
	}
	s.logger.Info().Int("cans", len(s.cans)).Msg("Cans restored")
	return nil
}

// AllCans returns the can created i-th.
func (s *Shop) AllCans(i int) (*vault.Can, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.cans) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrUnknownCan, i, len(s.cans))
	}
	return s.cans[i], nil
}

// CanLength returns the number of cans.
func (s *Shop) CanLength() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cans)
}

// Cans returns every can in creation order.
func (s *Shop) Cans() []*vault.Can {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*vault.Can, len(s.cans))
	copy(out, s.cans)
	return out
}

// CanByAddress looks a can up by its account.
func (s *Shop) CanByAddress(addr common.Address) (*vault.Can, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	can, ok := s.byAddress[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCan, addr.Hex())
	}
	return can, nil
}

// TransferOwnership hands the shop to newOwner.
func (s *Shop) TransferOwnership(caller, newOwner common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.onlyOwner(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return errors.New("candyshop: new owner is zero")
	}
	s.owner = newOwner
	s.logger.Info().Str("owner", newOwner.Hex()).Msg("Ownership transferred")
	return nil
}

// EmergencyTakeout sends tokens held by the shop itself to to.
func (s *Shop) EmergencyTakeout(ctx context.Context, caller common.Address, denom string, to common.Address, amount sdkmath.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.onlyOwner(caller); err != nil {
		return err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: takeout amount must be positive", vault.ErrInvalidAmount)
	}
	coin := sdktypes.NewCoin(denom, amount)
	if err := s.chain.Transfer(ctx, s.address, to, coin); err != nil {
		return fmt.Errorf("failed to take out %s: %w", coin, err)
	}
	s.logger.Warn().Str("coin", coin.String()).Str("to", to.Hex()).Msg("Emergency takeout")
	return nil
}

// managed returns a can the caller may administer through the shop.
func (s *Shop) managed(caller, addr common.Address) (*vault.Can, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.onlyOwner(caller); err != nil {
		return nil, err
	}
	can, ok := s.byAddress[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCan, addr.Hex())
	}
	return can, nil
}

// SetCanFee updates the claim fee of a can.
func (s *Shop) SetCanFee(ctx context.Context, caller, can common.Address, bps uint64) error {
	c, err := s.managed(caller, can)
	if err != nil {
		return err
	}
	return c.SetFee(ctx, s.address, bps)
}

// SetCanFeeReceiver updates the fee receiver of a can.
func (s *Shop) SetCanFeeReceiver(ctx context.Context, caller, can, receiver common.Address) error {
	c, err := s.managed(caller, can)
	if err != nil {
		return err
	}
	return c.SetFeeReceiver(ctx, s.address, receiver)
}

// SetCanRevertFlag pauses or resumes a can.
func (s *Shop) SetCanRevertFlag(ctx context.Context, caller, can common.Address, paused bool) error {
	c, err := s.managed(caller, can)
	if err != nil {
		return err
	}
	return c.SetRevertFlag(ctx, s.address, paused)
}

// CanEmergencyTakeout recovers tokens held by a can.
func (s *Shop) CanEmergencyTakeout(ctx context.Context, caller, can, to common.Address, coin sdktypes.Coin) error {
	c, err := s.managed(caller, can)
	if err != nil {
		return err
	}
	_, err = c.EmergencyTakeout(ctx, s.address, to, coin)
	return err
}

// CanEmergencySendToFarming stakes liquidity a can holds unstaked.
func (s *Shop) CanEmergencySendToFarming(ctx context.Context, caller, can common.Address, liquidity sdkmath.Int) error {
	c, err := s.managed(caller, can)
	if err != nil {
		return err
	}
	_, err = c.EmergencySendToFarming(ctx, s.address, liquidity)
	return err
}

// CanEmergencyGetFromFarming unstakes liquidity into a can's custody.
func (s *Shop) CanEmergencyGetFromFarming(ctx context.Context, caller, can common.Address, liquidity sdkmath.Int) error {
	c, err := s.managed(caller, can)
	if err != nil {
		return err
	}
	_, err = c.EmergencyGetFromFarming(ctx, s.address, liquidity)
	return err
}

// Close stops the shop; every later mutation fails with ErrShopClosed. Reads
// keep working.
func (s *Shop) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info().Int("cans", len(s.cans)).Msg("CandyShop closed")
	return nil
}
