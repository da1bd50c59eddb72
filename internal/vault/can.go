package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/elys-network/candyshop/internal/ledger"
	"github.com/elys-network/candyshop/internal/logger"
	"github.com/elys-network/candyshop/internal/types"
	"github.com/elys-network/candyshop/internal/utils"
)

// Error definitions for can operations
var (
	ErrInvalidAmount  = errors.New("can: amount is invalid")
	ErrInvalidParams  = errors.New("can: creation parameters are invalid")
	ErrInvalidFee     = errors.New("can: fee exceeds 10000 basis points")
	ErrPaused         = errors.New("can: operations are paused")
	ErrReentrantCall  = errors.New("can: reentrant call")
	ErrMissingBackend = errors.New("can: collaborator is missing")
)

// operationKey marks a context as carrying an in-flight can operation.
type operationKey struct{}

// inFlight returns the can whose operation ctx belongs to.
func inFlight(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(operationKey{}).(common.Address)
	return addr, ok
}

// Config holds everything needed to open a can.
type Config struct {
	Address     common.Address
	Index       int
	Owner       common.Address
	FeeReceiver common.Address
	// Factory may administer the can alongside Owner.
	Factory common.Address
	Params  types.CanParams

	Bank      Bank
	Liquidity LiquidityProvider
	Farm      Farm
	Journal   Journal
	Store     Store
	Recorder  Recorder
	Clock     clockwork.Clock
}

// Can stakes one providing token as farmed liquidity and shares the farm
// reward between its depositors. Every operation is serialised and atomic.
type Can struct {
	mu sync.Mutex

	address common.Address
	index   int
	factory common.Address

	owner       common.Address
	feeReceiver common.Address
	revertFlag  bool

	ledger *ledger.Ledger

	bank     Bank
	lp       LiquidityProvider
	farm     Farm
	journal  Journal
	store    Store
	recorder Recorder
	clock    clockwork.Clock
	logger   zerolog.Logger
}

// New opens an empty can.
func New(cfg Config) (*Can, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return open(cfg, ledger.New(types.NewVaultInfo(cfg.Params)), false), nil
}

// Restore reopens a can from a persisted snapshot holding every user entry.
func Restore(cfg Config, snap types.CanSnapshot) (*Can, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if snap.Address != cfg.Address {
		return nil, fmt.Errorf("%w: snapshot of %s restored as %s", ErrInvalidParams, snap.Address.Hex(), cfg.Address.Hex())
	}
	cfg.Owner = snap.Owner
	cfg.FeeReceiver = snap.FeeReceiver
	return open(cfg, ledger.Restore(snap.Info, snap.Users), snap.RevertFlag), nil
}

func open(cfg Config, l *ledger.Ledger, revertFlag bool) *Can {
	c := &Can{
		address:     cfg.Address,
		index:       cfg.Index,
		factory:     cfg.Factory,
		owner:       cfg.Owner,
		feeReceiver: cfg.FeeReceiver,
		revertFlag:  revertFlag,
		ledger:      l,
		bank:        cfg.Bank,
		lp:          cfg.Liquidity,
		farm:        cfg.Farm,
		journal:     cfg.Journal,
		store:       cfg.Store,
		recorder:    cfg.Recorder,
		clock:       cfg.Clock,
		logger:      logger.GetForComponent("can").With().Str("can", cfg.Address.Hex()).Logger(),
	}
	if c.journal == nil {
		c.journal = nopJournal{}
	}
	if c.store == nil {
		c.store = nopStore{}
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.feeReceiver == (common.Address{}) {
		c.feeReceiver = c.owner
	}
	return c
}

func validateConfig(cfg Config) error {
	var errs []error
	if cfg.Bank == nil || cfg.Liquidity == nil || cfg.Farm == nil {
		errs = append(errs, ErrMissingBackend)
	}
	if cfg.Address == (common.Address{}) {
		errs = append(errs, fmt.Errorf("%w: can address is zero", ErrInvalidParams))
	}
	if cfg.Owner == (common.Address{}) {
		errs = append(errs, fmt.Errorf("%w: owner is zero", ErrInvalidParams))
	}
	if err := ValidateParams(cfg.Params); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateParams checks a creation tuple.
func ValidateParams(p types.CanParams) error {
	var errs []error
	denoms := map[string]string{
		"liquidity": p.LiquidityDenom,
		"providing": p.ProvidingDenom,
		"paired":    p.PairedDenom,
		"reward":    p.RewardDenom,
	}
	seen := make(map[string]string, len(denoms))
	for _, role := range []string{"liquidity", "providing", "paired", "reward"} {
		denom := denoms[role]
		if err := sdktypes.ValidateDenom(denom); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s denom: %w", ErrInvalidParams, role, err))
			continue
		}
		if other, dup := seen[denom]; dup {
			errs = append(errs, fmt.Errorf("%w: %s denom %q is also the %s denom", ErrInvalidParams, role, denom, other))
		}
		seen[denom] = role
	}
	if p.Fee > utils.BasisPointsDenominator {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidFee, p.Fee))
	}
	return errors.Join(errs...)
}

// Address returns the account of the can.
func (c *Can) Address() common.Address {
	return c.address
}

// Index returns the position of the can in its registry.
func (c *Can) Index() int {
	return c.index
}

// Owner returns the account allowed to administer the can.
func (c *Can) Owner() common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// FeeReceiver returns the account collecting claim fees.
func (c *Can) FeeReceiver() common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feeReceiver
}

// RevertFlag reports whether mint and burn are paused.
func (c *Can) RevertFlag() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revertFlag
}

// Info returns a copy of the vault record.
func (c *Can) Info() types.VaultInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Info()
}

// UserInfo returns the entry of user; a zeroed entry when user never interacted.
func (c *Can) UserInfo(user common.Address) types.UserInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.User(user)
}

// Users returns every user entry ordered by address.
func (c *Can) Users() []types.UserRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Users()
}

// PendingReward returns what user could claim without a new harvest:
// aggregated reward plus reward accrued since its last settlement.
func (c *Can) PendingReward(user common.Address) sdkmath.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.User(user).AggregatedReward.Add(c.ledger.Pending(user))
}

// Summary returns the read-only view of the can.
func (c *Can) Summary() types.CanSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.CanSummary{
		Address:     c.address,
		Index:       c.index,
		Owner:       c.owner,
		FeeReceiver: c.feeReceiver,
		RevertFlag:  c.revertFlag,
		UserCount:   len(c.ledger.Users()),
		Info:        c.ledger.Info(),
	}
}

// Snapshot returns the full persisted form of the can.
func (c *Can) Snapshot() types.CanSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(c.ledger.Users())
}

func (c *Can) snapshotLocked(users []types.UserRecord) types.CanSnapshot {
	return types.CanSnapshot{
		Address:     c.address,
		Owner:       c.owner,
		FeeReceiver: c.feeReceiver,
		RevertFlag:  c.revertFlag,
		Info:        c.ledger.Info(),
		Users:       users,
	}
}

// UpdateVault harvests the farm and folds the reward into the accumulator.
func (c *Can) UpdateVault(ctx context.Context) (*types.Receipt, error) {
	return c.execute(ctx, types.OperationUpdate, common.Address{}, common.Address{}, func(ctx context.Context, r *types.Receipt) error {
		return c.updateVault(ctx, r)
	})
}

// MintFor takes amount of the providing token from caller, pairs and stakes it,
// and credits the principal to recipient.
func (c *Can) MintFor(ctx context.Context, caller, recipient common.Address, amount sdkmath.Int) (*types.Receipt, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: mint amount must be positive", ErrInvalidAmount)
	}
	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("%w: recipient is zero", ErrInvalidAmount)
	}
	return c.execute(ctx, types.OperationMint, caller, recipient, func(ctx context.Context, r *types.Receipt) error {
		if c.revertFlag {
			return ErrPaused
		}
		info := c.ledger.Info()
		provided := sdktypes.NewCoin(info.ProvidingDenom, amount)
		if err := c.bank.Transfer(ctx, caller, c.address, provided); err != nil {
			return fmt.Errorf("failed to collect %s from %s: %w", provided, caller.Hex(), err)
		}

		if err := c.updateVault(ctx, r); err != nil {
			return err
		}
		c.ledger.SettleUser(recipient)

		paired, err := c.lp.Quote(ctx, info.LiquidityDenom, provided)
		if err != nil {
			return liquidityError("failed to quote %s: %w", provided, err)
		}
		inventory, err := c.bank.BalanceOf(ctx, info.PairedDenom, c.address)
		if err != nil {
			return fmt.Errorf("failed to read paired inventory: %w", err)
		}
		if inventory.LT(paired.Amount) {
			return fmt.Errorf("%w: need %s, can holds %s%s", types.ErrInsufficientLiquidity, paired, inventory, info.PairedDenom)
		}

		minted, err := c.lp.AddLiquidity(ctx, info.LiquidityDenom, c.address, provided, paired)
		if err != nil {
			return liquidityError("failed to add liquidity: %w", err)
		}
		if err := c.touchFarm(ctx, r, func(ctx context.Context) error {
			return c.farm.Deposit(ctx, info.FarmID, c.address, minted)
		}); err != nil {
			return fmt.Errorf("failed to stake %s: %w", minted, err)
		}

		if err := c.ledger.ApplyDeposit(recipient, amount); err != nil {
			return err
		}
		if err := c.ledger.AddLiquidity(minted); err != nil {
			return err
		}

		r.Principal = amount
		r.LiquidityDelta = minted
		return nil
	})
}

// BurnFor withdraws amount of the caller's principal and pays it, together with
// the caller's reward and externallyReportedReward, to recipient. A zero amount
// only claims reward.
func (c *Can) BurnFor(ctx context.Context, caller, recipient common.Address, amount, externallyReportedReward sdkmath.Int) (*types.Receipt, error) {
	if amount.IsNil() || amount.IsNegative() {
		return nil, fmt.Errorf("%w: burn amount must be non-negative", ErrInvalidAmount)
	}
	if externallyReportedReward.IsNil() || externallyReportedReward.IsNegative() {
		return nil, fmt.Errorf("%w: reported reward must be non-negative", ErrInvalidAmount)
	}
	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("%w: recipient is zero", ErrInvalidAmount)
	}
	return c.execute(ctx, types.OperationBurn, caller, recipient, func(ctx context.Context, r *types.Receipt) error {
		if c.revertFlag {
			return ErrPaused
		}
		if held := c.ledger.User(caller).ProvidedAmount; amount.GT(held) {
			return fmt.Errorf("%w: burning %s, %s provided %s", types.ErrInvariantViolation, amount, caller.Hex(), held)
		}
		info := c.ledger.Info()

		if err := c.updateVault(ctx, r); err != nil {
			return err
		}
		c.ledger.SettleUser(caller)

		if amount.IsPositive() {
			if err := c.unstake(ctx, r, recipient, c.ledger.LiquidityFor(amount)); err != nil {
				return err
			}
			if err := c.ledger.ApplyWithdrawal(caller, amount); err != nil {
				return fmt.Errorf("%w: %w", types.ErrInvariantViolation, err)
			}
			r.Principal = amount
		}

		payout := c.ledger.DrainReward(caller)
		if externallyReportedReward.IsPositive() {
			surplus, err := c.rewardSurplus(ctx, payout)
			if err != nil {
				return err
			}
			if externallyReportedReward.GT(surplus) {
				return fmt.Errorf("%w: reported reward %s exceeds surplus %s%s", types.ErrInsufficientBalance, externallyReportedReward, surplus, info.RewardDenom)
			}
			payout = payout.Add(externallyReportedReward)
		}
		return c.payReward(ctx, r, recipient, payout)
	})
}

// unstake withdraws liquidity from the farm, breaks it up and sends the
// providing token to recipient. The paired token stays in the can.
func (c *Can) unstake(ctx context.Context, r *types.Receipt, recipient common.Address, liquidity sdkmath.Int) error {
	if liquidity.IsZero() {
		return nil
	}
	info := c.ledger.Info()
	if err := c.touchFarm(ctx, r, func(ctx context.Context) error {
		return c.farm.Withdraw(ctx, info.FarmID, c.address, liquidity)
	}); err != nil {
		return fmt.Errorf("failed to unstake %s: %w", liquidity, err)
	}
	out, err := c.lp.RemoveLiquidity(ctx, info.LiquidityDenom, c.address, liquidity)
	if err != nil {
		return liquidityError("failed to remove liquidity: %w", err)
	}
	if err := c.ledger.RemoveLiquidity(liquidity); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvariantViolation, err)
	}
	r.LiquidityDelta = liquidity

	providing := sdktypes.NewCoin(info.ProvidingDenom, out.AmountOf(info.ProvidingDenom))
	if providing.IsZero() {
		return nil
	}
	if err := c.bank.Transfer(ctx, c.address, recipient, providing); err != nil {
		return fmt.Errorf("failed to return %s: %w", providing, err)
	}
	r.Transfers = append(r.Transfers, providing)
	return nil
}

// rewardSurplus returns the reward tokens the can holds beyond what it owes:
// the pending payout, the accumulated liability and the parked reward.
func (c *Can) rewardSurplus(ctx context.Context, payout sdkmath.Int) (sdkmath.Int, error) {
	info := c.ledger.Info()
	balance, err := c.bank.BalanceOf(ctx, info.RewardDenom, c.address)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read reward balance: %w", err)
	}
	surplus := balance.Sub(payout).Sub(info.RewardLiability).Sub(info.UndistributedReward)
	if surplus.IsNegative() {
		return sdkmath.ZeroInt(), nil
	}
	return surplus, nil
}

// payReward splits payout into the fee and the net reward.
func (c *Can) payReward(ctx context.Context, r *types.Receipt, recipient common.Address, payout sdkmath.Int) error {
	if payout.IsZero() {
		return nil
	}
	info := c.ledger.Info()
	fee, net, err := utils.SplitBasisPoints(payout, info.Fee)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFee, err)
	}
	if fee.IsPositive() {
		coin := sdktypes.NewCoin(info.RewardDenom, fee)
		if err := c.bank.Transfer(ctx, c.address, c.feeReceiver, coin); err != nil {
			return fmt.Errorf("failed to pay fee %s: %w", coin, err)
		}
		r.FeePaid = fee
	}
	if net.IsPositive() {
		coin := sdktypes.NewCoin(info.RewardDenom, net)
		if err := c.bank.Transfer(ctx, c.address, recipient, coin); err != nil {
			return fmt.Errorf("failed to pay reward %s: %w", coin, err)
		}
		r.RewardPaid = net
		r.Transfers = append(r.Transfers, coin)
	}
	return nil
}

// updateVault harvests with a zero deposit and settles the pool.
func (c *Can) updateVault(ctx context.Context, r *types.Receipt) error {
	info := c.ledger.Info()
	harvested, err := c.harvest(ctx, func(ctx context.Context) error {
		return c.farm.Deposit(ctx, info.FarmID, c.address, sdkmath.ZeroInt())
	})
	if err != nil {
		return fmt.Errorf("failed to harvest farm %d: %w", info.FarmID, err)
	}
	r.Harvested = r.Harvested.Add(harvested)
	if _, err := c.ledger.SettlePool(harvested, c.clock.Now()); err != nil {
		return err
	}
	return nil
}

// touchFarm runs a farm call after the pool was settled; whatever it harvests
// is parked for the next settlement.
func (c *Can) touchFarm(ctx context.Context, r *types.Receipt, call func(ctx context.Context) error) error {
	harvested, err := c.harvest(ctx, call)
	if err != nil {
		return err
	}
	r.Harvested = r.Harvested.Add(harvested)
	return c.ledger.Park(harvested)
}

// harvest measures the reward a farm call paid to the can.
func (c *Can) harvest(ctx context.Context, call func(ctx context.Context) error) (sdkmath.Int, error) {
	denom := c.ledger.Info().RewardDenom
	before, err := c.bank.BalanceOf(ctx, denom, c.address)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := call(ctx); err != nil {
		return sdkmath.ZeroInt(), err
	}
	after, err := c.bank.BalanceOf(ctx, denom, c.address)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if after.LT(before) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: reward balance fell from %s to %s during a farm call", types.ErrInvariantViolation, before, after)
	}
	return after.Sub(before), nil
}

// execute runs op atomically: on error the ledger and every collaborator are
// restored to their state before the call.
func (c *Can) execute(ctx context.Context, kind types.OperationKind, caller, recipient common.Address, op func(ctx context.Context, r *types.Receipt) error) (*types.Receipt, error) {
	if addr, ok := inFlight(ctx); ok {
		return nil, fmt.Errorf("%w: %s called while %s is in flight", ErrReentrantCall, kind, addr.Hex())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx = context.WithValue(ctx, operationKey{}, c.address)
	receipt := types.NewReceipt(c.address, kind, caller, recipient, c.clock.Now())
	saved := c.ledger.Clone()
	ctx, id := c.journal.Snapshot(ctx)

	err := op(ctx, receipt)
	if err == nil {
		receipt.AccRewardPerShare = c.ledger.Info().AccRewardPerShare
		err = c.persist(ctx, *receipt, caller, recipient)
	}
	if err != nil {
		c.ledger = saved
		c.journal.RevertToSnapshot(id)
		c.recorder.RecordFailure(c.address, kind, err)
		c.logger.Warn().Err(err).
			Str("kind", string(kind)).
			Str("caller", caller.Hex()).
			Str("recipient", recipient.Hex()).
			Msg("Operation reverted")
		return nil, err
	}
	c.journal.Commit(id)

	info := c.ledger.Info()
	c.recorder.RecordOperation(*receipt, info)
	c.logger.Debug().
		Str("kind", string(kind)).
		Str("id", receipt.ID.String()).
		Str("principal", receipt.Principal.String()).
		Str("harvested", receipt.Harvested.String()).
		Str("rewardPaid", receipt.RewardPaid.String()).
		Str("totalProvided", info.TotalProvidedAmount.String()).
		Msg("Operation committed")
	return receipt, nil
}

func (c *Can) persist(ctx context.Context, receipt types.Receipt, accounts ...common.Address) error {
	var touched []types.UserRecord
	seen := make(map[common.Address]bool, len(accounts))
	for _, addr := range accounts {
		if seen[addr] || !c.ledger.HasUser(addr) {
			continue
		}
		seen[addr] = true
		touched = append(touched, types.UserRecord{User: addr, Info: c.ledger.User(addr)})
	}
	if err := c.store.SaveOperation(ctx, c.snapshotLocked(touched), receipt); err != nil {
		return fmt.Errorf("failed to persist operation: %w", err)
	}
	return nil
}

// liquidityError wraps a collaborator failure so it matches
// types.ErrInsufficientLiquidity.
func liquidityError(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	if errors.Is(err, types.ErrInsufficientLiquidity) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrInsufficientLiquidity, err)
}
