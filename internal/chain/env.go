/*

This file contains Env, an in-process reference chain: a bank, constant-product pairs and a
reward farm sharing one clock. A can talks to it through the bank, liquidity and farm interfaces
and journals every operation with Snapshot and RevertToSnapshot so failed operations leave no trace.

*/

package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/elys-network/candyshop/internal/logger"
)

var (
	ErrInvalidAmount   = errors.New("chain: invalid amount")
	ErrUnknownPair     = errors.New("chain: unknown pair")
	ErrDuplicatePair   = errors.New("chain: pair already exists")
	ErrUnknownFarmPool = errors.New("chain: unknown farm pool")
	ErrUnknownSnapshot = errors.New("chain: unknown snapshot")
	ErrTxClosed        = errors.New("chain: transaction already ended")
)

// deployer is the root every chain-created address derives from.
var deployer = common.BytesToAddress(crypto.Keccak256([]byte("candyshop/chain")))

type state struct {
	bank *Bank
	farm *Farm
}

func (s state) clone() state {
	return state{bank: s.bank.clone(), farm: s.farm.clone()}
}

// Env is safe for concurrent use. Snapshot opens a transaction and returns a
// context carrying its token; writes made with that context join the
// transaction. Every other write waits until the open transaction ends, so a
// revert never undoes changes it did not make.
type Env struct {
	clock  clockwork.Clock
	logger zerolog.Logger

	txMu sync.Mutex

	mu        sync.Mutex
	state     state
	pairs     map[string]Pair
	nonce     uint64
	snapshots []state
	txSeq     uint64
	activeTx  uint64
}

type txKey struct{}

type txToken struct {
	env *Env
	seq uint64
}

// NewEnv returns an empty chain whose farm emits rewardPerSecond of rewardDenom.
func NewEnv(clock clockwork.Clock, rewardDenom string, rewardPerSecond sdkmath.Int) (*Env, error) {
	if err := sdktypes.ValidateDenom(rewardDenom); err != nil {
		return nil, fmt.Errorf("invalid reward denom: %w", err)
	}
	if rewardPerSecond.IsNil() || rewardPerSecond.IsNegative() {
		return nil, fmt.Errorf("%w: reward per second %s", ErrInvalidAmount, rewardPerSecond)
	}
	e := &Env{
		clock:  clock,
		logger: logger.GetForComponent("chain"),
		pairs:  make(map[string]Pair),
	}
	e.state = state{
		bank: NewBank(),
		farm: newFarm(e.nextAddress(), rewardDenom, rewardPerSecond),
	}
	return e, nil
}

// Clock returns the clock the farm accrues on.
func (e *Env) Clock() clockwork.Clock {
	return e.clock
}

// FarmAddress returns the address holding staked liquidity and unpaid reward.
func (e *Env) FarmAddress() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.farm.Address
}

// RewardDenom returns the denom the farm emits.
func (e *Env) RewardDenom() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.farm.RewardDenom
}

// NewAddress derives a fresh account address.
func (e *Env) NewAddress() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextAddress()
}

func (e *Env) nextAddress() common.Address {
	addr := crypto.CreateAddress(deployer, e.nonce)
	e.nonce++
	return addr
}

// LPDenom returns the liquidity denom of the pair of two tokens.
func LPDenom(denomA, denomB string) string {
	tokens := []string{denomA, denomB}
	sort.Strings(tokens)
	return "lp/" + tokens[0] + "/" + tokens[1]
}

// CreatePair deploys an empty pair for two denoms.
func (e *Env) CreatePair(denomA, denomB string) (Pair, error) {
	if denomA == denomB {
		return Pair{}, fmt.Errorf("%w: identical denoms %s", ErrInvalidAmount, denomA)
	}
	for _, d := range []string{denomA, denomB} {
		if err := sdktypes.ValidateDenom(d); err != nil {
			return Pair{}, fmt.Errorf("invalid denom %q: %w", d, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	lp := LPDenom(denomA, denomB)
	if _, ok := e.pairs[lp]; ok {
		return Pair{}, fmt.Errorf("%w: %s", ErrDuplicatePair, lp)
	}
	tokens := []string{denomA, denomB}
	sort.Strings(tokens)
	p := Pair{Address: e.nextAddress(), LPDenom: lp, Token0: tokens[0], Token1: tokens[1]}
	e.pairs[lp] = p

	e.logger.Debug().Str("pair", p.Address.Hex()).Str("lpDenom", lp).Msg("Pair created")
	return p, nil
}

// Pair returns the pair minting lpDenom.
func (e *Env) Pair(lpDenom string) (Pair, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pair(lpDenom)
}

func (e *Env) pair(lpDenom string) (Pair, error) {
	p, ok := e.pairs[lpDenom]
	if !ok {
		return Pair{}, fmt.Errorf("%w: %s", ErrUnknownPair, lpDenom)
	}
	return p, nil
}

// Reserves returns the token balances of the pair minting lpDenom.
func (e *Env) Reserves(lpDenom string) (sdktypes.Coins, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.pair(lpDenom)
	if err != nil {
		return nil, err
	}
	r0, r1 := p.reserves(e.state.bank, p.Token0, p.Token1)
	return sdktypes.NewCoins(sdktypes.NewCoin(p.Token0, r0), sdktypes.NewCoin(p.Token1, r1)), nil
}

// AddFarmPool registers a staking pool for lpDenom and returns its id.
func (e *Env) AddFarmPool(lpDenom string, allocPoint uint64) (uint64, error) {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.pair(lpDenom); err != nil {
		return 0, err
	}
	now := e.clock.Now()
	for i := range e.state.farm.pools {
		if err := e.state.farm.update(e.state.bank, e.state.farm.pools[i], now); err != nil {
			return 0, err
		}
	}
	return e.state.farm.addPool(lpDenom, allocPoint, now), nil
}

// FarmPool returns a copy of a staking pool.
func (e *Env) FarmPool(id uint64) (FarmPool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.state.farm.pool(id)
	if err != nil {
		return FarmPool{}, err
	}
	return *p, nil
}

// Staked returns the liquidity holder has staked in pool id.
func (e *Env) Staked(id uint64, holder common.Address) sdkmath.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.farm.staked(id, holder)
}

// Mint credits coin to an account.
func (e *Env) Mint(to common.Address, coin sdktypes.Coin) error {
	return e.apply(context.Background(), func(s state) error {
		return s.bank.Mint(to, coin)
	})
}

// Supply returns the minted supply of denom.
func (e *Env) Supply(denom string) sdkmath.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.bank.Supply(denom)
}

// BalanceOf returns the balance of addr in denom.
func (e *Env) BalanceOf(ctx context.Context, denom string, addr common.Address) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.bank.BalanceOf(denom, addr), nil
}

// Balances returns every non-zero balance of addr.
func (e *Env) Balances(addr common.Address) sdktypes.Coins {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.bank.Balances(addr)
}

// Transfer moves coin between accounts.
func (e *Env) Transfer(ctx context.Context, from, to common.Address, coin sdktypes.Coin) error {
	return e.apply(ctx, func(s state) error {
		return s.bank.Transfer(from, to, coin)
	})
}

// Quote returns how much of the other token of the pair matches in at the
// current reserves.
func (e *Env) Quote(ctx context.Context, lpDenom string, in sdktypes.Coin) (sdktypes.Coin, error) {
	if err := ctx.Err(); err != nil {
		return sdktypes.Coin{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.pair(lpDenom)
	if err != nil {
		return sdktypes.Coin{}, err
	}
	if !p.has(in.Denom) {
		return sdktypes.Coin{}, fmt.Errorf("%w: %s not in %s", ErrUnknownPair, in.Denom, lpDenom)
	}
	out := p.other(in.Denom)
	reserveIn, reserveOut := p.reserves(e.state.bank, in.Denom, out)
	amount, err := quote(in.Amount, reserveIn, reserveOut)
	if err != nil {
		return sdktypes.Coin{}, err
	}
	return sdktypes.NewCoin(out, amount), nil
}

// AddLiquidity deposits up to a and b from owner into the pair and mints LP
// shares to owner.
func (e *Env) AddLiquidity(ctx context.Context, lpDenom string, owner common.Address, a, b sdktypes.Coin) (sdkmath.Int, error) {
	var shares sdkmath.Int
	err := e.apply(ctx, func(s state) error {
		p, err := e.pair(lpDenom)
		if err != nil {
			return err
		}
		if !p.has(a.Denom) || !p.has(b.Denom) || a.Denom == b.Denom {
			return fmt.Errorf("%w: %s/%s not in %s", ErrUnknownPair, a.Denom, b.Denom, lpDenom)
		}
		shares, err = p.addLiquidity(s.bank, owner, a, b)
		return err
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

// RemoveLiquidity burns LP shares of owner and returns both tokens to it.
func (e *Env) RemoveLiquidity(ctx context.Context, lpDenom string, owner common.Address, liquidity sdkmath.Int) (sdktypes.Coins, error) {
	var out sdktypes.Coins
	err := e.apply(ctx, func(s state) error {
		p, err := e.pair(lpDenom)
		if err != nil {
			return err
		}
		out, err = p.removeLiquidity(s.bank, owner, liquidity)
		return err
	})
	return out, err
}

// Deposit stakes liquidity of owner in farm pool id, paying its pending reward
// first. A zero amount only harvests.
func (e *Env) Deposit(ctx context.Context, id uint64, owner common.Address, liquidity sdkmath.Int) error {
	return e.apply(ctx, func(s state) error {
		return s.farm.deposit(s.bank, id, owner, liquidity, e.clock.Now())
	})
}

// Withdraw unstakes liquidity of owner from farm pool id, paying its pending
// reward first.
func (e *Env) Withdraw(ctx context.Context, id uint64, owner common.Address, liquidity sdkmath.Int) error {
	return e.apply(ctx, func(s state) error {
		return s.farm.withdraw(s.bank, id, owner, liquidity, e.clock.Now())
	})
}

// PendingReward returns the reward owner would harvest from farm pool id now.
func (e *Env) PendingReward(ctx context.Context, id uint64, owner common.Address) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.farm.pending(id, owner, e.clock.Now())
}

// Snapshot opens a transaction and returns its id with a context scoped to
// it. The caller must end it with exactly one Commit or RevertToSnapshot;
// snapshots do not nest.
func (e *Env) Snapshot(ctx context.Context) (context.Context, int) {
	e.txMu.Lock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.txSeq++
	e.activeTx = e.txSeq
	e.snapshots = append(e.snapshots, e.state.clone())
	return context.WithValue(ctx, txKey{}, txToken{env: e, seq: e.txSeq}), len(e.snapshots) - 1
}

// RevertToSnapshot restores the state captured by Snapshot and ends the transaction.
func (e *Env) RevertToSnapshot(id int) {
	e.mu.Lock()
	if id >= 0 && id < len(e.snapshots) {
		e.state = e.snapshots[id]
		e.snapshots = e.snapshots[:id]
	} else {
		e.logger.Error().Err(ErrUnknownSnapshot).Int("snapshot", id).Msg("Revert requested for unknown snapshot")
	}
	e.activeTx = 0
	e.mu.Unlock()
	e.txMu.Unlock()
}

// Commit keeps every change made since Snapshot and ends the transaction.
func (e *Env) Commit(id int) {
	e.mu.Lock()
	if id >= 0 && id < len(e.snapshots) {
		e.snapshots = e.snapshots[:id]
	}
	e.activeTx = 0
	e.mu.Unlock()
	e.txMu.Unlock()
}

// apply runs fn on the live state and rolls it back if fn fails, so every
// single call is all-or-nothing. Calls outside the open transaction wait for
// it to end.
func (e *Env) apply(ctx context.Context, fn func(s state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tok, joined := ctx.Value(txKey{}).(txToken)
	joined = joined && tok.env == e
	if !joined {
		e.txMu.Lock()
		defer e.txMu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if joined && tok.seq != e.activeTx {
		return ErrTxClosed
	}
	saved := e.state.clone()
	if err := fn(e.state); err != nil {
		e.state = saved
		return err
	}
	return nil
}
