package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/candyshop/internal/types"
)

// Collaborators must pass the ctx they were called with to anything that can
// reach back into a can. The ctx marks the operation in flight and is how a
// nested can operation is detected and rejected with ErrReentrantCall; a
// callback made with a fresh context waits on the can instead.

// Bank moves tokens between accounts.
type Bank interface {
	// BalanceOf returns the balance of addr in denom.
	BalanceOf(ctx context.Context, denom string, addr common.Address) (sdkmath.Int, error)

	// Transfer moves coin from one account to another and fails with
	// types.ErrInsufficientBalance when from cannot cover it.
	Transfer(ctx context.Context, from, to common.Address, coin sdktypes.Coin) error
}

// LiquidityProvider pairs two tokens into liquidity shares and back.
type LiquidityProvider interface {
	// Quote returns the amount of the other token of the pair that matches in.
	Quote(ctx context.Context, liquidityDenom string, in sdktypes.Coin) (sdktypes.Coin, error)

	// AddLiquidity takes up to a and b from owner and returns the shares minted to owner.
	AddLiquidity(ctx context.Context, liquidityDenom string, owner common.Address, a, b sdktypes.Coin) (sdkmath.Int, error)

	// RemoveLiquidity burns shares of owner and returns the tokens sent back to it.
	RemoveLiquidity(ctx context.Context, liquidityDenom string, owner common.Address, liquidity sdkmath.Int) (sdktypes.Coins, error)
}

// Farm stakes liquidity shares and pays reward to the staker on every
// deposit or withdrawal.
type Farm interface {
	Deposit(ctx context.Context, farmID uint64, owner common.Address, liquidity sdkmath.Int) error
	Withdraw(ctx context.Context, farmID uint64, owner common.Address, liquidity sdkmath.Int) error
	PendingReward(ctx context.Context, farmID uint64, owner common.Address) (sdkmath.Int, error)
}

// Journal undoes collaborator side effects of a failed operation. Every
// Snapshot is closed by exactly one Commit or RevertToSnapshot. The returned
// context scopes collaborator calls to the snapshot's transaction.
type Journal interface {
	Snapshot(ctx context.Context) (context.Context, int)
	RevertToSnapshot(id int)
	Commit(id int)
}

// Chain is a single backend serving every collaborator of a can.
type Chain interface {
	Bank
	LiquidityProvider
	Farm
	Journal
}

// Store persists the outcome of can operations before they commit, so a store
// failure fails the operation. SaveOperation must store the snapshot and the
// receipt atomically.
type Store interface {
	SaveCan(ctx context.Context, snap types.CanSnapshot) error
	SaveOperation(ctx context.Context, snap types.CanSnapshot, receipt types.Receipt) error
}

// Recorder observes can operations, e.g. for metrics.
type Recorder interface {
	RecordOperation(receipt types.Receipt, info types.VaultInfo)
	RecordFailure(can common.Address, kind types.OperationKind, err error)
}

type nopJournal struct{}

func (nopJournal) Snapshot(ctx context.Context) (context.Context, int) { return ctx, 0 }
func (nopJournal) RevertToSnapshot(int)                               {}
func (nopJournal) Commit(int)                                         {}

type nopStore struct{}

func (nopStore) SaveCan(context.Context, types.CanSnapshot) error { return nil }
func (nopStore) SaveOperation(context.Context, types.CanSnapshot, types.Receipt) error {
	return nil
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(types.Receipt, types.VaultInfo)           {}
func (nopRecorder) RecordFailure(common.Address, types.OperationKind, error) {}
