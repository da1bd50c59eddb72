package chain

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/candyshop/internal/types"
)

const (
	candy  = "ucandy"
	usdc   = "uusdc"
	reward = "ureward"
)

var start = time.Date(2025, 9, 2, 4, 33, 8, 0, time.UTC)

func coin(denom string, amount int64) sdktypes.Coin {
	return sdktypes.NewInt64Coin(denom, amount)
}

func newTestEnv(t *testing.T) (*Env, *clockwork.FakeClock, Pair, uint64) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(start)
	env, err := NewEnv(clock, reward, sdkmath.NewInt(100))
	require.NoError(t, err)
	pair, err := env.CreatePair(usdc, candy)
	require.NoError(t, err)
	pid, err := env.AddFarmPool(pair.LPDenom, 100)
	require.NoError(t, err)
	return env, clock, pair, pid
}

func TestBankTransfer(t *testing.T) {
	b := NewBank()
	alice, bob := common.HexToAddress("0xa1"), common.HexToAddress("0xb0")
	require.NoError(t, b.Mint(alice, coin(candy, 100)))

	require.NoError(t, b.Transfer(alice, bob, coin(candy, 40)))
	assert.Equal(t, int64(60), b.BalanceOf(candy, alice).Int64())
	assert.Equal(t, int64(40), b.BalanceOf(candy, bob).Int64())

	err := b.Transfer(alice, bob, coin(candy, 61))
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	assert.Equal(t, int64(60), b.BalanceOf(candy, alice).Int64())

	require.NoError(t, b.Burn(bob, coin(candy, 40)))
	assert.Equal(t, int64(60), b.Supply(candy).Int64())
	assert.True(t, b.Balances(bob).IsZero())
}

func TestPairLifecycle(t *testing.T) {
	env, _, pair, _ := newTestEnv(t)
	ctx := context.Background()
	alice := env.NewAddress()
	assert.Equal(t, "lp/ucandy/uusdc", pair.LPDenom)

	_, err := env.Quote(ctx, pair.LPDenom, coin(candy, 10))
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)

	require.NoError(t, env.Mint(alice, coin(candy, 2_000_000)))
	require.NoError(t, env.Mint(alice, coin(usdc, 4_000_000)))

	shares, err := env.AddLiquidity(ctx, pair.LPDenom, alice, coin(candy, 1_000_000), coin(usdc, 2_000_000))
	require.NoError(t, err)
	// sqrt(1e6 * 2e6) = 1414213, minus the locked minimum
	assert.Equal(t, int64(1_413_213), shares.Int64())
	assert.Equal(t, int64(1_414_213), env.Supply(pair.LPDenom).Int64())

	quoted, err := env.Quote(ctx, pair.LPDenom, coin(candy, 10))
	require.NoError(t, err)
	assert.Equal(t, coin(usdc, 20), quoted)

	// the surplus usdc stays with alice
	more, err := env.AddLiquidity(ctx, pair.LPDenom, alice, coin(candy, 500_000), coin(usdc, 2_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(707_106), more.Int64())
	left, err := env.BalanceOf(ctx, usdc, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), left.Int64())

	out, err := env.RemoveLiquidity(ctx, pair.LPDenom, alice, shares)
	require.NoError(t, err)
	assert.Equal(t, int64(999_293), out.AmountOf(candy).Int64())
	assert.Equal(t, int64(1_998_586), out.AmountOf(usdc).Int64())
}

func TestAddLiquidityIsAllOrNothing(t *testing.T) {
	env, _, pair, _ := newTestEnv(t)
	ctx := context.Background()
	alice := env.NewAddress()
	require.NoError(t, env.Mint(alice, coin(candy, 1_000_000)))

	_, err := env.AddLiquidity(ctx, pair.LPDenom, alice, coin(candy, 1_000_000), coin(usdc, 1_000_000))
	require.ErrorIs(t, err, types.ErrInsufficientBalance)

	bal, err := env.BalanceOf(ctx, candy, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), bal.Int64())
	assert.True(t, env.Supply(pair.LPDenom).IsZero())
}

func TestFarmSplitsEmissionByStake(t *testing.T) {
	env, clock, pair, pid := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.NewAddress(), env.NewAddress()
	require.NoError(t, env.Mint(alice, coin(pair.LPDenom, 1000)))
	require.NoError(t, env.Mint(bob, coin(pair.LPDenom, 1000)))

	require.NoError(t, env.Deposit(ctx, pid, alice, sdkmath.NewInt(1000)))
	clock.Advance(10 * time.Second)

	pending, err := env.PendingReward(ctx, pid, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), pending.Int64())

	require.NoError(t, env.Deposit(ctx, pid, bob, sdkmath.NewInt(1000)))
	clock.Advance(10 * time.Second)

	// a zero deposit only harvests
	require.NoError(t, env.Deposit(ctx, pid, alice, sdkmath.ZeroInt()))
	got, err := env.BalanceOf(ctx, reward, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.Int64())

	require.NoError(t, env.Withdraw(ctx, pid, bob, sdkmath.NewInt(1000)))
	got, err = env.BalanceOf(ctx, reward, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Int64())
	lp, err := env.BalanceOf(ctx, pair.LPDenom, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), lp.Int64())

	err = env.Withdraw(ctx, pid, bob, sdkmath.NewInt(1))
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)

	_, err = env.PendingReward(ctx, 7, alice)
	require.ErrorIs(t, err, ErrUnknownFarmPool)
}

func TestFarmIgnoresIdleTime(t *testing.T) {
	env, clock, pair, pid := newTestEnv(t)
	ctx := context.Background()
	alice := env.NewAddress()
	require.NoError(t, env.Mint(alice, coin(pair.LPDenom, 1000)))

	clock.Advance(time.Hour)
	require.NoError(t, env.Deposit(ctx, pid, alice, sdkmath.NewInt(1000)))
	clock.Advance(time.Second)

	pending, err := env.PendingReward(ctx, pid, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pending.Int64())
}

func TestSnapshotRevert(t *testing.T) {
	env, _, _, _ := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.NewAddress(), env.NewAddress()
	require.NoError(t, env.Mint(alice, coin(candy, 100)))

	txCtx, id := env.Snapshot(ctx)
	require.NoError(t, env.Transfer(txCtx, alice, bob, coin(candy, 70)))
	env.RevertToSnapshot(id)

	bal, err := env.BalanceOf(ctx, candy, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Int64())

	txCtx, id = env.Snapshot(ctx)
	require.NoError(t, env.Transfer(txCtx, alice, bob, coin(candy, 70)))
	env.Commit(id)

	bal, err = env.BalanceOf(ctx, candy, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(70), bal.Int64())

	// the context of an ended transaction no longer writes
	err = env.Transfer(txCtx, alice, bob, coin(candy, 1))
	require.ErrorIs(t, err, ErrTxClosed)
}

func TestRevertKeepsWritesOutsideTransaction(t *testing.T) {
	env, _, _, _ := newTestEnv(t)
	ctx := context.Background()
	alice, bob, shop, to := env.NewAddress(), env.NewAddress(), env.NewAddress(), env.NewAddress()
	require.NoError(t, env.Mint(alice, coin(candy, 100)))
	require.NoError(t, env.Mint(shop, coin(candy, 100)))

	txCtx, id := env.Snapshot(ctx)
	require.NoError(t, env.Transfer(txCtx, alice, bob, coin(candy, 70)))

	done := make(chan error, 1)
	go func() {
		done <- env.Transfer(ctx, shop, to, coin(candy, 100))
	}()
	select {
	case err := <-done:
		t.Fatalf("transfer ran inside a foreign transaction: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	env.RevertToSnapshot(id)
	require.NoError(t, <-done)

	bal, err := env.BalanceOf(ctx, candy, to)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Int64())
	bal, err = env.BalanceOf(ctx, candy, bob)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestCanceledContext(t *testing.T) {
	env, _, _, _ := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.Transfer(ctx, env.NewAddress(), env.NewAddress(), coin(candy, 1))
	require.ErrorIs(t, err, context.Canceled)
}
