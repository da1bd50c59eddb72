package candyshop

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/candyshop/internal/chain"
	"github.com/elys-network/candyshop/internal/types"
	"github.com/elys-network/candyshop/internal/utils"
)

type fixture struct {
	ctx    context.Context
	env    *chain.Env
	clock  *clockwork.FakeClock
	shop   *Shop
	wallet common.Address
	other  common.Address
	params types.CanParams
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Unix(1637866629, 0).UTC())
	env, err := chain.NewEnv(clock, "urelict", sdkmath.NewInt(1_000_000))
	require.NoError(t, err)
	pair, err := env.CreatePair("ugton", "uusdc")
	require.NoError(t, err)
	farmID, err := env.AddFarmPool(pair.LPDenom, 100)
	require.NoError(t, err)

	f := &fixture{ctx: ctx, env: env, clock: clock, wallet: env.NewAddress(), other: env.NewAddress()}
	f.shop, err = New(Config{Address: env.NewAddress(), Owner: f.wallet, Chain: env, Clock: clock})
	require.NoError(t, err)
	f.params = types.CanParams{
		FarmID:         farmID,
		Farm:           env.FarmAddress(),
		Router:         pair.Address,
		LiquidityDenom: pair.LPDenom,
		ProvidingDenom: "ugton",
		PairedDenom:    "uusdc",
		RewardDenom:    "urelict",
	}
	return f
}

func TestCreateCan(t *testing.T) {
	f := newFixture(t)

	_, err := f.shop.CreateCan(f.ctx, f.other, f.params)
	require.ErrorIs(t, err, types.ErrPermission)
	assert.EqualError(t, err, "candyshop: permitted to owner")

	can, err := f.shop.CreateCan(f.ctx, f.wallet, f.params)
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(f.shop.Address(), 0), can.Address())
	assert.Equal(t, f.wallet, can.Owner())
	assert.Equal(t, f.wallet, can.FeeReceiver())
	assert.False(t, can.RevertFlag())

	second, err := f.shop.CreateCan(f.ctx, f.wallet, f.params)
	require.NoError(t, err)
	assert.Equal(t, 2, f.shop.CanLength())

	got, err := f.shop.AllCans(f.shop.CanLength() - 1)
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, 1, got.Index())

	byAddr, err := f.shop.CanByAddress(can.Address())
	require.NoError(t, err)
	assert.Same(t, can, byAddr)
	assert.Len(t, f.shop.Cans(), 2)

	_, err = f.shop.AllCans(2)
	require.ErrorIs(t, err, ErrUnknownCan)
	_, err = f.shop.CanByAddress(f.other)
	require.ErrorIs(t, err, ErrUnknownCan)
}

func TestCreateCanRejectsInvalidParams(t *testing.T) {
	f := newFixture(t)
	params := f.params
	params.Fee = 20_000

	_, err := f.shop.CreateCan(f.ctx, f.wallet, params)
	require.Error(t, err)
	assert.Zero(t, f.shop.CanLength())
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)

	err := f.shop.TransferOwnership(f.other, f.wallet)
	require.EqualError(t, err, "candyshop: permitted to owner")

	require.NoError(t, f.shop.TransferOwnership(f.wallet, f.other))
	assert.Equal(t, f.other, f.shop.Owner())
	require.ErrorIs(t, f.shop.TransferOwnership(f.wallet, f.wallet), ErrPermission)
}

func TestEmergencyTakeout(t *testing.T) {
	f := newFixture(t)
	amount := sdkmath.NewInt(15000000000000)
	require.NoError(t, f.env.Mint(f.shop.Address(), sdktypes.NewCoin("ugton", amount)))

	err := f.shop.EmergencyTakeout(f.ctx, f.other, "ugton", f.other, amount)
	require.ErrorIs(t, err, ErrPermission)

	require.NoError(t, f.shop.EmergencyTakeout(f.ctx, f.wallet, "ugton", f.other, amount))
	got, err := f.env.BalanceOf(f.ctx, "ugton", f.other)
	require.NoError(t, err)
	assert.Equal(t, amount, got)
	left, err := f.env.BalanceOf(f.ctx, "ugton", f.shop.Address())
	require.NoError(t, err)
	assert.True(t, left.IsZero())

	err = f.shop.EmergencyTakeout(f.ctx, f.wallet, "ugton", f.other, amount.AddRaw(1))
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestDelegatedCanAdministration(t *testing.T) {
	f := newFixture(t)
	can, err := f.shop.CreateCan(f.ctx, f.wallet, f.params)
	require.NoError(t, err)

	require.ErrorIs(t, f.shop.SetCanFee(f.ctx, f.other, can.Address(), 100), ErrPermission)
	require.NoError(t, f.shop.SetCanFee(f.ctx, f.wallet, can.Address(), 100))
	assert.Equal(t, uint64(100), can.Info().Fee)

	require.NoError(t, f.shop.SetCanFeeReceiver(f.ctx, f.wallet, can.Address(), f.other))
	assert.Equal(t, f.other, can.FeeReceiver())

	require.NoError(t, f.shop.SetCanRevertFlag(f.ctx, f.wallet, can.Address(), true))
	assert.True(t, can.RevertFlag())

	require.ErrorIs(t, f.shop.SetCanFee(f.ctx, f.wallet, f.other, 1), ErrUnknownCan)

	coin := sdktypes.NewCoin("uusdc", sdkmath.NewInt(700))
	require.NoError(t, f.env.Mint(can.Address(), coin))
	require.NoError(t, f.shop.CanEmergencyTakeout(f.ctx, f.wallet, can.Address(), f.other, coin))
	got, err := f.env.BalanceOf(f.ctx, "uusdc", f.other)
	require.NoError(t, err)
	assert.Equal(t, coin.Amount, got)
	err = f.shop.CanEmergencyTakeout(f.ctx, f.wallet, can.Address(), f.other, coin)
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestDelegatedEmergencyFarming(t *testing.T) {
	f := newFixture(t)
	can, err := f.shop.CreateCan(f.ctx, f.wallet, f.params)
	require.NoError(t, err)

	thousand := utils.MustExpandDecimals(1000, 18)
	for _, denom := range []string{"ugton", "uusdc"} {
		require.NoError(t, f.env.Mint(f.wallet, sdktypes.NewCoin(denom, thousand)))
	}
	_, err = f.env.AddLiquidity(f.ctx, f.params.LiquidityDenom, f.wallet,
		sdktypes.NewCoin("ugton", utils.MustExpandDecimals(100, 18)), sdktypes.NewCoin("uusdc", utils.MustExpandDecimals(100, 18)))
	require.NoError(t, err)
	require.NoError(t, f.env.Transfer(f.ctx, f.wallet, can.Address(), sdktypes.NewCoin("uusdc", utils.MustExpandDecimals(500, 18))))

	_, err = can.MintFor(f.ctx, f.wallet, f.wallet, utils.MustExpandDecimals(10, 18))
	require.NoError(t, err)
	liquidity := can.Info().TotalLiquidity

	require.NoError(t, f.shop.CanEmergencyGetFromFarming(f.ctx, f.wallet, can.Address(), liquidity))
	assert.True(t, f.env.Staked(f.params.FarmID, can.Address()).IsZero())

	require.ErrorIs(t, f.shop.CanEmergencySendToFarming(f.ctx, f.other, can.Address(), liquidity), ErrPermission)
	require.NoError(t, f.shop.CanEmergencySendToFarming(f.ctx, f.wallet, can.Address(), liquidity))
	assert.Equal(t, liquidity, f.env.Staked(f.params.FarmID, can.Address()))
}

func TestRestoreCans(t *testing.T) {
	f := newFixture(t)
	can, err := f.shop.CreateCan(f.ctx, f.wallet, f.params)
	require.NoError(t, err)
	require.NoError(t, f.shop.SetCanFee(f.ctx, f.wallet, can.Address(), 300))

	restored, err := New(Config{Address: f.shop.Address(), Owner: f.wallet, Chain: f.env, Clock: f.clock})
	require.NoError(t, err)
	require.NoError(t, restored.RestoreCans([]types.CanSnapshot{can.Snapshot()}))
	// restoring twice is a no-op
	require.NoError(t, restored.RestoreCans([]types.CanSnapshot{can.Snapshot()}))

	require.Equal(t, 1, restored.CanLength())
	got, err := restored.CanByAddress(can.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(300), got.Info().Fee)
	assert.Equal(t, f.wallet, got.Owner())

	next, err := restored.CreateCan(f.ctx, f.wallet, f.params)
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(f.shop.Address(), 1), next.Address())
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	can, err := f.shop.CreateCan(f.ctx, f.wallet, f.params)
	require.NoError(t, err)

	require.NoError(t, f.shop.Close())
	require.NoError(t, f.shop.Close())

	_, err = f.shop.CreateCan(f.ctx, f.wallet, f.params)
	require.ErrorIs(t, err, ErrShopClosed)
	require.ErrorIs(t, f.shop.TransferOwnership(f.wallet, f.other), ErrShopClosed)
	require.ErrorIs(t, f.shop.SetCanFee(f.ctx, f.wallet, can.Address(), 1), ErrShopClosed)

	assert.Equal(t, 1, f.shop.CanLength())
	_, err = f.shop.CanByAddress(can.Address())
	require.NoError(t, err)
}
