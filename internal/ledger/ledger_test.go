package ledger

import (
	"math/rand"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/candyshop/internal/types"
	"github.com/elys-network/candyshop/internal/utils"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
	epoch = time.Date(2021, 11, 25, 18, 57, 9, 0, time.UTC)
)

func newLedger() *Ledger {
	return New(types.NewVaultInfo(types.CanParams{
		FarmID:         0,
		LiquidityDenom: "lp/gton-usdc",
		ProvidingDenom: "gton",
		PairedDenom:    "usdc",
		RewardDenom:    "relict",
	}))
}

// deposit runs the settle-then-mutate sequence a can performs on mint.
func deposit(t *testing.T, l *Ledger, user common.Address, harvested, amount sdkmath.Int) {
	t.Helper()
	_, err := l.SettlePool(harvested, epoch)
	require.NoError(t, err)
	l.SettleUser(user)
	require.NoError(t, l.ApplyDeposit(user, amount))
}

func withdraw(t *testing.T, l *Ledger, user common.Address, harvested, amount sdkmath.Int) sdkmath.Int {
	t.Helper()
	_, err := l.SettlePool(harvested, epoch)
	require.NoError(t, err)
	l.SettleUser(user)
	require.NoError(t, l.ApplyWithdrawal(user, amount))
	return l.DrainReward(user)
}

func TestScenarioSecondDepositorDoesNotDiluteEarlierReward(t *testing.T) {
	l := newLedger()
	earned, err := utils.ParseAmount("1756787588400000000")
	require.NoError(t, err)
	ten := utils.MustExpandDecimals(10, 18)
	hundredFortyFive := utils.MustExpandDecimals(145, 18)

	deposit(t, l, alice, sdkmath.ZeroInt(), ten)
	assert.True(t, l.User(alice).AggregatedReward.IsZero())

	_, err = l.SettlePool(earned, epoch.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "175678758840", l.Info().AccRewardPerShare.String())

	deposit(t, l, bob, sdkmath.ZeroInt(), hundredFortyFive)
	assert.Equal(t, ten.Add(hundredFortyFive).String(), l.Info().TotalProvidedAmount.String())
	assert.True(t, l.User(bob).AggregatedReward.IsZero())
	assert.True(t, l.Pending(bob).IsZero())
	assert.Equal(t, earned.String(), l.Pending(alice).String())
	assert.True(t, l.User(alice).AggregatedReward.IsZero(), "alice is only settled when she touches the can")

	paid := withdraw(t, l, alice, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	assert.Equal(t, earned.String(), paid.String())
	assert.True(t, l.User(alice).AggregatedReward.IsZero())
	assert.Equal(t, ten.String(), l.User(alice).ProvidedAmount.String())
}

func TestSettlePoolIsIdempotentWithoutReward(t *testing.T) {
	l := newLedger()
	deposit(t, l, alice, sdkmath.ZeroInt(), sdkmath.NewInt(1_000))

	_, err := l.SettlePool(sdkmath.NewInt(777), epoch)
	require.NoError(t, err)
	first := l.Info().AccRewardPerShare

	distributed, err := l.SettlePool(sdkmath.ZeroInt(), epoch)
	require.NoError(t, err)
	assert.True(t, distributed.IsZero())
	assert.Equal(t, first.String(), l.Info().AccRewardPerShare.String())
}

func TestSettlePoolParksRewardWithoutPrincipal(t *testing.T) {
	l := newLedger()

	distributed, err := l.SettlePool(sdkmath.NewInt(500), epoch)
	require.NoError(t, err)
	assert.True(t, distributed.IsZero())
	assert.True(t, l.Info().AccRewardPerShare.IsZero())
	assert.Equal(t, int64(500), l.Info().UndistributedReward.Int64())

	deposit(t, l, alice, sdkmath.ZeroInt(), sdkmath.NewInt(100))
	// parked reward is still waiting: alice joined after it was harvested
	assert.Equal(t, int64(500), l.Info().UndistributedReward.Int64())

	distributed, err = l.SettlePool(sdkmath.NewInt(100), epoch)
	require.NoError(t, err)
	assert.Equal(t, int64(600), distributed.Int64())
	assert.True(t, l.Info().UndistributedReward.IsZero())
	assert.Equal(t, int64(600), l.Pending(alice).Int64())
	assert.Equal(t, int64(600), l.Info().RewardLiability.Int64())
}

func TestSettlePoolRejectsNegativeReward(t *testing.T) {
	l := newLedger()
	_, err := l.SettlePool(sdkmath.NewInt(-1), epoch)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = l.SettlePool(sdkmath.Int{}, epoch)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestProportionalSplit(t *testing.T) {
	tests := []struct {
		name   string
		a, b   int64
		reward int64
	}{
		{"even", 50, 50, 1_000},
		{"uneven", 3, 7, 1_000_003},
		{"large", 10_000_000_000, 145_000_000_000, 1_756_787_588},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger()
			deposit(t, l, alice, sdkmath.ZeroInt(), sdkmath.NewInt(tt.a))
			deposit(t, l, bob, sdkmath.ZeroInt(), sdkmath.NewInt(tt.b))

			_, err := l.SettlePool(sdkmath.NewInt(tt.reward), epoch)
			require.NoError(t, err)

			total := tt.a + tt.b
			wantA := sdkmath.NewInt(tt.reward).MulRaw(tt.a).QuoRaw(total)
			wantB := sdkmath.NewInt(tt.reward).MulRaw(tt.b).QuoRaw(total)
			gotA := l.Pending(alice)
			gotB := l.Pending(bob)

			assert.True(t, gotA.LTE(wantA), "never overpays")
			assert.True(t, gotB.LTE(wantB), "never overpays")
			assert.True(t, wantA.Sub(gotA).LTE(sdkmath.OneInt()), "alice off by %s", wantA.Sub(gotA))
			assert.True(t, wantB.Sub(gotB).LTE(sdkmath.OneInt()), "bob off by %s", wantB.Sub(gotB))
		})
	}
}

func TestApplyWithdrawalRejectsExcess(t *testing.T) {
	l := newLedger()
	deposit(t, l, alice, sdkmath.ZeroInt(), sdkmath.NewInt(10))

	err := l.ApplyWithdrawal(alice, sdkmath.NewInt(11))
	require.ErrorIs(t, err, ErrInsufficientPrincipal)
	assert.Equal(t, int64(10), l.Info().TotalProvidedAmount.Int64())

	err = l.ApplyWithdrawal(bob, sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientPrincipal)
}

func TestZeroPrincipalClaimIsEmpty(t *testing.T) {
	l := newLedger()
	_, err := l.SettlePool(sdkmath.ZeroInt(), epoch)
	require.NoError(t, err)
	before := l.Info()

	paid := withdraw(t, l, carol, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	assert.True(t, paid.IsZero())
	assert.Equal(t, before, l.Info())
	assert.False(t, l.HasUser(carol))
}

func TestFullExitKeepsEntryAndResumes(t *testing.T) {
	l := newLedger()
	deposit(t, l, alice, sdkmath.ZeroInt(), sdkmath.NewInt(100))
	paid := withdraw(t, l, alice, sdkmath.NewInt(50), sdkmath.NewInt(100))
	assert.Equal(t, int64(50), paid.Int64())
	assert.True(t, l.Info().IsEmpty())
	require.True(t, l.HasUser(alice))

	// harvested while the can is empty: parked, not credited to anyone
	_, err := l.SettlePool(sdkmath.NewInt(40), epoch)
	require.NoError(t, err)
	deposit(t, l, alice, sdkmath.ZeroInt(), sdkmath.NewInt(100))
	assert.True(t, l.User(alice).AggregatedReward.IsZero())

	_, err = l.SettlePool(sdkmath.NewInt(10), epoch)
	require.NoError(t, err)
	// the parked 40 is handed out with the next settlement that has principal
	assert.Equal(t, int64(50), l.Pending(alice).Int64())
}

func TestLiquidityFor(t *testing.T) {
	l := newLedger()
	deposit(t, l, alice, sdkmath.ZeroInt(), sdkmath.NewInt(3))
	deposit(t, l, bob, sdkmath.ZeroInt(), sdkmath.NewInt(7))
	require.NoError(t, l.AddLiquidity(sdkmath.NewInt(101)))

	assert.Equal(t, int64(30), l.LiquidityFor(sdkmath.NewInt(3)).Int64())
	assert.Equal(t, int64(101), l.LiquidityFor(sdkmath.NewInt(10)).Int64())
	assert.True(t, l.LiquidityFor(sdkmath.ZeroInt()).IsZero())

	require.ErrorIs(t, l.RemoveLiquidity(sdkmath.NewInt(102)), ErrInsufficientLiquidity)
}

func TestCloneIsIndependent(t *testing.T) {
	l := newLedger()
	deposit(t, l, alice, sdkmath.ZeroInt(), sdkmath.NewInt(10))
	snapshot := l.Clone()

	deposit(t, l, alice, sdkmath.NewInt(100), sdkmath.NewInt(5))
	assert.Equal(t, int64(10), snapshot.User(alice).ProvidedAmount.Int64())
	assert.True(t, snapshot.Info().AccRewardPerShare.IsZero())
	assert.Equal(t, int64(15), l.User(alice).ProvidedAmount.Int64())
}

func TestRestore(t *testing.T) {
	l := newLedger()
	deposit(t, l, alice, sdkmath.ZeroInt(), sdkmath.NewInt(10))
	_, err := l.SettlePool(sdkmath.NewInt(20), epoch)
	require.NoError(t, err)

	restored := Restore(l.Info(), l.Users())
	assert.Equal(t, l.Info(), restored.Info())
	assert.Equal(t, l.Pending(alice).String(), restored.Pending(alice).String())
}

// TestRandomInterleavings checks conservation, monotonic accrual and that the
// ledger never owes more reward than it was given.
func TestRandomInterleavings(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	users := []common.Address{alice, bob, carol}

	l := newLedger()
	harvestedTotal := sdkmath.ZeroInt()
	paidTotal := sdkmath.ZeroInt()
	prevAcc := sdkmath.ZeroInt()

	for step := 0; step < 2_000; step++ {
		user := users[rng.Intn(len(users))]
		harvested := sdkmath.NewInt(rng.Int63n(1_000_000))
		harvestedTotal = harvestedTotal.Add(harvested)

		if rng.Intn(2) == 0 {
			deposit(t, l, user, harvested, sdkmath.NewInt(1+rng.Int63n(1_000_000_000)))
		} else {
			held := l.User(user).ProvidedAmount
			amount := sdkmath.ZeroInt()
			if held.IsPositive() {
				amount = sdkmath.NewInt(rng.Int63n(held.Int64() + 1))
			}
			paidTotal = paidTotal.Add(withdraw(t, l, user, harvested, amount))
		}

		sum := sdkmath.ZeroInt()
		owed := sdkmath.ZeroInt()
		for _, rec := range l.Users() {
			sum = sum.Add(rec.Info.ProvidedAmount)
			owed = owed.Add(rec.Info.AggregatedReward).Add(l.Pending(rec.User))
		}
		info := l.Info()
		require.Equal(t, sum.String(), info.TotalProvidedAmount.String(), "conservation at step %d", step)
		require.True(t, info.AccRewardPerShare.GTE(prevAcc), "accumulator decreased at step %d", step)
		require.True(t, owed.LTE(info.RewardLiability), "owed %s exceeds liability %s", owed, info.RewardLiability)
		require.True(t, paidTotal.Add(info.RewardLiability).Add(info.UndistributedReward).LTE(harvestedTotal))
		prevAcc = info.AccRewardPerShare
	}
}
