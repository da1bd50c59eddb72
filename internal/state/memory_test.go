package state

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/candyshop/internal/types"
)

var (
	canAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func testSnapshot(users ...types.UserRecord) types.CanSnapshot {
	info := types.NewVaultInfo(types.CanParams{
		FarmID:         3,
		LiquidityDenom: "lp/ugton/uusdc",
		ProvidingDenom: "ugton",
		PairedDenom:    "uusdc",
		RewardDenom:    "urelict",
		Fee:            250,
	})
	info.TotalProvidedAmount = sdkmath.NewInt(1_000)
	info.LastRewardTimestamp = time.Unix(1637866629, 0).UTC()
	return types.CanSnapshot{
		Address:     canAddr,
		Owner:       owner,
		FeeReceiver: owner,
		Info:        info,
		Users:       users,
	}
}

func userRecord(user common.Address, provided int64) types.UserRecord {
	info := types.NewUserInfo()
	info.ProvidedAmount = sdkmath.NewInt(provided)
	return types.UserRecord{User: user, Info: info}
}

func testReceipt(at time.Time) types.Receipt {
	r := types.NewReceipt(canAddr, types.OperationMint, alice, alice, at)
	r.Principal = sdkmath.NewInt(500)
	return *r
}

func TestMemoryStoreMergesUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.SaveCan(ctx, testSnapshot(userRecord(alice, 400))))
	second := testSnapshot(userRecord(bob, 600))
	second.RevertFlag = true
	require.NoError(t, m.SaveCan(ctx, second))

	snaps, err := m.LoadCans(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].RevertFlag)
	require.Len(t, snaps[0].Users, 2)
	assert.Equal(t, alice, snaps[0].Users[0].User)
	assert.Equal(t, sdkmath.NewInt(400), snaps[0].Users[0].Info.ProvidedAmount)
	assert.Equal(t, bob, snaps[0].Users[1].User)
}

func TestMemoryStoreRecentReceipts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Unix(1637866629, 0).UTC()
	var ids []uuid.UUID
	for i := 0; i < 15; i++ {
		r := testReceipt(base.Add(time.Duration(i) * time.Second))
		ids = append(ids, r.ID)
		require.NoError(t, m.SaveOperation(ctx, testSnapshot(), r))
	}

	got, err := m.RecentReceipts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, defaultReceiptLimit)
	assert.Equal(t, ids[14], got[0].ID)

	got, err = m.RecentReceipts(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[12], got[2].ID)
}

func TestMemoryStoreOperationIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	r := testReceipt(time.Unix(1637866629, 0).UTC())
	require.NoError(t, m.SaveOperation(ctx, testSnapshot(userRecord(alice, 400)), r))

	// a replayed receipt is rejected together with its can update
	after := testSnapshot(userRecord(alice, 900))
	after.Info.TotalProvidedAmount = sdkmath.NewInt(9_000)
	err := m.SaveOperation(ctx, after, r)
	require.ErrorIs(t, err, ErrInvalidReceipt)

	noID := testReceipt(time.Unix(1637866630, 0).UTC())
	noID.ID = uuid.Nil
	require.ErrorIs(t, m.SaveOperation(ctx, after, noID), ErrInvalidReceipt)

	snaps, err := m.LoadCans(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, sdkmath.NewInt(1_000), snaps[0].Info.TotalProvidedAmount)
	require.Len(t, snaps[0].Users, 1)
	assert.Equal(t, sdkmath.NewInt(400), snaps[0].Users[0].Info.ProvidedAmount)

	receipts, err := m.RecentReceipts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestMemoryStoreCycles(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	n, err := m.IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = m.IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Error(t, m.ResetCycleNumber(ctx, -1))
	require.NoError(t, m.ResetCycleNumber(ctx, 0))
	n, err = m.CurrentCycleNumber(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, m.SaveKeeperCycle(ctx, types.KeeperCycle{ID: uuid.New(), Number: 1, CansTotal: 2}))
	assert.Len(t, m.KeeperCycles(), 1)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0))
	assert.Equal(t, 10, clampLimit(-5))
	assert.Equal(t, 10, clampLimit(101))
	assert.Equal(t, 100, clampLimit(100))
	assert.Equal(t, 7, clampLimit(7))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemoryStore()
	require.ErrorIs(t, m.SaveCan(ctx, testSnapshot()), context.Canceled)
	require.ErrorIs(t, m.SaveOperation(ctx, testSnapshot(), testReceipt(time.Now())), context.Canceled)
	_, err := m.LoadCans(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNilStoreIsNotInitialized(t *testing.T) {
	var s *Store
	ctx := context.Background()
	require.ErrorIs(t, s.Ping(ctx), ErrNotInitialized)
	require.ErrorIs(t, s.SaveCan(ctx, testSnapshot()), ErrNotInitialized)
	require.ErrorIs(t, s.SaveOperation(ctx, testSnapshot(), testReceipt(time.Now())), ErrNotInitialized)
	_, err := s.RecentReceipts(ctx, 1)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.NoError(t, s.Close())
}

func TestDSN(t *testing.T) {
	cfg := DBConfig{Host: "localhost", Port: 5432, User: "avm", Password: "secret", DBName: "candyshop", SSLMode: "disable"}
	assert.Equal(t, "host=localhost port=5432 user=avm password=secret dbname=candyshop sslmode=disable", cfg.DSN())
}
