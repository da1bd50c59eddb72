package state

import (
	"context"
	"os"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/elys-network/candyshop/internal/types"
)

// newPostgresStore starts a throwaway PostgreSQL container. Set
// CANDYSHOP_PG_TESTS=1 to run it; Docker must be available.
func newPostgresStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() || os.Getenv("CANDYSHOP_PG_TESTS") == "" {
		t.Skip("set CANDYSHOP_PG_TESTS=1 to run PostgreSQL integration tests")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("candyshop"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := OpenDSN(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestPostgresCanRoundTrip(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCan(ctx, testSnapshot(userRecord(alice, 400))))
	second := testSnapshot(userRecord(bob, 600), userRecord(alice, 0))
	second.Info.AccRewardPerShare = sdkmath.NewIntFromUint64(175678758840)
	require.NoError(t, store.SaveCan(ctx, second))

	snaps, err := store.LoadCans(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	got := snaps[0]
	assert.Equal(t, canAddr, got.Address)
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, uint64(250), got.Info.Fee)
	assert.Equal(t, "175678758840", got.Info.AccRewardPerShare.String())
	require.Len(t, got.Users, 2)
	for _, rec := range got.Users {
		switch rec.User {
		case alice:
			assert.True(t, rec.Info.ProvidedAmount.IsZero())
		case bob:
			assert.Equal(t, sdkmath.NewInt(600), rec.Info.ProvidedAmount)
		default:
			t.Fatalf("unexpected user %s", rec.User.Hex())
		}
	}
}

func TestPostgresReceipts(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	base := time.Unix(1637866629, 0).UTC()

	first := testReceipt(base)
	last := testReceipt(base.Add(time.Minute))
	require.NoError(t, store.SaveOperation(ctx, testSnapshot(), first))
	require.NoError(t, store.SaveOperation(ctx, testSnapshot(), last))

	got, err := store.RecentReceipts(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, last.ID, got[0].ID)
	assert.Equal(t, types.OperationMint, got[0].Kind)
	assert.Equal(t, sdkmath.NewInt(500), got[0].Principal)
	assert.True(t, got[1].Timestamp.Equal(base))
}

func TestPostgresOperationIsAllOrNothing(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	r := testReceipt(time.Unix(1637866629, 0).UTC())
	require.NoError(t, store.SaveOperation(ctx, testSnapshot(userRecord(alice, 400)), r))

	after := testSnapshot(userRecord(alice, 900))
	after.Info.TotalProvidedAmount = sdkmath.NewInt(9_000)
	require.Error(t, store.SaveOperation(ctx, after, r))

	snaps, err := store.LoadCans(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, sdkmath.NewInt(1_000), snaps[0].Info.TotalProvidedAmount)
	require.Len(t, snaps[0].Users, 1)
	assert.Equal(t, sdkmath.NewInt(400), snaps[0].Users[0].Info.ProvidedAmount)
}

func TestPostgresCycleCounter(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	n, err := store.CurrentCycleNumber(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.ResetCycleNumber(ctx, 41))
	n, err = store.IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	require.NoError(t, store.SaveKeeperCycle(ctx, types.KeeperCycle{
		ID:        uuid.New(),
		Number:    n,
		StartedAt: time.Now(),
		Duration:  150 * time.Millisecond,
		CansTotal: 3,
	}))

	require.NoError(t, store.DropSchema(ctx))
	_, err = store.CurrentCycleNumber(ctx)
	require.Error(t, err)
}
