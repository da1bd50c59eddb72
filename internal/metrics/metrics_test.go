package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/candyshop/internal/types"
)

var can = common.HexToAddress("0x00000000000000000000000000000000000000c1")

func TestRecordOperation(t *testing.T) {
	r := New(prometheus.NewRegistry())

	receipt := types.NewReceipt(can, types.OperationBurn, common.Address{}, common.Address{}, time.Unix(0, 0))
	receipt.RewardPaid = sdkmath.NewInt(900)
	receipt.FeePaid = sdkmath.NewInt(100)
	info := types.NewVaultInfo(types.CanParams{})
	info.TotalProvidedAmount = sdkmath.NewInt(5000)
	info.TotalLiquidity = sdkmath.NewInt(70)

	r.RecordOperation(*receipt, info)
	r.RecordOperation(*receipt, info)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues(can.Hex(), "BURN")))
	assert.Equal(t, 1800.0, testutil.ToFloat64(r.rewardPaid.WithLabelValues(can.Hex())))
	assert.Equal(t, 200.0, testutil.ToFloat64(r.feePaid.WithLabelValues(can.Hex())))
	assert.Equal(t, 5000.0, testutil.ToFloat64(r.totalProvided.WithLabelValues(can.Hex())))
	assert.Equal(t, 70.0, testutil.ToFloat64(r.totalLiquidity.WithLabelValues(can.Hex())))
}

func TestRecordFailure(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.RecordFailure(can, types.OperationMint, errors.New("boom"))

	expected := `
# HELP candyshop_can_operation_failures_total Reverted can operations by kind.
# TYPE candyshop_can_operation_failures_total counter
candyshop_can_operation_failures_total{can="` + can.Hex() + `",kind="MINT"} 1
`
	require.NoError(t, testutil.CollectAndCompare(r.failures, strings.NewReader(expected)))
}

func TestRecordCycle(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.RecordCycle(types.KeeperCycle{Number: 7, CansTotal: 3, CansFailed: 2, Duration: 20 * time.Millisecond})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.keeperCycles))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.keeperFailures))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.keeperLast))
	assert.Equal(t, 1, testutil.CollectAndCount(r.keeperDuration))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordFailure(can, types.OperationMint, nil)
		r.RecordCycle(types.KeeperCycle{})
	})
}
