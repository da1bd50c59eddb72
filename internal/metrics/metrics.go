package metrics

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elys-network/candyshop/internal/logger"
	"github.com/elys-network/candyshop/internal/types"
	"github.com/elys-network/candyshop/internal/utils"
)

// Recorder exports can operations and keeper cycles as Prometheus metrics.
// Amounts are exported in base units.
type Recorder struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	rewardPaid *prometheus.CounterVec
	feePaid    *prometheus.CounterVec
	harvested  *prometheus.CounterVec

	totalProvided  *prometheus.GaugeVec
	totalLiquidity *prometheus.GaugeVec
	undistributed  *prometheus.GaugeVec
	liability      *prometheus.GaugeVec

	keeperCycles   prometheus.Counter
	keeperFailures prometheus.Counter
	keeperDuration prometheus.Histogram
	keeperLast     prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candyshop_can_operations_total",
			Help: "Committed can operations by kind.",
		}, []string{"can", "kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candyshop_can_operation_failures_total",
			Help: "Reverted can operations by kind.",
		}, []string{"can", "kind"}),
		rewardPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candyshop_can_reward_paid_total",
			Help: "Net reward paid to depositors.",
		}, []string{"can"}),
		feePaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candyshop_can_fee_paid_total",
			Help: "Claim fees paid to the fee receiver.",
		}, []string{"can"}),
		harvested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candyshop_can_harvested_total",
			Help: "Reward harvested from the farm.",
		}, []string{"can"}),
		totalProvided: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candyshop_can_total_provided",
			Help: "Sum of depositor principal.",
		}, []string{"can"}),
		totalLiquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candyshop_can_total_liquidity",
			Help: "Liquidity shares staked for the can.",
		}, []string{"can"}),
		undistributed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candyshop_can_undistributed_reward",
			Help: "Reward harvested while nobody could receive it.",
		}, []string{"can"}),
		liability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candyshop_can_reward_liability",
			Help: "Reward owed to depositors and not yet paid.",
		}, []string{"can"}),
		keeperCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candyshop_keeper_cycles_total",
			Help: "Completed keeper cycles.",
		}),
		keeperFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candyshop_keeper_failed_updates_total",
			Help: "Can updates that failed during keeper cycles.",
		}),
		keeperDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "candyshop_keeper_cycle_duration_seconds",
			Help:    "Duration of keeper cycles.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),
		keeperLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candyshop_keeper_last_cycle",
			Help: "Number of the last completed keeper cycle.",
		}),
	}
	reg.MustRegister(
		r.operations,
		r.failures,
		r.rewardPaid,
		r.feePaid,
		r.harvested,
		r.totalProvided,
		r.totalLiquidity,
		r.undistributed,
		r.liability,
		r.keeperCycles,
		r.keeperFailures,
		r.keeperDuration,
		r.keeperLast,
	)
	return r
}

// RecordOperation updates the counters and gauges of the can behind receipt.
func (r *Recorder) RecordOperation(receipt types.Receipt, info types.VaultInfo) {
	if r == nil {
		return
	}
	can := receipt.Can.Hex()
	r.operations.WithLabelValues(can, string(receipt.Kind)).Inc()
	r.rewardPaid.WithLabelValues(can).Add(toFloat(receipt.RewardPaid))
	r.feePaid.WithLabelValues(can).Add(toFloat(receipt.FeePaid))
	r.harvested.WithLabelValues(can).Add(toFloat(receipt.Harvested))

	r.totalProvided.WithLabelValues(can).Set(toFloat(info.TotalProvidedAmount))
	r.totalLiquidity.WithLabelValues(can).Set(toFloat(info.TotalLiquidity))
	r.undistributed.WithLabelValues(can).Set(toFloat(info.UndistributedReward))
	r.liability.WithLabelValues(can).Set(toFloat(info.RewardLiability))
}

func (r *Recorder) RecordFailure(can common.Address, kind types.OperationKind, _ error) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(can.Hex(), string(kind)).Inc()
}

// RecordCycle observes a completed keeper cycle.
func (r *Recorder) RecordCycle(cycle types.KeeperCycle) {
	if r == nil {
		return
	}
	r.keeperCycles.Inc()
	r.keeperFailures.Add(float64(cycle.CansFailed))
	r.keeperDuration.Observe(cycle.Duration.Seconds())
	r.keeperLast.Set(float64(cycle.Number))
}

func toFloat(amount sdkmath.Int) float64 {
	if amount.IsNil() {
		return 0
	}
	v, err := utils.SDKIntToFloat64(amount, 0)
	if err != nil {
		log := logger.GetForComponent("metrics")
		log.Warn().Err(err).Str("amount", amount.String()).Msg("Failed to convert amount")
		return 0
	}
	return v
}
