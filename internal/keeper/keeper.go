package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/candyshop/internal/logger"
	"github.com/elys-network/candyshop/internal/types"
	"github.com/elys-network/candyshop/internal/vault"
)

const DefaultParallelism = 4

// Registry lists the cans to keep up to date.
type Registry interface {
	Cans() []*vault.Can
}

// CycleStore persists the cycle counter and the outcome of every cycle.
type CycleStore interface {
	IncrementCycleNumber(ctx context.Context) (int, error)
	SaveKeeperCycle(ctx context.Context, cycle types.KeeperCycle) error
}

// CycleRecorder is notified after every completed cycle.
type CycleRecorder interface {
	RecordCycle(cycle types.KeeperCycle)
}

// Keeper periodically settles every can so reward keeps accruing into the
// accumulators even when nobody mints or burns.
type Keeper struct {
	logger      zerolog.Logger
	registry    Registry
	store       CycleStore
	recorder    CycleRecorder
	clock       clockwork.Clock
	interval    time.Duration
	parallelism int
}

// Config holds the configuration for creating a new Keeper instance
type Config struct {
	Registry    Registry
	Store       CycleStore
	Recorder    CycleRecorder
	Clock       clockwork.Clock
	Interval    time.Duration
	Parallelism int
}

// New creates a keeper with dependency injection
func New(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}

	k := &Keeper{
		logger:      logger.GetForComponent("keeper"),
		registry:    cfg.Registry,
		store:       cfg.Store,
		recorder:    cfg.Recorder,
		clock:       cfg.Clock,
		interval:    cfg.Interval,
		parallelism: cfg.Parallelism,
	}
	k.logger.Info().
		Dur("interval", k.interval).
		Int("parallelism", k.parallelism).
		Msg("Keeper created")
	return k, nil
}

func validateConfig(cfg Config) error {
	if cfg.Registry == nil {
		return errors.New("registry cannot be nil")
	}
	if cfg.Store == nil {
		return errors.New("cycle store cannot be nil")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	return nil
}

// RunLoop runs a cycle immediately and then once per interval until ctx is done.
func (k *Keeper) RunLoop(ctx context.Context) {
	k.logger.Info().Dur("interval", k.interval).Msg("Starting keeper loop")

	ticker := k.clock.NewTicker(k.interval)
	defer ticker.Stop()

	k.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.Chan():
			k.runAndLog(ctx)
		}
	}
}

func (k *Keeper) runAndLog(ctx context.Context) {
	if _, err := k.RunCycle(ctx); err != nil {
		k.logger.Error().Err(err).Msg("Keeper cycle failed")
	}
}

// RunCycle updates every can once. A can that fails is logged and counted;
// the others are still updated.
func (k *Keeper) RunCycle(ctx context.Context) (types.KeeperCycle, error) {
	cycle := types.KeeperCycle{
		ID:        uuid.New(),
		StartedAt: k.clock.Now(),
	}
	number, err := k.store.IncrementCycleNumber(ctx)
	if err != nil {
		return cycle, fmt.Errorf("failed to increment cycle number: %w", err)
	}
	cycle.Number = number
	cycleLogger := k.logger.With().Str("cycle_id", cycle.ID.String()).Int("cycle", number).Logger()

	cans := k.registry.Cans()
	cycle.CansTotal = len(cans)
	cycleLogger.Debug().Int("cans", len(cans)).Msg("--- Starting keeper cycle ---")

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(k.parallelism)
	for _, can := range cans {
		g.Go(func() error {
			receipt, err := can.UpdateVault(ctx)
			if err != nil {
				failed.Add(1)
				cycleLogger.Warn().Err(err).Str("can", can.Address().Hex()).Msg("Failed to update can")
				return nil
			}
			cycleLogger.Debug().
				Str("can", can.Address().Hex()).
				Str("harvested", receipt.Harvested.String()).
				Str("accRewardPerShare", receipt.AccRewardPerShare.String()).
				Msg("Can updated")
			return nil
		})
	}
	_ = g.Wait()

	cycle.CansFailed = int(failed.Load())
	cycle.Duration = k.clock.Since(cycle.StartedAt)

	if err := k.store.SaveKeeperCycle(ctx, cycle); err != nil {
		return cycle, fmt.Errorf("failed to save keeper cycle: %w", err)
	}
	if k.recorder != nil {
		k.recorder.RecordCycle(cycle)
	}

	cycleLogger.Info().
		Int("cans", cycle.CansTotal).
		Int("failed", cycle.CansFailed).
		Dur("duration", cycle.Duration).
		Msg("--- Keeper cycle completed ---")
	return cycle, nil
}
