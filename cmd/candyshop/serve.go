package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/candyshop/internal/candyshop"
	"github.com/elys-network/candyshop/internal/chain"
	"github.com/elys-network/candyshop/internal/config"
	"github.com/elys-network/candyshop/internal/keeper"
	"github.com/elys-network/candyshop/internal/logger"
	"github.com/elys-network/candyshop/internal/metrics"
	"github.com/elys-network/candyshop/internal/state"
	"github.com/elys-network/candyshop/internal/types"
	"github.com/elys-network/candyshop/internal/utils"
	"github.com/elys-network/candyshop/internal/web"
)

func newServeCommand() *cobra.Command {
	var demoDeposit int64
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the shop on a reference chain with the keeper and the web API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger.Initialize(config.LogLevel)
			log.Info().Msg("CandyShop starting...")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, demoDeposit)
		},
	}
	cmd.Flags().Int64Var(&demoDeposit, "demo-deposit", 10, "whole providing tokens a demo depositor mints at startup (0 to skip)")
	return cmd
}

func serve(ctx context.Context, demoDeposit int64) error {
	// --- 1. Persistence ---
	var backend state.Backend
	var health web.HealthChecker
	if config.DBEnabled {
		store, err := state.Open(ctx, config.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure database schema: %w", err)
		}
		// The reference chain lives in memory, so cans persisted by an earlier run
		// would point at farm stakes that no longer exist.
		existing, err := store.LoadCans(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("database holds %d cans from a previous run; run `candyshop reset-db` first", len(existing))
		}
		backend, health = store, store
	} else {
		log.Warn().Msg("DB_ENABLED is not set; keeping state in memory")
		backend = state.NewMemoryStore()
	}

	// --- 2. Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	// --- 3. Reference chain and shop ---
	env, shop, err := openDemo(ctx, backend, recorder, demoDeposit)
	if err != nil {
		return err
	}
	defer shop.Close()

	// --- 4. Keeper and web API ---
	k, err := keeper.New(keeper.Config{
		Registry:    shop,
		Store:       backend,
		Recorder:    recorder,
		Clock:       env.Clock(),
		Interval:    config.HeartbeatInterval,
		Parallelism: config.KeeperParallelism,
	})
	if err != nil {
		return err
	}
	webServer, err := web.NewWebServer(web.Config{
		Port:     config.WebPort,
		Registry: shop,
		Receipts: backend,
		Health:   health,
		Market:   env,
		Gatherer: registry,
		Clock:    env.Clock(),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting CandyShop web API")
		if err := webServer.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		k.RunLoop(gctx)
		return nil
	})

	err = g.Wait()
	log.Info().Msg("CandyShop stopped")
	return err
}

// openDemo seeds a reference chain with one pair, one farm pool and one can.
func openDemo(ctx context.Context, backend state.Backend, recorder *metrics.Recorder, demoDeposit int64) (*chain.Env, *candyshop.Shop, error) {
	p := config.DefaultDemoParameters
	env, err := chain.NewEnv(clockwork.NewRealClock(), p.RewardDenom, p.RewardPerSecond)
	if err != nil {
		return nil, nil, err
	}
	pair, err := env.CreatePair(p.ProvidingDenom, p.PairedDenom)
	if err != nil {
		return nil, nil, err
	}
	farmID, err := env.AddFarmPool(pair.LPDenom, p.AllocPoint)
	if err != nil {
		return nil, nil, err
	}

	seeder := env.NewAddress()
	for _, denom := range []string{p.ProvidingDenom, p.PairedDenom} {
		if err := env.Mint(seeder, sdktypes.NewCoin(denom, p.SeedReserve)); err != nil {
			return nil, nil, err
		}
	}
	if _, err := env.AddLiquidity(ctx, pair.LPDenom, seeder,
		sdktypes.NewCoin(p.ProvidingDenom, p.SeedReserve), sdktypes.NewCoin(p.PairedDenom, p.SeedReserve)); err != nil {
		return nil, nil, fmt.Errorf("failed to seed pair: %w", err)
	}

	shop, err := candyshop.New(candyshop.Config{
		Address:  env.NewAddress(),
		Owner:    config.ShopOwner,
		Chain:    env,
		Store:    backend,
		Recorder: recorder,
		Clock:    env.Clock(),
	})
	if err != nil {
		return nil, nil, err
	}
	can, err := shop.CreateCan(ctx, config.ShopOwner, types.CanParams{
		FarmID:         farmID,
		Farm:           env.FarmAddress(),
		Router:         pair.Address,
		LiquidityDenom: pair.LPDenom,
		ProvidingDenom: p.ProvidingDenom,
		PairedDenom:    p.PairedDenom,
		RewardDenom:    env.RewardDenom(),
		Fee:            p.Fee,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := env.Mint(can.Address(), sdktypes.NewCoin(p.PairedDenom, p.PairedInventory)); err != nil {
		return nil, nil, err
	}

	if demoDeposit > 0 {
		amount, err := utils.ExpandDecimals(demoDeposit, 18)
		if err != nil {
			return nil, nil, err
		}
		depositor := env.NewAddress()
		if err := env.Mint(depositor, sdktypes.NewCoin(p.ProvidingDenom, amount)); err != nil {
			return nil, nil, err
		}
		if _, err := can.MintFor(ctx, depositor, depositor, amount); err != nil {
			return nil, nil, fmt.Errorf("failed to mint demo deposit: %w", err)
		}
		log.Info().Str("depositor", depositor.Hex()).Str("amount", amount.String()).Msg("Demo deposit minted")
	}

	log.Info().
		Str("shop", shop.Address().Hex()).
		Str("can", can.Address().Hex()).
		Str("lpDenom", pair.LPDenom).
		Msg("Reference chain ready")
	return env, shop, nil
}
