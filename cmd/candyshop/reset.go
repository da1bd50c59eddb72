package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/candyshop/internal/config"
	"github.com/elys-network/candyshop/internal/logger"
	"github.com/elys-network/candyshop/internal/state"
)

func newResetDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-db",
		Short: "Drop every persisted table and recreate the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Initialize(os.Getenv("LOG_LEVEL"))
			if err := config.LoadDatabaseConfig(); err != nil {
				return err
			}

			store, err := state.Open(cmd.Context(), config.Database)
			if err != nil {
				return fmt.Errorf("failed to initialize database connection: %w", err)
			}
			defer store.Close()

			log.Info().Str("host", config.Database.Host).Str("dbname", config.Database.DBName).Msg("Resetting database")
			if err := store.Reset(cmd.Context()); err != nil {
				return err
			}
			log.Info().Msg("Database reset complete!")
			return nil
		},
	}
}
