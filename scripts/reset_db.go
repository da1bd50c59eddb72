package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/candyshop/internal/config"
	"github.com/elys-network/candyshop/internal/logger"
	"github.com/elys-network/candyshop/internal/state"
)

func main() {
	// Initialize logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	if err := config.LoadDatabaseConfig(); err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}

	log.Info().
		Str("host", config.Database.Host).
		Int("port", config.Database.Port).
		Str("user", config.Database.User).
		Str("dbname", config.Database.DBName).
		Msg("Connecting to database")

	ctx := context.Background()
	store, err := state.Open(ctx, config.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer store.Close()

	log.Info().Strs("tables", state.Tables).Msg("Connected to database. Attempting to drop all tables...")
	if err := store.Reset(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to reset database")
	}

	log.Info().Msg("Database reset complete!")
}
