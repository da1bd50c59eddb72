package config

import (
	"github.com/rs/zerolog/log"

	"github.com/elys-network/candyshop/internal/state"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port the read-only API listens on.
	WebPort string

	// DBEnabled selects the PostgreSQL store; when false everything is kept in memory.
	DBEnabled bool
	// Database holds the PostgreSQL connection settings, only read when DBEnabled is set.
	Database state.DBConfig
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	var err error
	DBEnabled, err = getEnvAsBool("DB_ENABLED", false)
	if err != nil {
		return err
	}
	if !DBEnabled {
		Database = state.DBConfig{}
		return nil
	}

	return LoadDatabaseConfig()
}

// LoadDatabaseConfig reads the DB_* variables into Database. Host, user and
// database name are required.
func LoadDatabaseConfig() error {
	var err error

	if Database.Host, err = getEnv("DB_HOST"); err != nil {
		return err
	}
	port, err := getEnvAsUint64("DB_PORT", 5432)
	if err != nil {
		return err
	}
	Database.Port = int(port)
	if Database.User, err = getEnv("DB_USER"); err != nil {
		return err
	}
	Database.Password = getEnvOrDefault("DB_PASSWORD", "")
	if Database.DBName, err = getEnv("DB_NAME"); err != nil {
		return err
	}
	Database.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	log.Debug().
		Str("Host", Database.Host).
		Int("Port", Database.Port).
		Str("DBName", Database.DBName).
		Msg("Database configuration loaded.")
	return nil
}
