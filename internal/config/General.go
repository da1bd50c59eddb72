package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is the minimum level written by the logger (trace, debug, info, warn, error).
	LogLevel string

	// ShopOwner is the account that owns the CandyShop and creates cans.
	ShopOwner common.Address

	// HeartbeatInterval is the period between two keeper cycles.
	HeartbeatInterval time.Duration
	// KeeperParallelism bounds how many cans the keeper updates at once.
	KeeperParallelism int
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// SHOP_OWNER is required; every other key has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	owner, err := getEnv("SHOP_OWNER")
	if err != nil {
		return err
	}
	if !common.IsHexAddress(owner) {
		return errors.New("environment variable SHOP_OWNER must be a hex address, got: " + owner)
	}
	ShopOwner = common.HexToAddress(owner)

	HeartbeatInterval, err = getEnvAsDuration("HEARTBEAT_INTERVAL", time.Minute)
	if err != nil {
		return err
	}
	if HeartbeatInterval <= 0 {
		return errors.New("environment variable HEARTBEAT_INTERVAL must be positive")
	}

	parallelism, err := getEnvAsUint64("KEEPER_PARALLELISM", 4)
	if err != nil {
		return err
	}
	if parallelism == 0 {
		return errors.New("environment variable KEEPER_PARALLELISM must be positive")
	}
	KeeperParallelism = int(parallelism)

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("ShopOwner", ShopOwner.Hex()).
		Dur("HeartbeatInterval", HeartbeatInterval).
		Str("WebPort", WebPort).
		Bool("DBEnabled", DBEnabled).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if invalid.
func getEnvAsUint64(key string, fallback uint64) (uint64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool retrieves an environment variable as a bool. Returns error if invalid.
func getEnvAsBool(key string, fallback bool) (bool, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration such as "30s". Returns error if invalid.
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
