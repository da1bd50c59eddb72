package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/elys-network/candyshop/internal/logger"
)

var (
	ErrNotInitialized = errors.New("database not initialized")
	ErrInvalidReceipt = errors.New("invalid receipt")
)

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN returns the lib/pq connection string for cfg.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// Store persists cans, receipts and keeper cycles in PostgreSQL.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open connects to the database described by cfg.
func Open(ctx context.Context, cfg DBConfig) (*Store, error) {
	return OpenDSN(ctx, cfg.DSN())
}

// OpenDSN connects with a raw connection string and verifies the connection.
func OpenDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := NewStore(db)
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Msg("Successfully connected to the PostgreSQL database!")
	return s, nil
}

// NewStore wraps an open connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, logger: logger.GetForComponent("state")}
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.logger.Info().Msg("Closing database connection...")
	if err := s.db.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing database connection")
		return err
	}
	return nil
}

// Ping tests if the database connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS cans (
		can_address CHAR(42) PRIMARY KEY,
		owner_address CHAR(42) NOT NULL,
		fee_receiver CHAR(42) NOT NULL,
		revert_flag BOOLEAN NOT NULL DEFAULT FALSE,
		info JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS can_users (
		can_address CHAR(42) NOT NULL REFERENCES cans(can_address) ON DELETE CASCADE,
		user_address CHAR(42) NOT NULL,
		provided_amount NUMERIC(78, 0) NOT NULL,
		reward_debt NUMERIC(78, 0) NOT NULL,
		aggregated_reward NUMERIC(78, 0) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (can_address, user_address)
	);

	CREATE TABLE IF NOT EXISTS can_receipts (
		receipt_id UUID PRIMARY KEY,
		can_address CHAR(42) NOT NULL,
		kind VARCHAR(20) NOT NULL,
		caller_address CHAR(42) NOT NULL,
		recipient_address CHAR(42) NOT NULL,
		receipt_timestamp TIMESTAMPTZ NOT NULL,
		principal NUMERIC(78, 0) NOT NULL,
		liquidity_delta NUMERIC(78, 0) NOT NULL,
		harvested NUMERIC(78, 0) NOT NULL,
		reward_paid NUMERIC(78, 0) NOT NULL,
		fee_paid NUMERIC(78, 0) NOT NULL,
		acc_reward_per_share NUMERIC(78, 0) NOT NULL,
		transfers JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_can_receipts_timestamp ON can_receipts(receipt_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_can_receipts_can ON can_receipts(can_address);

	CREATE TABLE IF NOT EXISTS keeper_cycles (
		cycle_id UUID PRIMARY KEY,
		cycle_number INTEGER NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL,
		cans_total INTEGER NOT NULL,
		cans_failed INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_keeper_cycles_cycle ON keeper_cycles(cycle_number DESC);

	-- Cycle counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	-- Insert initial row if it doesn't exist
	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	s.logger.Info().Msg("Database schema ensured")
	return nil
}

// Tables lists every table owned by the store, children first.
var Tables = []string{"can_users", "can_receipts", "keeper_cycles", "cycle_counter", "cans"}

// DropSchema removes every table owned by the store.
func (s *Store) DropSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	for _, table := range Tables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE;"); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		s.logger.Info().Str("table", table).Msg("Dropped table")
	}
	return nil
}

// Reset drops every table and recreates the schema.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.DropSchema(ctx); err != nil {
		return err
	}
	return s.EnsureSchema(ctx)
}

// inTx runs fn inside a transaction that is rolled back when fn fails.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
