package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ConnectionConfig holds database connection pool configuration.
type ConnectionConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultConnectionConfig returns the default connection pool configuration.
// The dispatcher holds a connection only for short single-row statements, so
// the pool is smaller than a typical API service.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    15,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// ErrMissingDSN is returned by Open when DATABASE_URL is empty.
var ErrMissingDSN = errors.New("DATABASE_URL not set")

// Open creates the delivery log connection pool from DATABASE_URL, applies
// the DB_* pool overrides and verifies connectivity with a ping.
func Open(ctx context.Context) (*sql.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, ErrMissingDSN
	}
	return OpenDSN(ctx, dsn, getConnectionConfigFromEnv())
}

// OpenDSN is Open with an explicit DSN and pool configuration.
func OpenDSN(ctx context.Context, dsn string, cfg ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	slog.Info("database connection pool configured",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", cfg.ConnMaxIdleTime))

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}

// getConnectionConfigFromEnv reads connection pool configuration from environment variables.
// Invalid or non-positive values keep the defaults.
func getConnectionConfigFromEnv() ConnectionConfig {
	cfg := DefaultConnectionConfig()

	if v, ok := positiveIntEnv("DB_MAX_OPEN_CONNS"); ok {
		cfg.MaxOpenConns = v
	}
	if v, ok := positiveIntEnv("DB_MAX_IDLE_CONNS"); ok {
		cfg.MaxIdleConns = v
	}
	if v, ok := positiveDurationEnv("DB_CONN_MAX_LIFETIME"); ok {
		cfg.ConnMaxLifetime = v
	}
	if v, ok := positiveDurationEnv("DB_CONN_MAX_IDLE_TIME"); ok {
		cfg.ConnMaxIdleTime = v
	}
	if cfg.MaxIdleConns > cfg.MaxOpenConns {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}

	return cfg
}

func positiveIntEnv(key string) (int, bool) {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil || val <= 0 {
		return 0, false
	}
	return val, true
}

func positiveDurationEnv(key string) (time.Duration, bool) {
	val, err := time.ParseDuration(os.Getenv(key))
	if err != nil || val <= 0 {
		return 0, false
	}
	return val, true
}
