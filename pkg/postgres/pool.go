// Package postgres provides the juridical recorder store on PostgreSQL
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool with recorder query methods
type Pool struct {
	*pgxpool.Pool
}

// Config holds PostgreSQL connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// Pool settings
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
	HealthCheck time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        5432,
		Database:    "evc",
		User:        "evc",
		Password:    "evc",
		SSLMode:     "disable",
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: 30 * time.Minute,
		HealthCheck: time.Minute,
	}
}

// ConnectionString builds a PostgreSQL connection string
func (c Config) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// NewPool creates a new PostgreSQL connection pool
func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLife
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdle
	poolCfg.HealthCheckPeriod = cfg.HealthCheck

	return connect(ctx, poolCfg)
}

// NewPoolFromURL creates a pool from a connection URL
func NewPoolFromURL(ctx context.Context, url string) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}
	return connect(ctx, poolCfg)
}

func connect(ctx context.Context, poolCfg *pgxpool.Config) (*Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS brake_commands (
	id              UUID PRIMARY KEY,
	source          TEXT NOT NULL,
	cycle           BIGINT NOT NULL,
	service_brake   BOOLEAN NOT NULL,
	emergency_brake BOOLEAN NOT NULL,
	traction_cut    BOOLEAN NOT NULL,
	reasons         TEXT[] NOT NULL DEFAULT '{}',
	recorded_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS brake_commands_recorded_at ON brake_commands (recorded_at DESC);

CREATE TABLE IF NOT EXISTS faults (
	id          UUID PRIMARY KEY,
	source      TEXT NOT NULL,
	cycle       BIGINT NOT NULL,
	kind        TEXT NOT NULL,
	balise_group TEXT NOT NULL DEFAULT '',
	reaction    TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS faults_recorded_at ON faults (recorded_at DESC);

CREATE TABLE IF NOT EXISTS supervision_transitions (
	id           UUID PRIMARY KEY,
	source       TEXT NOT NULL,
	cycle        BIGINT NOT NULL,
	mode         TEXT NOT NULL,
	level        TEXT NOT NULL,
	monitoring   TEXT NOT NULL,
	supervision  TEXT NOT NULL,
	est_front    DOUBLE PRECISION NOT NULL,
	speed        DOUBLE PRECISION NOT NULL,
	permitted    DOUBLE PRECISION NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS supervision_transitions_recorded_at ON supervision_transitions (recorded_at DESC);
`

// Migrate creates the recorder tables when missing
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// ClearAllResult contains the counts of deleted records per table
type ClearAllResult struct {
	BrakeCommands int64
	Faults        int64
	Transitions   int64
}

// ClearAll deletes every record in one transaction
func (p *Pool) ClearAll(ctx context.Context) (*ClearAllResult, error) {
	tx, err := p.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result := &ClearAllResult{}
	var tag pgconn.CommandTag

	tag, err = tx.Exec(ctx, "DELETE FROM brake_commands")
	if err != nil {
		return nil, fmt.Errorf("failed to delete from brake_commands: %w", err)
	}
	result.BrakeCommands = tag.RowsAffected()

	tag, err = tx.Exec(ctx, "DELETE FROM faults")
	if err != nil {
		return nil, fmt.Errorf("failed to delete from faults: %w", err)
	}
	result.Faults = tag.RowsAffected()

	tag, err = tx.Exec(ctx, "DELETE FROM supervision_transitions")
	if err != nil {
		return nil, fmt.Errorf("failed to delete from supervision_transitions: %w", err)
	}
	result.Transitions = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// Health checks if the database connection is healthy
func (p *Pool) Health(ctx context.Context) error {
	return p.Ping(ctx)
}
