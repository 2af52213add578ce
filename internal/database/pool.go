package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/tictactoe-sync/internal/config"
)

// Schema creates the journal table if it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS game_versions (
	id           UUID PRIMARY KEY,
	game_id      TEXT        NOT NULL,
	source       TEXT        NOT NULL,
	status       TEXT        NOT NULL,
	prev_status  TEXT,
	current_turn TEXT,
	winner_id    TEXT,
	board        JSONB       NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	received_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS game_versions_game_id_updated_at
	ON game_versions (game_id, updated_at);
`

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// ConnectJournal connects and makes sure the journal table exists.
func ConnectJournal(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return pool, nil
}
