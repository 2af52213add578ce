package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/rickgao/tictactoe-sync/internal/api"
	"github.com/rickgao/tictactoe-sync/internal/auth"
	"github.com/rickgao/tictactoe-sync/internal/config"
	"github.com/rickgao/tictactoe-sync/internal/connection"
	"github.com/rickgao/tictactoe-sync/internal/database"
	"github.com/rickgao/tictactoe-sync/internal/journal"
	"github.com/rickgao/tictactoe-sync/internal/relay"
	"github.com/rickgao/tictactoe-sync/internal/version"
)

// app holds the components shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer

	creds *auth.Credentials // nil when running without a token
	api   *api.Client
	conns *connection.Manager

	pool    *pgxpool.Pool
	journal *journal.Writer
	nc      *nats.Conn
	relay   *relay.Relay

	health *http.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: logger, out: out}

	creds, err := auth.LoadCredentials(cfg.Auth.Token, cfg.Auth.TokenPath)
	switch {
	case errors.Is(err, auth.ErrNoToken):
		logger.Warn("no access token configured, running as a spectator")
	case err != nil:
		return nil, fmt.Errorf("load credentials: %w", err)
	default:
		a.creds = creds
		logger.Info("authenticated", "user_id", creds.Subject)
	}

	// A nil *Credentials must not become a non-nil TokenSource.
	var tokens auth.TokenSource
	if a.creds != nil {
		tokens = a.creds
	}

	a.api = api.NewClient(
		cfg.API.RestURL,
		tokens,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithUserAgent(version.UserAgent()),
	)

	connCfg := connection.DefaultManagerConfig()
	connCfg.BaseURL = cfg.API.WSURL
	connCfg.Tokens = tokens
	connCfg.UserAgent = version.UserAgent()
	connCfg.ReconnectDelay = cfg.Connection.ReconnectDelay
	connCfg.MaxReconnectAttempts = cfg.Connection.MaxReconnectAttempts
	connCfg.PingInterval = cfg.Connection.PingInterval
	connCfg.ReadTimeout = cfg.Connection.ReadTimeout
	connCfg.WriteTimeout = cfg.Connection.WriteTimeout
	connCfg.HandshakeTimeout = cfg.Connection.HandshakeTimeout
	connCfg.BufferSize = cfg.Connection.BufferSize
	a.conns = connection.NewManager(connCfg, connection.WithLogger(logger))

	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)
		pool, err := database.ConnectJournal(ctx, cfg.Journal.Database)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.journal = journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)
		if err := a.journal.Start(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("start journal: %w", err)
		}
	}

	if cfg.Relay.Enabled {
		relayCfg := relay.Config{
			URL:           cfg.Relay.URL,
			SubjectPrefix: cfg.Relay.SubjectPrefix,
			MaxReconnects: cfg.Relay.MaxReconnects,
			ReconnectWait: cfg.Relay.ReconnectWait,
		}
		nc, err := relay.Connect(relayCfg, logger)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.nc = nc
		a.relay = relay.New(relayCfg, nc, logger)
		logger.Info("relay connected", "url", nc.ConnectedUrl(), "prefix", relayCfg.SubjectPrefix)
	}

	return a, nil
}

// actorID is the local player's user id, or "" for a spectator.
func (a *app) actorID() string {
	if a.creds == nil {
		return ""
	}
	return a.creds.Subject
}

// serveHealth starts the health endpoint unless it is disabled (port 0).
func (a *app) serveHealth(h http.Handler) {
	if a.cfg.Health.Port == 0 {
		return
	}
	a.health = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Health.Port),
		Handler: h,
	}
	go func() {
		a.logger.Info("starting health server", "port", a.cfg.Health.Port)
		if err := a.health.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("health server error", "error", err)
		}
	}()
}

// close shuts components down in reverse order of creation.
func (a *app) close(ctx context.Context) {
	if a.health != nil {
		a.health.Shutdown(ctx)
	}
	if a.conns != nil {
		if err := a.conns.Stop(ctx); err != nil {
			a.logger.Warn("connection manager stop timed out", "error", err)
		}
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.nc.Close()
		}
	}
	if a.journal != nil {
		if err := a.journal.Stop(ctx); err != nil {
			a.logger.Warn("journal stop timed out", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
