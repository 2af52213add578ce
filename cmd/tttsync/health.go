package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/tictactoe-sync/internal/connection"
	"github.com/rickgao/tictactoe-sync/internal/journal"
	"github.com/rickgao/tictactoe-sync/internal/relay"
	"github.com/rickgao/tictactoe-sync/internal/session"
)

// Pinger is the database check the health endpoint runs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthDeps are the components reported by /health. Nil fields are omitted.
type healthDeps struct {
	game    func() session.GameStats
	db      Pinger
	journal func() journal.Stats
	relay   func() relay.Stats
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(deps healthDeps, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Push channel. A finished game is expected to be disconnected.
		if deps.game != nil {
			stats := deps.game()
			health.Components["game"] = map[string]interface{}{
				"id":       stats.GameID,
				"status":   stats.Status,
				"version":  stats.Version,
				"finished": stats.Finished,
			}
			health.Components["connection"] = map[string]interface{}{
				"state":      stats.Connection.State.String(),
				"connects":   stats.Connection.Connects,
				"reconnects": stats.Connection.Reconnects,
				"exhausted":  stats.Connection.Exhausted,
			}
			health.Components["dispatch"] = stats.Dispatch

			if !stats.Finished && stats.Connection.State != connection.StateConnected {
				health.Status = "degraded"
			}
			if stats.Connection.Exhausted {
				health.Status = "unhealthy"
			}
		}

		// Journal database
		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["journal_db"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["journal_db"] = "connected"
			}
		}
		if deps.journal != nil {
			health.Components["journal"] = deps.journal()
		}
		if deps.relay != nil {
			health.Components["relay"] = deps.relay()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("health response not written", "error", err)
		}
	})

	mux.HandleFunc("/debug/game", func(w http.ResponseWriter, r *http.Request) {
		if deps.game == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(deps.game())
	})

	return mux
}
