// streamtest connects to a game server push channel and prints decoded events
// to the console.
// Usage: go run ./cmd/streamtest --config configs/tttsync.example.yaml [--game <id>]
//
// Without --game it follows the waiting-games channel. The access token is
// optional and read from auth.token / auth.token_path (e.g. TTT_TOKEN).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/tictactoe-sync/internal/auth"
	"github.com/rickgao/tictactoe-sync/internal/config"
	"github.com/rickgao/tictactoe-sync/internal/connection"
	"github.com/rickgao/tictactoe-sync/internal/dispatch"
	"github.com/rickgao/tictactoe-sync/internal/notify"
	"github.com/rickgao/tictactoe-sync/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/tttsync.example.yaml", "path to config file")
	gameID := flag.String("game", "", "game to follow (default: waiting-games channel)")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := config.LoadEnvFiles(".env"); err != nil {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	var tokens auth.TokenSource
	creds, err := auth.LoadCredentials(cfg.Auth.Token, cfg.Auth.TokenPath)
	switch {
	case errors.Is(err, auth.ErrNoToken):
		logger.Info("no access token, connecting anonymously")
	case err != nil:
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	default:
		tokens = creds
		logger.Info("using access token", "user_id", creds.Subject)
	}

	connCfg := connection.DefaultManagerConfig()
	connCfg.BaseURL = cfg.API.WSURL
	connCfg.Tokens = tokens
	connCfg.UserAgent = version.UserAgent()
	connCfg.ReconnectDelay = cfg.Connection.ReconnectDelay
	connCfg.PingInterval = cfg.Connection.PingInterval
	connCfg.ReadTimeout = cfg.Connection.ReadTimeout

	connMgr := connection.NewManager(connCfg, connection.WithLogger(logger))

	// Decoded events are queued so the read loop never waits on the console.
	events := notify.NewQueue[dispatch.Event](1000)
	queue := dispatch.HandlerFunc(func(ev dispatch.Event) { events.Push(ev) })

	dispatcher := dispatch.New(logger)
	for _, kind := range []dispatch.Kind{
		dispatch.KindSnapshot,
		dispatch.KindCreated,
		dispatch.KindUpdated,
		dispatch.KindRemoved,
		dispatch.KindPeerJoined,
		dispatch.KindControl,
		dispatch.KindUnknown,
	} {
		dispatcher.Handle(kind, queue)
	}

	topic := connection.WaitingGamesTopic()
	if *gameID != "" {
		topic = connection.GameTopic(*gameID)
	}

	logger.Info("opening channel", "topic", topic.Name, "url", cfg.API.WSURL+topic.Path)
	sub := connMgr.Open(topic, dispatcher.Dispatch, func(err error) {
		logger.Warn("channel error", "error", err)
	})

	// Start console printer
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		printEvents(events, *verbose)
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				subStats := sub.Stats()
				dispStats := dispatcher.Stats()
				logger.Info("stats",
					"state", subStats.State,
					"connects", subStats.Connects,
					"reconnects", subStats.Reconnects,
					"frames", dispStats.FramesReceived,
					"routed", dispStats.EventsRouted,
					"decode_errors", dispStats.DecodeErrors,
					"unknown", dispStats.UnknownEvents,
					"queued", events.Len(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if err := connMgr.Stop(shutdownCtx); err != nil {
		logger.Warn("connection manager stop timed out", "error", err)
	}
	events.Close()
	<-printerDone

	logger.Info("shutdown complete")
}

func printEvents(events *notify.Queue[dispatch.Event], verbose bool) {
	for {
		ev, ok := events.Pop()
		if !ok {
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(ev, "", "  ")
			fmt.Printf("[%s] %s\n", ev.Name(), data)
			continue
		}

		switch e := ev.(type) {
		case dispatch.GamesList:
			fmt.Printf("[GAMES_LIST] count=%d\n", len(e.Games))
		case dispatch.WaitingGameRemoved:
			fmt.Printf("[WAITING_GAME_REMOVED] id=%s\n", e.GameID)
		case dispatch.PlayerJoined:
			fmt.Printf("[PLAYER_JOINED] id=%s player=%s status=%s\n", e.Game.ID, e.PlayerID, e.Game.Status)
		case dispatch.Pong:
			fmt.Println("[PONG]")
		case dispatch.Unknown:
			fmt.Printf("[UNKNOWN] event=%s game=%s bytes=%d\n", e.Event, e.GameID, len(e.Data))
		default:
			g, _ := dispatch.GameOf(ev)
			fmt.Printf("[%s] id=%s status=%s turn=%s winner=%s updated=%s\n",
				ev.Name(), g.ID, g.Status, g.CurrentTurn, g.WinnerID, g.UpdatedAt.Format(time.RFC3339Nano))
		}
	}
}
