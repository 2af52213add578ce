// tttsync keeps a local view of tic-tac-toe games in sync with the game
// server and lets the local player move from the terminal.
//
// Usage:
//
//	tttsync [flags] play <game_id>     follow a game and read moves ("row col") from stdin
//	tttsync [flags] watch <game_id>    follow a game without moving
//	tttsync [flags] create             create a game and play it
//	tttsync [flags] join <game_id>     join a waiting game and play it
//	tttsync [flags] moves <game_id>    print a game's move history
//	tttsync [flags] my-games [status]  list your games
//	tttsync [flags] lobby              follow the waiting-games list
//
// The access token is read from auth.token / auth.token_path in the config,
// which may reference ${TTT_TOKEN} from the environment or a .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/tictactoe-sync/internal/config"
	"github.com/rickgao/tictactoe-sync/internal/version"
)

var errUsage = errors.New("usage")

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	logLevel := flag.String("log-level", "", "override log.level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	if err := config.LoadEnvFiles(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	// Logs go to stderr; the board and notices go to stdout.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Debug("starting tttsync",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"rest_url", cfg.API.RestURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			usage()
			os.Exit(2)
		}
		logger.Error("tttsync failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.LoadAndValidate(path)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	if cmd == "version" {
		fmt.Println(version.String())
		return nil
	}

	a, err := newApp(ctx, cfg, logger, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		a.close(shutdownCtx)
	}()

	switch cmd {
	case "play", "watch":
		if len(args) != 1 {
			return errUsage
		}
		return a.runGame(ctx, args[0], cmd == "play", os.Stdin)
	case "create":
		return a.create(ctx, os.Stdin)
	case "join":
		if len(args) != 1 {
			return errUsage
		}
		return a.join(ctx, args[0], os.Stdin)
	case "moves":
		if len(args) != 1 {
			return errUsage
		}
		return a.moves(ctx, args[0])
	case "my-games":
		status := ""
		if len(args) > 0 {
			status = args[0]
		}
		return a.myGames(ctx, status)
	case "lobby":
		return a.lobby(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: tttsync [flags] <command> [args]

commands:
  play <game_id>     follow a game and read moves ("row col") from stdin
  watch <game_id>    follow a game without moving
  create             create a game and play it
  join <game_id>     join a waiting game and play it
  moves <game_id>    print a game's move history
  my-games [status]  list your games (waiting, active, finished, cancelled)
  lobby              follow the waiting-games list
  version            print the build version

flags:
`)
	flag.PrintDefaults()
}
