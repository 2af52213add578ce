package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tictactoe-sync/internal/api"
	"github.com/rickgao/tictactoe-sync/internal/model"
	"github.com/rickgao/tictactoe-sync/internal/notify"
	"github.com/rickgao/tictactoe-sync/internal/poller"
	"github.com/rickgao/tictactoe-sync/internal/reconcile"
	"github.com/rickgao/tictactoe-sync/internal/session"
)

var errNoToken = errors.New("this command needs an access token (auth.token or auth.token_path)")

// runGame follows one game until it is over or ctx is cancelled. When play is
// set, moves are read from in as "row col" lines.
func (a *app) runGame(ctx context.Context, gameID string, play bool, in io.Reader) error {
	actor := ""
	if play {
		if a.creds == nil {
			return errNoToken
		}
		actor = a.actorID()
	}

	con := newConsole(a.out)
	defer con.Close()

	var sink notify.Sink = con
	observers := []reconcile.Observer{con}
	if a.journal != nil {
		observers = append(observers, a.journal)
	}
	if a.relay != nil {
		sink = notify.Tee(con, a.relay)
		observers = append(observers, a.relay)
	}

	game := session.NewGame(session.GameConfig{
		GameID:  gameID,
		ActorID: actor,
		Poll:    a.cfg.Poller.Enabled,
		Poller: poller.Config{
			Interval: a.cfg.Poller.Interval,
			Timeout:  a.cfg.Poller.Timeout,
		},
	}, a.api, a.conns, sink, a.logger, session.WithObservers(observers...))

	if err := game.Start(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := game.Close(closeCtx); err != nil {
			a.logger.Warn("game session close", "error", err)
		}
	}()

	a.serveHealth(createHealthHandler(a.healthDeps(game.Stats), a.logger))

	gctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(gctx)

	g.Go(func() error {
		select {
		case <-game.Done():
		case <-gctx.Done():
		}
		stop()
		return nil
	})

	if play {
		lines := make(chan string)
		go scanLines(in, lines)
		g.Go(func() error {
			return readMoves(gctx, game, lines, con, a.logger)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if view, ok := game.View(); ok && view.IsTerminal() {
		a.logger.Info("game over", "game_id", gameID, "status", view.Status, "winner_id", view.WinnerID)
	}
	return nil
}

// scanLines feeds lines from in to out and closes out at EOF. It is not
// tied to a context because a read from stdin cannot be interrupted.
func scanLines(in io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// readMoves submits each move line until ctx is done. Rejections are already
// surfaced as notices by the session.
func readMoves(ctx context.Context, game *session.Game, lines <-chan string, con *console, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// Input closed; keep following the game.
				lines = nil
				continue
			}
			if line == "" {
				continue
			}
			row, col, err := parseMove(line)
			if err != nil {
				con.Printf("! %v\n", err)
				continue
			}
			if err := game.SubmitMove(ctx, row, col); err != nil {
				// Already shown as a notice.
				logger.Debug("move not made", "row", row, "col", col, "error", err)
			}
		}
	}
}

func (a *app) healthDeps(stats func() session.GameStats) healthDeps {
	deps := healthDeps{game: stats}
	// Leave nil interfaces nil.
	if a.pool != nil {
		deps.db = a.pool
	}
	if a.journal != nil {
		deps.journal = a.journal.Stats
	}
	if a.relay != nil {
		deps.relay = a.relay.Stats
	}
	return deps
}

func (a *app) create(ctx context.Context, in io.Reader) error {
	if a.creds == nil {
		return errNoToken
	}
	game, err := a.api.CreateGame(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created game %s, waiting for an opponent\n", game.ID)
	return a.runGame(ctx, game.ID, true, in)
}

func (a *app) join(ctx context.Context, gameID string, in io.Reader) error {
	if a.creds == nil {
		return errNoToken
	}
	game, err := a.api.JoinGame(ctx, gameID)
	if err != nil {
		return err
	}
	sym, _ := game.SymbolOf(a.actorID())
	fmt.Fprintf(a.out, "joined game %s as %s\n", game.ID, sym)
	return a.runGame(ctx, game.ID, true, in)
}

func (a *app) moves(ctx context.Context, gameID string) error {
	moves, err := a.api.GetGameMoves(ctx, gameID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPLAYER\tSYMBOL\tCELL\tAT")
	for _, m := range moves {
		fmt.Fprintf(w, "%d\t%s\t%s\t(%d,%d)\t%s\n",
			m.MoveNumber, m.PlayerID, m.Symbol, m.Row, m.Col, m.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func (a *app) myGames(ctx context.Context, status string) error {
	if a.creds == nil {
		return errNoToken
	}
	st := model.Status(status)
	if st != "" && !st.Valid() {
		return fmt.Errorf("%w: unknown status %q", errUsage, status)
	}

	page, err := a.api.ListMyGames(ctx, st, api.ListOptions{Limit: session.LobbyPageSize})
	if err != nil {
		return err
	}
	printGames(a.out, page.Items)
	if page.Pagination.Total > len(page.Items) {
		fmt.Fprintf(a.out, "(%d of %d)\n", len(page.Items), page.Pagination.Total)
	}
	return nil
}

// lobby follows the waiting-games list until ctx is cancelled.
func (a *app) lobby(ctx context.Context) error {
	con := newConsole(a.out)
	defer con.Close()

	lobby := session.NewLobby(a.api, a.conns, func(games []model.Game) {
		con.Printf("waiting games: %d\n", len(games))
		for _, g := range games {
			con.Printf("  %s  X=%s  created %s\n", g.ID, g.PlayerX, g.CreatedAt.Format(time.RFC3339))
		}
	}, a.logger)

	if err := lobby.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return lobby.Close(closeCtx)
}

func printGames(out io.Writer, games []model.Game) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tX\tO\tUPDATED")
	for _, g := range games {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			g.ID, g.Status, g.PlayerX, g.PlayerO, g.UpdatedAt.Format(time.RFC3339))
	}
	w.Flush()
}
