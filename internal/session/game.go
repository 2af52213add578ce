package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tictactoe-sync/internal/action"
	"github.com/rickgao/tictactoe-sync/internal/connection"
	"github.com/rickgao/tictactoe-sync/internal/dispatch"
	"github.com/rickgao/tictactoe-sync/internal/model"
	"github.com/rickgao/tictactoe-sync/internal/notify"
	"github.com/rickgao/tictactoe-sync/internal/poller"
	"github.com/rickgao/tictactoe-sync/internal/reconcile"
)

// Games is the request/response surface a game session needs.
type Games interface {
	GetGame(ctx context.Context, id string) (model.Game, error)
	MakeMove(ctx context.Context, id string, row, col int) (model.Game, error)
}

// GameConfig holds game session configuration.
type GameConfig struct {
	GameID  string
	ActorID string // Local player; empty for a spectator

	// Poll enables the fallback poller while the push channel is down.
	Poll   bool
	Poller poller.Config
}

// GameStats is a point-in-time view of a session's components.
type GameStats struct {
	GameID     string
	Connection connection.SubscriptionStats
	Dispatch   dispatch.Stats
	View       reconcile.Stats
	Poller     poller.Stats
	Version    string // View's UpdatedAt, RFC 3339; empty before the first fetch
	Status     model.Status
	Finished   bool
}

// GameOption configures a Game.
type GameOption func(*Game)

// WithObservers adds reconcile observers (journal, relay) after the
// Notification Gate.
func WithObservers(obs ...reconcile.Observer) GameOption {
	return func(g *Game) {
		g.observers = append(g.observers, obs...)
	}
}

// WithPollerOptions passes options to the fallback poller.
func WithPollerOptions(opts ...poller.Option) GameOption {
	return func(g *Game) {
		g.pollerOpts = append(g.pollerOpts, opts...)
	}
}

// Game is a live session for one game.
type Game struct {
	cfg    GameConfig
	games  Games
	conns  *connection.Manager
	logger *slog.Logger

	view       *reconcile.Reconciler
	notices    *notify.Gate
	actions    *action.Gate
	dispatcher *dispatch.Dispatcher
	observers  []reconcile.Observer
	pollerOpts []poller.Option

	mu       sync.Mutex
	sub      *connection.Subscription
	poller   *poller.Poller
	finished bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewGame creates a session for cfg.GameID. Notices for the local player go
// to sink, which may be nil.
func NewGame(cfg GameConfig, games Games, conns *connection.Manager, sink notify.Sink, logger *slog.Logger, opts ...GameOption) *Game {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("game_id", cfg.GameID)

	g := &Game{
		cfg:    cfg,
		games:  games,
		conns:  conns,
		logger: logger,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.notices = notify.NewGate(cfg.ActorID, sink, logger)

	rOpts := []reconcile.Option{
		reconcile.WithObserver(g.notices),
		reconcile.OnTerminal(g.finish),
	}
	for _, o := range g.observers {
		rOpts = append(rOpts, reconcile.WithObserver(o))
	}
	g.view = reconcile.New(cfg.GameID, logger, rOpts...)

	g.actions = action.New(cfg.ActorID, games, g.view, g.notices, logger)

	g.dispatcher = dispatch.New(logger)
	g.dispatcher.HandleFunc(dispatch.KindSnapshot, g.onSnapshot)
	g.dispatcher.HandleFunc(dispatch.KindCreated, g.onUpdate)
	g.dispatcher.HandleFunc(dispatch.KindUpdated, g.onUpdate)
	g.dispatcher.HandleFunc(dispatch.KindPeerJoined, g.onPeerJoined)
	g.dispatcher.HandleFunc(dispatch.KindControl, func(dispatch.Event) {})
	g.dispatcher.HandleFunc(dispatch.KindUnknown, g.onUnknown)

	return g
}

// Start fetches the game and, unless it is already over, opens its push
// channel.
func (g *Game) Start(ctx context.Context) error {
	game, err := g.games.GetGame(ctx, g.cfg.GameID)
	if err != nil {
		return fmt.Errorf("load game: %w", err)
	}

	// A terminal game fires the terminal hook here, which finishes the session.
	if _, err := g.view.Reset(game, reconcile.SourcePull); err != nil {
		return fmt.Errorf("load game: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.finished {
		g.logger.Info("game already over, not subscribing", "status", game.Status)
		return nil
	}

	g.sub = g.conns.Open(connection.GameTopic(g.cfg.GameID), g.dispatcher.Dispatch, g.onConnectionError)

	if g.cfg.Poll {
		g.poller = poller.New(g.cfg.Poller, g.cfg.GameID, g.games, g.view, g.sub, g.logger, g.pollerOpts...)
		if err := g.poller.Start(ctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
	}

	return nil
}

// SubmitMove submits a move for the local player through the Action Gate.
func (g *Game) SubmitMove(ctx context.Context, row, col int) error {
	return g.actions.SubmitMove(ctx, row, col)
}

// CheckMove reports whether the local player may move at row, col now.
func (g *Game) CheckMove(row, col int) error {
	_, err := g.actions.Check(row, col)
	return err
}

// View returns the reconciled game.
func (g *Game) View() (model.Game, bool) {
	return g.view.View()
}

// Done is closed once the game is over and its channel has been closed, or
// the session is closed.
func (g *Game) Done() <-chan struct{} {
	return g.done
}

// Close tears the session down. Safe to call more than once.
func (g *Game) Close(ctx context.Context) error {
	g.mu.Lock()
	g.finished = true
	sub := g.sub
	p := g.poller
	g.mu.Unlock()

	g.doneOnce.Do(func() { close(g.done) })

	if p != nil {
		if err := p.Stop(ctx); err != nil {
			return fmt.Errorf("stop poller: %w", err)
		}
	}
	if sub != nil {
		sub.Close()
		if err := sub.Wait(ctx); err != nil {
			return fmt.Errorf("close subscription: %w", err)
		}
	}
	return nil
}

// Stats returns current session statistics.
func (g *Game) Stats() GameStats {
	stats := GameStats{
		GameID:   g.cfg.GameID,
		Dispatch: g.dispatcher.Stats(),
		View:     g.view.Stats(),
	}

	g.mu.Lock()
	sub, p := g.sub, g.poller
	stats.Finished = g.finished
	g.mu.Unlock()

	if sub != nil {
		stats.Connection = sub.Stats()
	}
	if p != nil {
		stats.Poller = p.Stats()
	}
	if game, ok := g.view.View(); ok {
		stats.Version = game.UpdatedAt.Format(time.RFC3339Nano)
		stats.Status = game.Status
	}
	return stats
}

// finish is the reconciler's terminal hook: the game is over, so the push
// channel is no longer needed.
func (g *Game) finish(game model.Game) {
	g.mu.Lock()
	if g.finished {
		g.mu.Unlock()
		return
	}
	g.finished = true
	sub := g.sub
	g.mu.Unlock()

	g.logger.Info("game over, closing channel", "status", game.Status, "winner_id", game.WinnerID)
	if sub != nil {
		sub.Close()
	}
	g.doneOnce.Do(func() { close(g.done) })
}

func (g *Game) onSnapshot(ev dispatch.Event) {
	gs, ok := ev.(dispatch.GameState)
	if !ok {
		g.logger.Debug("ignoring snapshot for another view", "event", ev.Name())
		return
	}
	if _, err := g.view.Reset(gs.Game, reconcile.SourceSnapshot); err != nil {
		g.logger.Debug("snapshot not applied", "error", err)
	}
}

func (g *Game) onUpdate(ev dispatch.Event) {
	game, ok := dispatch.GameOf(ev)
	if !ok {
		return
	}
	if _, err := g.view.Merge(game, reconcile.SourcePush); err != nil {
		g.logger.Debug("push not merged", "event", ev.Name(), "error", err)
	}
}

func (g *Game) onPeerJoined(ev dispatch.Event) {
	pj, ok := ev.(dispatch.PlayerJoined)
	if !ok {
		return
	}
	// The join is announced even when the carried game is stale.
	if _, err := g.view.Merge(pj.Game, reconcile.SourcePush); err != nil {
		g.logger.Debug("push not merged", "event", ev.Name(), "error", err)
	}
	g.notices.PeerJoined(pj.Game.ID, pj.PlayerID)
}

func (g *Game) onUnknown(ev dispatch.Event) {
	g.logger.Info("unhandled event", "event", ev.Name())
}

func (g *Game) onConnectionError(err error) {
	g.logger.Warn("game channel error", "error", err)
	g.notices.ConnectionError(g.cfg.GameID, err)
}
