package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rickgao/tictactoe-sync/internal/model"
	"github.com/rickgao/tictactoe-sync/internal/reconcile"
)

// GameSource fetches the authoritative game.
type GameSource interface {
	GetGame(ctx context.Context, id string) (model.Game, error)
}

// View is the reconciled state fetched games are merged into.
type View interface {
	View() (model.Game, bool)
	Merge(candidate model.Game, src reconcile.Source) (reconcile.Result, error)
}

// Link reports whether the push channel is currently delivering updates.
type Link interface {
	IsConnected() bool
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 10s)
	Timeout  time.Duration // Per-request timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Stats holds poller counters.
type Stats struct {
	Polls   int64 // Requests made
	Skipped int64 // Ticks skipped because the push channel was up
	Applied int64 // Polls that advanced the view
	Errors  int64
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock driving the poll ticker.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Poller) {
		p.clock = clock
	}
}

// Poller periodically fetches one game while its push channel is down.
type Poller struct {
	cfg    Config
	gameID string
	games  GameSource
	view   View
	link   Link
	clock  clockwork.Clock
	logger *slog.Logger

	polls   atomic.Int64
	skipped atomic.Int64
	applied atomic.Int64
	errors  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. link may be nil, in which case every tick polls.
func New(cfg Config, gameID string, games GameSource, view View, link Link, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		cfg:    cfg,
		gameID: gameID,
		games:  games,
		view:   view,
		link:   link,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("game poller started",
		"game_id", p.gameID,
		"interval", p.cfg.Interval,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("game poller stopped", "game_id", p.gameID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current poller counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Polls:   p.polls.Load(),
		Skipped: p.skipped.Load(),
		Applied: p.applied.Load(),
		Errors:  p.errors.Load(),
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.Chan():
			if p.link != nil && p.link.IsConnected() {
				p.skipped.Add(1)
				continue
			}
			if g, ok := p.view.View(); ok && g.IsTerminal() {
				p.logger.Debug("game is terminal, stopping poller", "game_id", p.gameID)
				return
			}
			if err := p.poll(); err != nil {
				p.errors.Add(1)
				p.logger.Warn("failed to poll game",
					"game_id", p.gameID,
					"err", err,
				)
			}
		}
	}
}

// poll fetches the game once and merges it.
func (p *Poller) poll() error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	p.polls.Add(1)
	g, err := p.games.GetGame(ctx, p.gameID)
	if err != nil {
		return err
	}

	res, err := p.view.Merge(g, reconcile.SourcePoll)
	if err != nil {
		return err
	}
	if res == reconcile.Applied {
		p.applied.Add(1)
		p.logger.Info("poll advanced view",
			"game_id", p.gameID,
			"status", g.Status,
			"updated_at", g.UpdatedAt,
		)
	}
	return nil
}
