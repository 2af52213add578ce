package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/tictactoe-sync/internal/model"
)

// Errors
var (
	ErrMissingID = errors.New("game has no id")
)

// Source identifies which path produced a candidate game.
type Source string

const (
	SourceSnapshot Source = "snapshot" // game_state push
	SourcePush     Source = "push"     // move_made, game_finished, player_joined, game_created
	SourcePull     Source = "pull"     // REST fetch or move response
	SourcePoll     Source = "poll"     // fallback poller
)

// Result is the outcome of a merge.
type Result int

const (
	Applied  Result = iota // View replaced by the candidate
	Stale                  // Candidate not strictly newer; view unchanged
	Rejected               // Candidate invalid for this view; view unchanged
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Transition is one accepted change of the view.
type Transition struct {
	Prev    model.Game
	HasPrev bool // False for the first value seen
	Next    model.Game
	Source  Source
}

// StatusChanged reports whether the transition moved the game's status.
func (t Transition) StatusChanged() bool {
	return !t.HasPrev || t.Prev.Status != t.Next.Status
}

// Observer receives every accepted transition, in order. Observers run
// synchronously and must not call Merge or Reset.
type Observer interface {
	Observe(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

// Observe calls f(t).
func (f ObserverFunc) Observe(t Transition) {
	f(t)
}

// Stats contains runtime statistics.
type Stats struct {
	Applied  int64
	Stale    int64
	Rejected int64
}

// Reconciler holds the canonical view of one game. Every candidate from the
// push path, the pull path and the poller goes through Merge; the view only
// ever moves to strictly newer versions.
type Reconciler struct {
	gameID string
	logger *slog.Logger

	mu       sync.Mutex
	view     model.Game
	has      bool
	terminal bool // Terminal hook fired for the current terminal entry
	stats    Stats

	// notifyMu orders observer calls across concurrent merges.
	notifyMu   sync.Mutex
	observers  []Observer
	onTerminal func(model.Game)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(r *Reconciler) {
		r.observers = append(r.observers, o)
	}
}

// OnTerminal sets the hook run once each time the game enters a terminal
// status. It runs after the observers for that transition.
func OnTerminal(fn func(model.Game)) Option {
	return func(r *Reconciler) {
		r.onTerminal = fn
	}
}

// New creates a Reconciler for gameID. An empty gameID adopts the id of the
// first accepted candidate.
func New(gameID string, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		gameID: gameID,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddObserver registers o. Register observers before the first merge.
func (r *Reconciler) AddObserver(o Observer) {
	r.notifyMu.Lock()
	r.observers = append(r.observers, o)
	r.notifyMu.Unlock()
}

// View returns the canonical game, if any value has been accepted.
func (r *Reconciler) View() (model.Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view, r.has
}

// Stats returns current statistics.
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Merge installs candidate if it is for this game and strictly newer than the
// view, or if the view is empty. A strictly newer candidate that would move
// the status backward or clear an occupied cell is rejected.
// Merging the same candidate twice is a no-op the second time.
func (r *Reconciler) Merge(candidate model.Game, src Source) (Result, error) {
	return r.apply(candidate, src, true)
}

// Reset installs a snapshot baseline. It skips the successor checks of Merge
// but never moves the view to an older version.
func (r *Reconciler) Reset(snapshot model.Game, src Source) (Result, error) {
	return r.apply(snapshot, src, false)
}

func (r *Reconciler) apply(candidate model.Game, src Source, validate bool) (Result, error) {
	r.mu.Lock()

	if candidate.ID == "" {
		r.stats.Rejected++
		r.mu.Unlock()
		return Rejected, ErrMissingID
	}

	id := r.gameID
	if id == "" && r.has {
		id = r.view.ID
	}
	if id != "" && candidate.ID != id {
		r.stats.Rejected++
		r.mu.Unlock()
		return Rejected, fmt.Errorf("%w: have %s, got %s", model.ErrGameMismatch, id, candidate.ID)
	}

	if r.has && !candidate.NewerThan(r.view) {
		r.stats.Stale++
		r.mu.Unlock()
		r.logger.Debug("ignoring stale game",
			"game_id", candidate.ID,
			"source", src,
			"version", candidate.Version(),
			"current", r.view.Version(),
		)
		return Stale, nil
	}

	if validate && r.has {
		if err := model.ValidateSuccessor(r.view, candidate); err != nil {
			r.stats.Rejected++
			r.mu.Unlock()
			r.logger.Warn("rejecting game update", "game_id", candidate.ID, "source", src, "error", err)
			return Rejected, err
		}
	}

	t := Transition{Prev: r.view, HasPrev: r.has, Next: candidate, Source: src}
	r.view = candidate
	r.has = true
	r.stats.Applied++

	fireTerminal := false
	if candidate.IsTerminal() {
		if !r.terminal {
			r.terminal = true
			fireTerminal = true
		}
	} else {
		r.terminal = false
	}

	// Hand over to the notify lock before releasing the view so transitions
	// reach observers in the order they were applied.
	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	if t.StatusChanged() {
		r.logger.Info("game status", "game_id", candidate.ID, "status", candidate.Status, "source", src)
	}

	for _, o := range r.observers {
		o.Observe(t)
	}
	if fireTerminal && r.onTerminal != nil {
		r.onTerminal(candidate)
	}

	return Applied, nil
}
