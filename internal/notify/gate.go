package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tictactoe-sync/internal/model"
	"github.com/rickgao/tictactoe-sync/internal/reconcile"
)

// Kind classifies a notice.
type Kind string

const (
	KindWin             Kind = "win"
	KindLose            Kind = "lose"
	KindDraw            Kind = "draw"
	KindPeerJoined      Kind = "peer_joined"
	KindValidation      Kind = "validation"
	KindServerError     Kind = "server_error"
	KindConnectionError Kind = "connection_error"
)

// Notice messages.
const (
	MsgWin             = "You won!"
	MsgLose            = "You lost"
	MsgDraw            = "Draw!"
	MsgPeerJoined      = "Player joined!"
	MsgConnectionError = "Connection to game lost"
)

// Notice is a transient, user-facing message. Notices are never persisted
// as game state.
type Notice struct {
	Kind    Kind      `json:"kind"`
	GameID  string    `json:"game_id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Terminal reports whether n announces the game's outcome.
func (n Notice) Terminal() bool {
	return n.Kind == KindWin || n.Kind == KindLose || n.Kind == KindDraw
}

// Sink receives notices.
type Sink interface {
	Notify(n Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notice)

// Notify calls f(n).
func (f SinkFunc) Notify(n Notice) {
	f(n)
}

// Tee fans a notice out to every non-nil sink, in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(n Notice) {
		for _, s := range sinks {
			if s != nil {
				s.Notify(n)
			}
		}
	})
}

// Gate decides which game transitions become notices for the local player.
// Win, lose and draw are one-shot per entry into Finished; everything else
// passes through.
type Gate struct {
	actorID string
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	fired bool // Outcome already announced for the current Finished entry
}

// NewGate creates a gate for the local player actorID. An empty actorID
// (anonymous viewer) suppresses outcome notices.
func NewGate(actorID string, sink Sink, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		actorID: actorID,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

// Observe implements reconcile.Observer.
func (g *Gate) Observe(t reconcile.Transition) {
	next := t.Next

	g.mu.Lock()
	if next.Status != model.StatusFinished {
		g.fired = false
		g.mu.Unlock()
		return
	}
	if g.fired {
		g.mu.Unlock()
		return
	}
	g.fired = true
	g.mu.Unlock()

	// A game that was already over when first seen is not announced.
	if !t.HasPrev || g.actorID == "" {
		return
	}

	kind, msg := g.outcome(next)
	g.emit(kind, next.ID, msg)
}

func (g *Gate) outcome(game model.Game) (Kind, string) {
	switch {
	case game.WinnerID == "":
		return KindDraw, MsgDraw
	case game.WinnerID == g.actorID:
		return KindWin, MsgWin
	default:
		return KindLose, MsgLose
	}
}

// PeerJoined announces that playerID joined gameID, unless it is the local player.
func (g *Gate) PeerJoined(gameID, playerID string) {
	if playerID == "" || playerID == g.actorID {
		return
	}
	g.emit(KindPeerJoined, gameID, MsgPeerJoined)
}

// Validation publishes a local move-validation failure.
func (g *Gate) Validation(gameID, msg string) {
	g.emit(KindValidation, gameID, msg)
}

// ServerError publishes a server rejection.
func (g *Gate) ServerError(gameID, msg string) {
	g.emit(KindServerError, gameID, msg)
}

// ConnectionError publishes a transport failure on the game channel.
func (g *Gate) ConnectionError(gameID string, err error) {
	g.logger.Debug("connection notice", "game_id", gameID, "error", err)
	g.emit(KindConnectionError, gameID, MsgConnectionError)
}

func (g *Gate) emit(kind Kind, gameID, msg string) {
	if g.sink == nil {
		return
	}
	g.sink.Notify(Notice{
		Kind:    kind,
		GameID:  gameID,
		Message: msg,
		At:      g.now(),
	})
}
