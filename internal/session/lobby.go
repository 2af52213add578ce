package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/tictactoe-sync/internal/api"
	"github.com/rickgao/tictactoe-sync/internal/connection"
	"github.com/rickgao/tictactoe-sync/internal/dispatch"
	"github.com/rickgao/tictactoe-sync/internal/model"
	"github.com/rickgao/tictactoe-sync/internal/reconcile"
)

// LobbyPageSize is the size of the initial waiting-games fetch.
const LobbyPageSize = 20

// WaitingGames lists games waiting for an opponent.
type WaitingGames interface {
	ListWaitingGames(ctx context.Context, opts api.ListOptions) (*model.Page[model.Game], error)
}

// Lobby keeps the waiting-games list in sync.
type Lobby struct {
	games      WaitingGames
	conns      *connection.Manager
	logger     *slog.Logger
	list       *reconcile.List
	dispatcher *dispatch.Dispatcher

	mu  sync.Mutex
	sub *connection.Subscription
}

// NewLobby creates a lobby session. onChange, if set, receives the list
// after every change, on the goroutine that made it.
func NewLobby(games WaitingGames, conns *connection.Manager, onChange func([]model.Game), logger *slog.Logger) *Lobby {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Lobby{
		games:  games,
		conns:  conns,
		logger: logger,
		list:   reconcile.NewList(onChange),
	}

	l.dispatcher = dispatch.New(logger)
	l.dispatcher.HandleFunc(dispatch.KindSnapshot, l.onList)
	l.dispatcher.HandleFunc(dispatch.KindCreated, l.onAdded)
	l.dispatcher.HandleFunc(dispatch.KindRemoved, l.onRemoved)
	l.dispatcher.HandleFunc(dispatch.KindControl, func(dispatch.Event) {})

	return l
}

// Start fetches the first page of waiting games and subscribes to changes.
func (l *Lobby) Start(ctx context.Context) error {
	page, err := l.games.ListWaitingGames(ctx, api.ListOptions{Limit: LobbyPageSize})
	if err != nil {
		return fmt.Errorf("load lobby: %w", err)
	}
	l.list.Replace(page.Items)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub == nil {
		l.sub = l.conns.Open(connection.WaitingGamesTopic(), l.dispatcher.Dispatch, l.onConnectionError)
	}
	return nil
}

// Games returns the waiting games in arrival order.
func (l *Lobby) Games() []model.Game {
	return l.list.Items()
}

// Stats returns the lobby's channel and dispatch statistics.
func (l *Lobby) Stats() (connection.SubscriptionStats, dispatch.Stats) {
	l.mu.Lock()
	sub := l.sub
	l.mu.Unlock()

	var cs connection.SubscriptionStats
	if sub != nil {
		cs = sub.Stats()
	}
	return cs, l.dispatcher.Stats()
}

// Close closes the lobby channel.
func (l *Lobby) Close(ctx context.Context) error {
	l.mu.Lock()
	sub := l.sub
	l.mu.Unlock()

	if sub == nil {
		return nil
	}
	sub.Close()
	return sub.Wait(ctx)
}

func (l *Lobby) onList(ev dispatch.Event) {
	gl, ok := ev.(dispatch.GamesList)
	if !ok {
		return
	}
	l.list.Replace(gl.Games)
}

func (l *Lobby) onAdded(ev dispatch.Event) {
	g, ok := ev.(dispatch.NewWaitingGame)
	if !ok {
		l.logger.Debug("ignoring event on lobby", "event", ev.Name())
		return
	}
	if l.list.Add(g.Game) {
		l.logger.Debug("waiting game added", "game_id", g.Game.ID)
	}
}

func (l *Lobby) onRemoved(ev dispatch.Event) {
	r, ok := ev.(dispatch.WaitingGameRemoved)
	if !ok {
		return
	}
	if l.list.Remove(r.GameID) {
		l.logger.Debug("waiting game removed", "game_id", r.GameID)
	}
}

func (l *Lobby) onConnectionError(err error) {
	l.logger.Warn("lobby channel error", "error", err)
}
