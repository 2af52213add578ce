package dispatch

import (
	"encoding/json"

	"github.com/rickgao/tictactoe-sync/internal/model"
)

// Kind groups wire events by how they are handled.
type Kind string

const (
	KindSnapshot   Kind = "snapshot"       // game_state, games_list
	KindCreated    Kind = "entity_created" // game_created, new_waiting_game
	KindUpdated    Kind = "entity_updated" // move_made, game_finished
	KindRemoved    Kind = "entity_removed" // waiting_game_removed
	KindPeerJoined Kind = "peer_joined"    // player_joined
	KindControl    Kind = "control"        // pong
	KindUnknown    Kind = "unknown"
)

// Wire event names.
const (
	EventGameState          = "game_state"
	EventGameCreated        = "game_created"
	EventMoveMade           = "move_made"
	EventGameFinished       = "game_finished"
	EventPlayerJoined       = "player_joined"
	EventGamesList          = "games_list"
	EventNewWaitingGame     = "new_waiting_game"
	EventWaitingGameRemoved = "waiting_game_removed"
	EventPong               = "pong"
)

// Event is a decoded push event. The concrete type identifies the variant.
type Event interface {
	Kind() Kind
	Name() string
}

// GameState is a full snapshot of the subscribed game.
type GameState struct {
	Game model.Game
}

// GameCreated announces a new game.
type GameCreated struct {
	Game model.Game
}

// MoveMade carries the game after a move was applied.
type MoveMade struct {
	Game model.Game
}

// GameFinished carries the game after it ended.
type GameFinished struct {
	Game model.Game
}

// PlayerJoined carries the game after a second player joined, and who joined.
type PlayerJoined struct {
	Game     model.Game
	PlayerID string
}

// GamesList is a snapshot of the waiting-games list.
type GamesList struct {
	Games []model.Game
}

// NewWaitingGame announces a game that is waiting for an opponent.
type NewWaitingGame struct {
	Game model.Game
}

// WaitingGameRemoved announces that a game left the waiting list.
type WaitingGameRemoved struct {
	GameID string
}

// Pong is the server's keepalive reply.
type Pong struct{}

// Unknown is any event this client does not recognize, forwarded as-is.
type Unknown struct {
	Event  string
	GameID string
	Data   json.RawMessage
}

func (GameState) Kind() Kind          { return KindSnapshot }
func (GameCreated) Kind() Kind        { return KindCreated }
func (MoveMade) Kind() Kind           { return KindUpdated }
func (GameFinished) Kind() Kind       { return KindUpdated }
func (PlayerJoined) Kind() Kind       { return KindPeerJoined }
func (GamesList) Kind() Kind          { return KindSnapshot }
func (NewWaitingGame) Kind() Kind     { return KindCreated }
func (WaitingGameRemoved) Kind() Kind { return KindRemoved }
func (Pong) Kind() Kind               { return KindControl }
func (Unknown) Kind() Kind            { return KindUnknown }

func (GameState) Name() string          { return EventGameState }
func (GameCreated) Name() string        { return EventGameCreated }
func (MoveMade) Name() string           { return EventMoveMade }
func (GameFinished) Name() string       { return EventGameFinished }
func (PlayerJoined) Name() string       { return EventPlayerJoined }
func (GamesList) Name() string          { return EventGamesList }
func (NewWaitingGame) Name() string     { return EventNewWaitingGame }
func (WaitingGameRemoved) Name() string { return EventWaitingGameRemoved }
func (Pong) Name() string               { return EventPong }
func (u Unknown) Name() string          { return u.Event }

// GameOf returns the game carried by single-entity events.
func GameOf(ev Event) (model.Game, bool) {
	switch e := ev.(type) {
	case GameState:
		return e.Game, true
	case GameCreated:
		return e.Game, true
	case MoveMade:
		return e.Game, true
	case GameFinished:
		return e.Game, true
	case PlayerJoined:
		return e.Game, true
	case NewWaitingGame:
		return e.Game, true
	default:
		return model.Game{}, false
	}
}
