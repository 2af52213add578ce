package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rickgao/tictactoe-sync/internal/connection"
	"github.com/rickgao/tictactoe-sync/internal/model"
)

// Errors
var (
	ErrMissingData = errors.New("missing data")
	ErrMissingGame = errors.New("missing game")
	ErrMissingID   = errors.New("missing game id")
)

// DecodeError reports a frame whose payload does not match its event.
type DecodeError struct {
	Event string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Wire types for JSON parsing

// gameWrapperWire is the data of move_made, game_finished and player_joined.
type gameWrapperWire struct {
	Game     *model.Game     `json:"game"`
	PlayerID json.RawMessage `json:"player_id"`
}

// removedWire is the data of waiting_game_removed.
type removedWire struct {
	GameID json.RawMessage `json:"game_id"`
	OID    json.RawMessage `json:"oid"`
}

// listWire is the object form of games_list.
type listWire struct {
	Items []model.Game `json:"items"`
}

// Decode turns a frame into a typed event. Unrecognized event names decode
// to Unknown and never fail.
func Decode(f connection.Frame) (Event, error) {
	var (
		ev  Event
		err error
	)

	switch f.Event {
	case EventGameState:
		var g model.Game
		if g, err = decodeGame(f); err == nil {
			ev = GameState{Game: g}
		}
	case EventGameCreated:
		var g model.Game
		if g, err = decodeGame(f); err == nil {
			ev = GameCreated{Game: g}
		}
	case EventNewWaitingGame:
		var g model.Game
		if g, err = decodeGame(f); err == nil {
			ev = NewWaitingGame{Game: g}
		}
	case EventMoveMade:
		var w gameWrapperWire
		if w, err = decodeWrapped(f); err == nil {
			ev = MoveMade{Game: *w.Game}
		}
	case EventGameFinished:
		var w gameWrapperWire
		if w, err = decodeWrapped(f); err == nil {
			ev = GameFinished{Game: *w.Game}
		}
	case EventPlayerJoined:
		var w gameWrapperWire
		if w, err = decodeWrapped(f); err == nil {
			ev = PlayerJoined{Game: *w.Game, PlayerID: idString(w.PlayerID)}
		}
	case EventGamesList:
		var games []model.Game
		if games, err = decodeList(f.Data); err == nil {
			ev = GamesList{Games: games}
		}
	case EventWaitingGameRemoved:
		var id string
		if id, err = decodeRemoved(f.Data); err == nil {
			ev = WaitingGameRemoved{GameID: id}
		}
	case EventPong:
		ev = Pong{}
	default:
		ev = Unknown{Event: f.Event, GameID: f.GameID, Data: f.Data}
	}

	if err != nil {
		return nil, &DecodeError{Event: f.Event, Err: err}
	}
	return ev, nil
}

func isEmpty(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeGame parses a bare game entity. A missing oid falls back to the
// frame's game_id.
func decodeGame(f connection.Frame) (model.Game, error) {
	if isEmpty(f.Data) {
		return model.Game{}, ErrMissingData
	}
	var g model.Game
	if err := json.Unmarshal(f.Data, &g); err != nil {
		return model.Game{}, err
	}
	if g.ID == "" {
		g.ID = f.GameID
	}
	if g.ID == "" {
		return model.Game{}, ErrMissingID
	}
	return g, nil
}

// decodeWrapped parses {"game": <entity>, "player_id"?}.
func decodeWrapped(f connection.Frame) (gameWrapperWire, error) {
	if isEmpty(f.Data) {
		return gameWrapperWire{}, ErrMissingData
	}
	var w gameWrapperWire
	if err := json.Unmarshal(f.Data, &w); err != nil {
		return gameWrapperWire{}, err
	}
	if w.Game == nil {
		return gameWrapperWire{}, ErrMissingGame
	}
	if w.Game.ID == "" {
		w.Game.ID = f.GameID
	}
	if w.Game.ID == "" {
		return gameWrapperWire{}, ErrMissingID
	}
	return w, nil
}

// decodeList accepts a bare array or {"items": [...]}.
func decodeList(data json.RawMessage) ([]model.Game, error) {
	if isEmpty(data) {
		return nil, ErrMissingData
	}
	trimmed := bytes.TrimSpace(data)

	if trimmed[0] == '[' {
		var games []model.Game
		if err := json.Unmarshal(trimmed, &games); err != nil {
			return nil, err
		}
		return games, nil
	}

	var l listWire
	if err := json.Unmarshal(trimmed, &l); err != nil {
		return nil, err
	}
	return l.Items, nil
}

// decodeRemoved extracts the id from {"game_id"} or a full entity.
func decodeRemoved(data json.RawMessage) (string, error) {
	if isEmpty(data) {
		return "", ErrMissingData
	}
	var w removedWire
	if err := json.Unmarshal(data, &w); err != nil {
		return "", err
	}
	id := idString(w.GameID)
	if id == "" {
		id = idString(w.OID)
	}
	if id == "" {
		return "", ErrMissingID
	}
	return id, nil
}

// idString normalizes an identifier that may arrive as a JSON string or number.
func idString(raw json.RawMessage) string {
	if isEmpty(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
