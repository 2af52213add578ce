package model

import (
	"encoding/json"
	"time"
)

// BoardSize is the number of rows and columns on the board.
const BoardSize = 3

// Symbol is a mark placed on the board. The zero value is an empty cell.
type Symbol string

const (
	SymbolNone Symbol = ""
	SymbolX    Symbol = "X"
	SymbolO    Symbol = "O"
)

// Other returns the opposing symbol.
func (s Symbol) Other() Symbol {
	switch s {
	case SymbolX:
		return SymbolO
	case SymbolO:
		return SymbolX
	default:
		return SymbolNone
	}
}

// MarshalJSON encodes an empty cell as null.
func (s Symbol) MarshalJSON() ([]byte, error) {
	if s == SymbolNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// Board is the 3x3 grid, indexed [row][col].
type Board [BoardSize][BoardSize]Symbol

// InBounds reports whether row and col address a cell.
func InBounds(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}

// Occupied returns the number of non-empty cells.
func (b Board) Occupied() int {
	n := 0
	for _, row := range b {
		for _, cell := range row {
			if cell != SymbolNone {
				n++
			}
		}
	}
	return n
}

// Game is the authoritative game resource.
type Game struct {
	ID          string     `json:"oid"`
	PlayerX     string     `json:"player_x_id"`
	PlayerO     string     `json:"player_o_id"`
	Status      Status     `json:"status"`
	Board       Board      `json:"board"`
	CurrentTurn Symbol     `json:"current_turn"`
	WinnerID    string     `json:"winner_id"`
	FinishedAt  *time.Time `json:"finished_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"` // Version
}

// Version returns the value used to order game snapshots.
func (g Game) Version() time.Time {
	return g.UpdatedAt
}

// NewerThan reports whether g is strictly newer than other.
func (g Game) NewerThan(other Game) bool {
	return g.UpdatedAt.After(other.UpdatedAt)
}

// SymbolOf returns the symbol played by playerID.
func (g Game) SymbolOf(playerID string) (Symbol, bool) {
	switch {
	case playerID == "":
		return SymbolNone, false
	case playerID == g.PlayerX:
		return SymbolX, true
	case playerID == g.PlayerO:
		return SymbolO, true
	default:
		return SymbolNone, false
	}
}

// IsTerminal reports whether the game is finished or cancelled.
func (g Game) IsTerminal() bool {
	return g.Status.IsTerminal()
}

// GameMove is one entry of a game's append-only move history.
type GameMove struct {
	ID         string    `json:"oid"`
	GameID     string    `json:"game_id"`
	PlayerID   string    `json:"player_id"`
	Row        int       `json:"row"`
	Col        int       `json:"col"`
	Symbol     Symbol    `json:"symbol"`
	MoveNumber int       `json:"move_number"`
	CreatedAt  time.Time `json:"created_at"`
}

// Pagination describes a page of a list resource.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// Page is one page of a paginated list.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}
