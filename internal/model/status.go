package model

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrIllegalTransition = errors.New("illegal game transition")
	ErrGameMismatch      = errors.New("game id mismatch")
)

// Status is the lifecycle stage of a game.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

// rank orders statuses along the forward-only lifecycle.
// Finished and Cancelled share the terminal rank.
var rank = map[Status]int{
	StatusWaiting:   0,
	StatusActive:    1,
	StatusFinished:  2,
	StatusCancelled: 2,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

// IsTerminal reports whether no further play can happen.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// CanTransition reports whether a game in status s may be replaced by one in next.
// Staying in place is always allowed. Skipping forward (a client that missed the
// Active snapshot) is allowed; moving backward or between terminal statuses is not.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	from, ok := rank[s]
	if !ok {
		return next.Valid()
	}
	to, ok := rank[next]
	if !ok {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return to > from
}

// TransitionError describes a rejected successor for a game.
type TransitionError struct {
	GameID string
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("game %s: %s -> %s: %s", e.GameID, e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// ValidateSuccessor checks that next is a legal successor of prev: same game,
// forward-only status and no occupied cell cleared or overwritten.
func ValidateSuccessor(prev, next Game) error {
	if prev.ID != next.ID {
		return fmt.Errorf("%w: %s != %s", ErrGameMismatch, prev.ID, next.ID)
	}

	if !prev.Status.CanTransition(next.Status) {
		return &TransitionError{
			GameID: next.ID,
			From:   prev.Status,
			To:     next.Status,
			Reason: "status cannot move backward",
		}
	}

	for r := 0; r < BoardSize; r++ {
		for c := 0; c < BoardSize; c++ {
			was := prev.Board[r][c]
			if was != SymbolNone && next.Board[r][c] != was {
				return &TransitionError{
					GameID: next.ID,
					From:   prev.Status,
					To:     next.Status,
					Reason: fmt.Sprintf("cell (%d,%d) changed from %s", r, c, was),
				}
			}
		}
	}

	return nil
}
