package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/tictactoe-sync/internal/api"
	"github.com/rickgao/tictactoe-sync/internal/model"
	"github.com/rickgao/tictactoe-sync/internal/reconcile"
)

// Errors
var (
	ErrNoGame      = errors.New("game not loaded")
	ErrNotActive   = errors.New("game is not active")
	ErrOutOfBounds = errors.New("cell out of bounds")
	ErrCellTaken   = errors.New("cell is already taken")
	ErrNotYourTurn = errors.New("not your turn")
)

// FallbackRejection is shown when the server rejects a move without a message.
const FallbackRejection = "move could not be made"

var validationMessages = map[error]string{
	ErrNoGame:      "Game is not loaded yet",
	ErrNotActive:   "Game is not active",
	ErrOutOfBounds: "Cell is off the board",
	ErrCellTaken:   "Cell is already taken",
	ErrNotYourTurn: "Not your turn",
}

// ValidationError is a move rejected locally, before any network call.
type ValidationError struct {
	GameID   string
	Row, Col int
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("move (%d,%d) in game %s: %v", e.Row, e.Col, e.GameID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing text.
func (e *ValidationError) Message() string {
	if msg, ok := validationMessages[e.Err]; ok {
		return msg
	}
	return e.Err.Error()
}

// ServerRejection is a move the server refused or could not be reached for.
type ServerRejection struct {
	GameID   string
	Row, Col int
	Message  string // Server-provided, or FallbackRejection
	Err      error
}

func (e *ServerRejection) Error() string {
	return fmt.Sprintf("move (%d,%d) in game %s rejected: %s", e.Row, e.Col, e.GameID, e.Message)
}

func (e *ServerRejection) Unwrap() error {
	return e.Err
}

// MoveSubmitter sends a move over the request/response path.
type MoveSubmitter interface {
	MakeMove(ctx context.Context, gameID string, row, col int) (model.Game, error)
}

// View is the canonical state the gate reads and writes back to.
type View interface {
	View() (model.Game, bool)
	Merge(candidate model.Game, src reconcile.Source) (reconcile.Result, error)
}

// Notifier surfaces rejections to the user.
type Notifier interface {
	Validation(gameID, msg string)
	ServerError(gameID, msg string)
}

// Gate decides whether the local player may move, and submits moves.
type Gate struct {
	actorID string
	moves   MoveSubmitter
	view    View
	notices Notifier
	logger  *slog.Logger
}

// New creates an Action Gate for the local player actorID. notices may be nil.
func New(actorID string, moves MoveSubmitter, view View, notices Notifier, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		actorID: actorID,
		moves:   moves,
		view:    view,
		notices: notices,
		logger:  logger,
	}
}

// Check validates a move at row, col against the canonical view without
// side effects. It returns the view it checked.
func (g *Gate) Check(row, col int) (model.Game, error) {
	game, ok := g.view.View()
	if !ok {
		return model.Game{}, &ValidationError{Row: row, Col: col, Err: ErrNoGame}
	}

	fail := func(err error) (model.Game, error) {
		return game, &ValidationError{GameID: game.ID, Row: row, Col: col, Err: err}
	}

	switch {
	case game.Status != model.StatusActive:
		return fail(ErrNotActive)
	case !model.InBounds(row, col):
		return fail(ErrOutOfBounds)
	case game.Board[row][col] != model.SymbolNone:
		return fail(ErrCellTaken)
	}

	sym, ok := game.SymbolOf(g.actorID)
	if !ok || sym != game.CurrentTurn {
		return fail(ErrNotYourTurn)
	}

	return game, nil
}

// SubmitMove places the local player's symbol at row, col. A locally invalid
// move returns *ValidationError without any network call. A server refusal
// returns *ServerRejection and leaves the view untouched. On success the
// returned game is merged like a push update.
func (g *Gate) SubmitMove(ctx context.Context, row, col int) error {
	game, err := g.Check(row, col)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) && g.notices != nil {
			g.notices.Validation(ve.GameID, ve.Message())
		}
		return err
	}

	updated, err := g.moves.MakeMove(ctx, game.ID, row, col)
	if err != nil {
		rej := &ServerRejection{
			GameID:  game.ID,
			Row:     row,
			Col:     col,
			Message: FallbackRejection,
			Err:     err,
		}
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			if msg := apiErr.ServerMessage(); msg != "" {
				rej.Message = msg
			}
		}

		g.logger.Warn("move rejected", "game_id", game.ID, "row", row, "col", col, "error", err)
		if g.notices != nil {
			g.notices.ServerError(game.ID, rej.Message)
		}
		return rej
	}

	res, err := g.view.Merge(updated, reconcile.SourcePull)
	if err != nil {
		// The push path or the next poll corrects the view.
		g.logger.Warn("move response not merged", "game_id", game.ID, "error", err)
		return nil
	}

	g.logger.Debug("move accepted", "game_id", game.ID, "row", row, "col", col, "merge", res)
	return nil
}
