package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/tictactoe-sync/internal/model"
)

// GetGame fetches a single game. Concurrent calls for the same id share
// one request. The shared request is not bound to any one caller's context;
// each caller stops waiting when its own ctx is done.
func (c *Client) GetGame(ctx context.Context, id string) (model.Game, error) {
	ch := c.games.DoChan(id, func() (any, error) {
		fetchCtx, cancel := c.sharedContext(ctx)
		defer cancel()

		var g model.Game
		if err := c.get(fetchCtx, "/games/"+url.PathEscape(id), nil, &g); err != nil {
			return nil, err
		}
		return g, nil
	})

	select {
	case <-ctx.Done():
		return model.Game{}, fmt.Errorf("get game %s: %w", id, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return model.Game{}, fmt.Errorf("get game %s: %w", id, res.Err)
		}
		if res.Shared {
			c.logger.Debug("shared in-flight game fetch", "game_id", id)
		}
		return res.Val.(model.Game), nil
	}
}

// sharedContext detaches ctx from its caller's cancellation and bounds it by
// the time every attempt and backoff could take.
func (c *Client) sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if c.httpClient.Timeout <= 0 {
		return context.WithCancel(ctx)
	}

	budget := time.Duration(c.maxRetries+1) * c.httpClient.Timeout
	backoff := c.retryBackoff
	for i := 0; i < c.maxRetries; i++ {
		budget += backoff + backoff/2 // jitter tops out at 1.5x
		backoff *= 2
	}
	return context.WithTimeout(ctx, budget)
}

// CreateGame creates a new game with the caller as player X.
func (c *Client) CreateGame(ctx context.Context) (model.Game, error) {
	var g model.Game
	if err := c.post(ctx, "/games", nil, &g); err != nil {
		return model.Game{}, fmt.Errorf("create game: %w", err)
	}
	return g, nil
}

// JoinGame joins a waiting game as player O.
func (c *Client) JoinGame(ctx context.Context, id string) (model.Game, error) {
	var g model.Game
	if err := c.post(ctx, "/games/"+url.PathEscape(id)+"/join", nil, &g); err != nil {
		return model.Game{}, fmt.Errorf("join game %s: %w", id, err)
	}
	return g, nil
}

// MakeMove places the caller's symbol at row, col and returns the updated game.
func (c *Client) MakeMove(ctx context.Context, id string, row, col int) (model.Game, error) {
	var g model.Game
	if err := c.post(ctx, "/games/"+url.PathEscape(id)+"/move", MoveRequest{Row: row, Col: col}, &g); err != nil {
		return model.Game{}, fmt.Errorf("make move %s (%d,%d): %w", id, row, col, err)
	}
	return g, nil
}

// GetGameMoves fetches the move history of a game, ordered by move number.
func (c *Client) GetGameMoves(ctx context.Context, id string) ([]model.GameMove, error) {
	var moves []model.GameMove
	if err := c.get(ctx, "/games/"+url.PathEscape(id)+"/moves", nil, &moves); err != nil {
		return nil, fmt.Errorf("get game moves %s: %w", id, err)
	}
	return moves, nil
}

// ListWaitingGames fetches a page of games waiting for a second player.
func (c *Client) ListWaitingGames(ctx context.Context, opts ListOptions) (*model.Page[model.Game], error) {
	var page model.Page[model.Game]
	if err := c.get(ctx, "/games", opts.query(), &page); err != nil {
		return nil, fmt.Errorf("list waiting games: %w", err)
	}
	return &page, nil
}

// ListMyGames fetches a page of the caller's games, optionally filtered by status.
func (c *Client) ListMyGames(ctx context.Context, status model.Status, opts ListOptions) (*model.Page[model.Game], error) {
	query := opts.query()
	if status != "" {
		query.Set("status", string(status))
	}

	var page model.Page[model.Game]
	if err := c.get(ctx, "/games/my", query, &page); err != nil {
		return nil, fmt.Errorf("list my games: %w", err)
	}
	return &page, nil
}

func (o ListOptions) query() url.Values {
	query := url.Values{}
	if o.Limit > 0 {
		query.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		query.Set("offset", strconv.Itoa(o.Offset))
	}
	return query
}
