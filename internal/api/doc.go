// Package api provides the game server REST client (the pull path).
//
// Endpoints (relative to the configured base URL, e.g. http://localhost:8000/api/v1):
//   - GET  /games            waiting games, paginated
//   - GET  /games/my         caller's games, paginated, optional status filter
//   - POST /games            create
//   - GET  /games/{id}       fetch
//   - POST /games/{id}/join  join as O
//   - POST /games/{id}/move  {row, col}
//   - GET  /games/{id}/moves move history
//
// Responses are wrapped as {"data": ..., "errors": [{"message", "type"}]}.
package api
