// Package model defines shared data types used across the tic-tac-toe sync client.
//
// All types mirror the game server's JSON resources.
//
// Conventions:
//   - IDs: opaque strings (the server's "oid")
//   - Optional identities: empty string when the server sends null
//   - Versions: Game.UpdatedAt, compared with time.Time.After
package model
