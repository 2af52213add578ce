// Package relay republishes reconciled game state and notices to NATS so
// other local processes (a UI, a bot, a recorder) can follow the session
// without opening their own game server connections.
//
// Subjects:
//   - <prefix>.games.<game_id>.state   every accepted transition
//   - <prefix>.games.<game_id>.notice  every notice the session shows
package relay
