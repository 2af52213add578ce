// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Opens one Subscription per push topic (a game, or the waiting-games list)
//   - Keeps at most one live WebSocket per subscription
//   - Reconnects after a fixed delay; Close cancels any pending reconnect
//   - Sends {"event":"ping"} keepalives and drops connections with no inbound traffic
//   - Parses frame envelopes and delivers them in arrival order; malformed frames are dropped
package connection
