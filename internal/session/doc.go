// Package session wires the sync components together for one view.
//
// A Game session follows one game:
//
//	REST fetch ──► Reconciler ◄── Dispatcher ◄── Subscription (game topic)
//	                  │   ▲                          ▲
//	                  │   └── Action Gate (moves)    └── Poller while disconnected
//	                  ▼
//	      Notification Gate, journal, relay
//
// The push channel is opened only for games that are not already over, and
// is closed as soon as the reconciled game becomes terminal.
//
// A Lobby session keeps the waiting-games list in sync.
package session
