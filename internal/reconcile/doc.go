// Package reconcile implements the State Reconciler component.
//
// A Reconciler owns the canonical view of one game and accepts candidates
// from every path (push frames, REST responses, the fallback poller) by
// version: a candidate replaces the view only if it is strictly newer.
// Accepted transitions fan out to observers in order, and entry into a
// terminal status runs the terminal hook once.
//
// List holds the waiting-games collection for the lobby.
package reconcile
