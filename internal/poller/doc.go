// Package poller implements the fallback Game Poller.
//
// The Game Poller:
//   - Fetches the game over REST on a fixed interval
//   - Only polls while the push channel is down
//   - Merges fetched games with source="poll" so the version rule applies
//   - Stops polling once the view is terminal
package poller
