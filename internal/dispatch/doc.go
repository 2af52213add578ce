// Package dispatch implements the Message Dispatcher component.
//
// Frames from a subscription are decoded into one Event variant per wire
// event name and routed by Kind:
//   - snapshot:       game_state, games_list
//   - entity_created: game_created, new_waiting_game
//   - entity_updated: move_made, game_finished
//   - entity_removed: waiting_game_removed
//   - peer_joined:    player_joined
//   - control:        pong
//   - unknown:        anything else, forwarded as Unknown
package dispatch
