// Package player runs the continuous recommendation loop against one remote playback device.
//
// # State Machine
//
// The [Orchestrator] moves between [Idle], [Awaiting], [Playing] and [Paused]. Player snapshots are classified in
// priority order:
//
//  1. track ended: not loading, paused at position zero, pausing disallowed because the player is already at rest
//  2. track changed: the current track differs from the last one observed
//  3. anything else only mirrors the snapshot for display
//
// A track-ended signal with seeds requests one recommendation after a one second quiet period, so a burst of
// signals produces a single request. Without seeds the session goes idle.
//
// # Events
//
// Player events arrive through a [Feed]. [Emitter] is the in-memory implementation used by tests and by
// [PollingFeed], which reads the player through the findtune server at a fixed rate.
//
// # Updates
//
// State changes are published on a buffered channel with non-blocking sends, so a slow UI never stalls playback.
package player
