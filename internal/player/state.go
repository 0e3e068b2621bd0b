package player

import "github.com/desertthunder/findtune/internal/models"

// State is the orchestrator's position in the playback session.
type State int

const (
	Idle     State = iota // no seeds, nothing playing
	Awaiting              // recommendation requested, track not started yet
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Awaiting:
		return "awaiting"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return ""
	}
}

// Update is sent on [Orchestrator.Updates] whenever the session changes.
//
// Used by the TUI and the headless loop to render the current state.
type Update struct {
	State    State                    // State after the change
	Track    *models.Track            // Displayed track, nil when cleared
	Device   string                   // Bound device, empty before readiness
	Snapshot *models.PlaybackSnapshot // Player snapshot that caused the update, if any
	Notice   string                   // User-facing message
	Err      error                    // Failure behind Notice, if any
}
