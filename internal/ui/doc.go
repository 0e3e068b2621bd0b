// Package ui implements an interactive terminal player using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [SearchView] : search tracks and pick up to five seed songs
//  2. [PlayerView] : the current recommendation, seeds and liked songs, with playback controls
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Player state arrives on the orchestrator's update channel; playback commands and searches run as tea.Cmd so the
// UI goroutine never blocks on the network.
//
// Keyboard bindings (/, enter, s, space, n, l, +/-, a, w, tab, q) are shown with charmbracelet/bubbles/help.
package ui
