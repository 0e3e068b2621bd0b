package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/player"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSearchResults MsgKind = iota
	MsgPlayerUpdate
	MsgCommandDone
	MsgLikedSaved
)

type searchResults struct {
	query  string
	tracks []models.Track
	err    error
}

type likedSaved struct {
	playlist *models.Playlist
	count    int
	err      error
}

// searchResultsMsg is the constructor for [MsgSearchResults]
func searchResultsMsg(query string, tracks []models.Track, err error) Msg {
	return Msg{kind: MsgSearchResults, data: searchResults{query: query, tracks: tracks, err: err}}
}

// playerUpdateMsg is the constructor for [MsgPlayerUpdate]
func playerUpdateMsg(u player.Update) Msg {
	return Msg{kind: MsgPlayerUpdate, data: u}
}

// commandDoneMsg is the constructor for [MsgCommandDone]
func commandDoneMsg(err error) Msg {
	return Msg{kind: MsgCommandDone, data: err}
}

// likedSavedMsg is the constructor for [MsgLikedSaved]
func likedSavedMsg(playlist *models.Playlist, count int, err error) Msg {
	return Msg{kind: MsgLikedSaved, data: likedSaved{playlist: playlist, count: count, err: err}}
}
