package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/findtune/internal/models"
)

var _ list.Item = trackItem{}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track models.Track
	seed  bool
}

func (i trackItem) FilterValue() string { return i.track.Name }

func (i trackItem) Title() string {
	if i.seed {
		return "● " + i.track.Name
	}
	return i.track.Name
}

func (i trackItem) Description() string {
	desc := i.track.Artist()
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	return desc
}

// trackItems wraps tracks, marking those whose id is in seeds.
func trackItems(tracks []models.Track, seeds []string) []list.Item {
	marked := make(map[string]bool, len(seeds))
	for _, id := range seeds {
		marked[id] = true
	}

	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t, seed: marked[t.ID]}
	}
	return items
}
