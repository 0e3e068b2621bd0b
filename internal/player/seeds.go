package player

import (
	"slices"
	"sync"

	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
)

// SeedSet is the ordered set of tracks recommendations are keyed by.
//
// Holds at most [shared.MaxSeeds] tracks with unique ids. Safe for concurrent use; readers always see the
// latest contents.
type SeedSet struct {
	mu     sync.RWMutex
	tracks []models.Track
}

// NewSeedSet creates an empty seed set.
func NewSeedSet() *SeedSet {
	return &SeedSet{}
}

// Add appends t. Fails with [shared.ErrDuplicateSeed] or [shared.ErrSeedLimit].
func (s *SeedSet) Add(t models.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if containsID(s.tracks, t.ID) {
		return shared.ErrDuplicateSeed
	}
	if len(s.tracks) >= shared.MaxSeeds {
		return shared.ErrSeedLimit
	}
	s.tracks = append(s.tracks, t)
	return nil
}

// Remove drops the track with id and reports whether it was present.
func (s *SeedSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeID(&s.tracks, id)
}

// Clear empties the set.
func (s *SeedSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = nil
}

// IDs returns the track ids in insertion order.
func (s *SeedSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.tracks))
	for i, t := range s.tracks {
		ids[i] = t.ID
	}
	return ids
}

// Tracks returns a copy of the tracks in insertion order.
func (s *SeedSet) Tracks() []models.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tracks)
}

func (s *SeedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// LikedSet is the ordered set of tracks the user liked during playback.
type LikedSet struct {
	mu     sync.RWMutex
	tracks []models.Track
}

// NewLikedSet creates an empty liked set.
func NewLikedSet() *LikedSet {
	return &LikedSet{}
}

// Add appends t unless a track with the same id is present. Reports whether t was added.
func (l *LikedSet) Add(t models.Track) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if containsID(l.tracks, t.ID) {
		return false
	}
	l.tracks = append(l.tracks, t)
	return true
}

// Remove drops the track with id and reports whether it was present.
func (l *LikedSet) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return removeID(&l.tracks, id)
}

func (l *LikedSet) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return containsID(l.tracks, id)
}

// Tracks returns a copy of the liked tracks in insertion order.
func (l *LikedSet) Tracks() []models.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.tracks)
}

func (l *LikedSet) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tracks)
}

func containsID(tracks []models.Track, id string) bool {
	return slices.ContainsFunc(tracks, func(t models.Track) bool { return t.ID == id })
}

func removeID(tracks *[]models.Track, id string) bool {
	i := slices.IndexFunc(*tracks, func(t models.Track) bool { return t.ID == id })
	if i < 0 {
		return false
	}
	*tracks = slices.Delete(*tracks, i, i+1)
	return true
}
