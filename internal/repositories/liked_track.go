package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
)

// artistSeparator joins artist names in the artists column.
const artistSeparator = "\x1f"

// LikedTrackRepository persists the liked set between player runs.
type LikedTrackRepository struct {
	db     *sql.DB
	driver string
}

// NewLikedTrackRepository creates a new [LikedTrackRepository] with the given database connection
func NewLikedTrackRepository(db *sql.DB, driver string) *LikedTrackRepository {
	return &LikedTrackRepository{db: db, driver: driver}
}

// Save stores a liked track; saving a track that is already present is a no-op
func (r *LikedTrackRepository) Save(ctx context.Context, track models.Track) error {
	if track.ID == "" || track.URI == "" {
		return fmt.Errorf("%w: track id and uri are required", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO liked_tracks (id, uri, name, artists, album, image_url, duration_ms, liked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, shared.Rebind(r.driver, query),
		track.ID, track.URI, track.Name, strings.Join(track.Artists, artistSeparator),
		track.Album, track.ImageURL, track.DurationMs, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save liked track: %w", err)
	}
	return nil
}

// List returns liked tracks in the order they were liked
func (r *LikedTrackRepository) List(ctx context.Context) ([]models.Track, error) {
	query := `
		SELECT id, uri, name, artists, album, image_url, duration_ms
		FROM liked_tracks
		ORDER BY liked_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query liked tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var (
			t       models.Track
			artists string
		)
		if err := rows.Scan(&t.ID, &t.URI, &t.Name, &artists, &t.Album, &t.ImageURL, &t.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan liked track: %w", err)
		}
		if artists != "" {
			t.Artists = strings.Split(artists, artistSeparator)
		}
		tracks = append(tracks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate liked tracks: %w", err)
	}
	return tracks, nil
}

// Delete removes a liked track by ID
func (r *LikedTrackRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, shared.Rebind(r.driver, `DELETE FROM liked_tracks WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete liked track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: liked track %s", shared.ErrInvalidArgument, id)
	}
	return nil
}
