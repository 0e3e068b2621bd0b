package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/findtune/internal/formatter"
	"github.com/desertthunder/findtune/internal/repositories"
	"github.com/desertthunder/findtune/internal/services"
	"github.com/desertthunder/findtune/internal/shared"
	"github.com/urfave/cli/v3"
)

// openLikedStore opens the configured database with migrations applied.
func (r *Runner) openLikedStore() (*sql.DB, *repositories.LikedTrackRepository, error) {
	cfg := r.config.Database
	db, err := shared.NewDatabase(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := shared.RunMigrations(db, cfg.Driver); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, repositories.NewLikedTrackRepository(db, cfg.Driver), nil
}

// LikedList prints the songs liked in earlier sessions.
func (r *Runner) LikedList(ctx context.Context, cmd *cli.Command) error {
	db, repo, err := r.openLikedStore()
	if err != nil {
		return err
	}
	defer db.Close()

	tracks, err := repo.List(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, true)
	}

	r.writePlainHeader(fmt.Sprintf("%d liked songs", len(tracks)))
	for _, t := range tracks {
		r.writePlain("%s  %s - %s\n", t.ID, t.Name, t.Artist())
	}
	return nil
}

// LikedExport writes the liked songs to a CSV, Markdown or text file.
func (r *Runner) LikedExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	db, repo, err := r.openLikedStore()
	if err != nil {
		return err
	}
	defer db.Close()

	tracks, err := repo.List(ctx)
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(format, r.config.Player.PlaylistName, tracks, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("liked songs exported", "path", path, "count", len(tracks))
	return r.writePlain("✓ Exported %d songs to %s\n", len(tracks), path)
}

// LikedRemove forgets one liked song by ID or URI.
func (r *Runner) LikedRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	db, repo, err := r.openLikedStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repo.Delete(ctx, services.TrackID(id)); err != nil {
		return err
	}
	return r.writePlain("✓ Removed %s\n", id)
}
