package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/findtune/internal/client"
	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/player"
	"github.com/desertthunder/findtune/internal/services"
	"github.com/desertthunder/findtune/internal/shared"
	"github.com/urfave/cli/v3"
)

// SeedsSearch searches tracks so their IDs can be passed as --seed.
func (r *Runner) SeedsSearch(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	c, err := r.authorizedClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	tracks, err := client.NewLibrary(c).Search(ctx, query)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Results for %q", query))
	for _, t := range tracks {
		r.writePlain("%s  %s - %s\n", t.ID, t.Name, t.Artist())
	}
	return nil
}

// SeedsRecommend prints a single recommendation without starting playback.
func (r *Runner) SeedsRecommend(ctx context.Context, cmd *cli.Command) error {
	seeds, err := seedSet(cmd.StringSlice("seed"))
	if err != nil {
		return err
	}

	c, err := r.authorizedClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	track, err := client.NewRecommendations(c).FetchNext(ctx, seeds.IDs())
	if err != nil {
		return err
	}
	if track == nil {
		return r.writePlain("No recommendation found for these songs.\n")
	}
	return r.writePlain("%s  %s - %s\n", track.ID, track.Name, track.Artist())
}

// seedSet builds a seed set from track IDs or spotify:track URIs.
func seedSet(values []string) (*player.SeedSet, error) {
	seeds := player.NewSeedSet()
	for _, v := range values {
		id := services.TrackID(v)
		if id == "" {
			continue
		}
		if err := seeds.Add(models.Track{ID: id, URI: "spotify:track:" + id, Name: id}); err != nil {
			return nil, fmt.Errorf("%w: %s", err, v)
		}
	}
	return seeds, nil
}
