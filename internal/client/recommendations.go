package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
)

// Recommendations fetches the next track to play for a seed set.
type Recommendations struct {
	client *Client
}

// NewRecommendations creates a fetcher that issues requests through c.
func NewRecommendations(c *Client) *Recommendations {
	return &Recommendations{client: c}
}

// FetchNext requests a single recommendation constrained to seeds.
//
// Returns (nil, nil) when the upstream result is empty. Rate limiting surfaces as [*shared.RateLimitError]
// carrying the server's delay; nothing is retried here.
func (r *Recommendations) FetchNext(ctx context.Context, seeds []string) (*models.Track, error) {
	switch {
	case r.client.Token() == "":
		return nil, fmt.Errorf("%w: no access token", shared.ErrUnauthorized)
	case len(seeds) == 0:
		return nil, shared.ErrMissingSeeds
	case len(seeds) > shared.MaxSeeds:
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, shared.ErrSeedLimit)
	}

	var body struct {
		Tracks []models.Track `json:"tracks"`
	}
	query := url.Values{"seed_tracks": {strings.Join(seeds, ",")}}
	if _, err := r.client.doJSON(ctx, http.MethodGet, "/api/recommendations", query, nil, &body); err != nil {
		return nil, err
	}

	if len(body.Tracks) == 0 {
		return nil, nil
	}
	return &body.Tracks[0], nil
}
