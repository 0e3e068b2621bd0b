// Raw JSON requests against the Web API for endpoints that need the full response
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/findtune/internal/shared"
)

// DefaultAPIURL is the Web API base URL.
const DefaultAPIURL = "https://api.spotify.com/v1/"

// APIService makes bearer-authenticated requests and hands back status, headers and body untouched.
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates a new API service instance rooted at baseURL.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
}

// Get performs a GET request to path with the given query and access token.
func (a *APIService) Get(ctx context.Context, path, token string, query url.Values) (*APIResponse, error) {
	fullURL := a.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		IsJSON:     json.Valid(body),
	}, nil
}

// Decode unmarshals the JSON body into v.
func (r *APIResponse) Decode(v any) error {
	if !r.IsJSON {
		return fmt.Errorf("%w: response is not JSON", shared.ErrUpstream)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Err converts a non-2xx response into [shared.ErrUnauthorized], a [shared.RateLimitError] or a
// [shared.UpstreamError]. Returns nil for success statuses.
func (r *APIResponse) Err(now time.Time) error {
	switch {
	case r.StatusCode >= 200 && r.StatusCode < 300:
		return nil
	case r.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrUnauthorized, r.message())
	case r.StatusCode == http.StatusTooManyRequests:
		return &shared.RateLimitError{RetryAfter: shared.ParseRetryAfter(r.Headers.Get("Retry-After"), now)}
	default:
		return &shared.UpstreamError{Status: r.StatusCode, Message: r.message()}
	}
}

// message extracts error.message from a Web API error body, falling back to the status text.
func (r *APIResponse) message() string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if r.IsJSON && json.Unmarshal(r.Body, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return http.StatusText(r.StatusCode)
}
