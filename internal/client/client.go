// package client talks to the findtune server on behalf of a terminal front end.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/shared"
)

const (
	// RefreshMargin is how long before expiry the proactive refresh fires.
	RefreshMargin = 300 * time.Second
	// DefaultLifetime is assumed when the server omits expiresIn.
	DefaultLifetime = 3600

	defaultTimeout = 30 * time.Second
)

// Options configures a [Client].
type Options struct {
	BaseURL    string       // findtune server root, e.g. http://localhost:8888
	HTTPClient *http.Client // a cookie jar is added when missing
	Clock      shared.Clock
	Logger     *log.Logger
}

// Client issues requests against the findtune server with the current access token.
//
// The session cookie lives in the HTTP client's jar. The access token lives in memory and is refreshed
// shortly before it expires.
type Client struct {
	base   *url.URL
	http   *http.Client
	clock  shared.Clock
	logger *log.Logger
	timer  *shared.Deferred

	mu    sync.RWMutex
	token string
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   *int   `json:"expiresIn"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// New creates a [Client] for the server at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: server url %q", shared.ErrInvalidConfig, opts.BaseURL)
	}

	hc := &http.Client{Timeout: defaultTimeout}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		hc = &copied
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		hc.Jar = jar
	}
	// login answers with a redirect to the authorization server that the caller opens in a browser
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Client{
		base:   base,
		http:   hc,
		clock:  opts.Clock,
		logger: shared.WithLogger(opts.Logger, "component", "client"),
		timer:  shared.NewDeferred(opts.Clock),
	}, nil
}

// Token returns the access token currently held in memory.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken stores token and schedules the proactive refresh for a token that lives expiresIn seconds.
func (c *Client) SetToken(token string, expiresIn int) {
	c.store(tokenResponse{AccessToken: token, ExpiresIn: &expiresIn})
}

// Cookies returns the cookies the jar holds for the server.
func (c *Client) Cookies() []*http.Cookie {
	return c.http.Jar.Cookies(c.base)
}

// SetCookies seeds the jar, e.g. with a session cookie saved by an earlier run.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.http.Jar.SetCookies(c.base, cookies)
}

// RefreshPending reports whether a proactive refresh is scheduled.
func (c *Client) RefreshPending() bool {
	return c.timer.Pending()
}

// Issue sends req with the current access token.
//
// A 401 triggers exactly one refresh and one retry with the new token. The retry's response is returned
// as is, so a second 401 reaches the caller. Requests with a body must support [http.Request.GetBody].
func (c *Client) Issue(req *http.Request) (*http.Response, error) {
	resp, err := c.send(req, c.Token())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	token, err := c.Refresh(req.Context())
	if err != nil {
		return nil, err
	}

	retry, err := rewind(req)
	if err != nil {
		return nil, err
	}
	return c.send(retry, token)
}

// AccessToken asks the server for the session's access token and stores it.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	resp, err := c.sendPath(ctx, http.MethodGet, "/api/access-token", nil)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("%w: not logged in", shared.ErrUnauthorized)
	}
	if err := c.statusError(resp); err != nil {
		return "", err
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		return "", fmt.Errorf("%w: malformed token response", shared.ErrUpstream)
	}
	c.store(body)
	return body.AccessToken, nil
}

// Refresh asks the server to refresh the session's access token, stores it and schedules the next refresh.
//
// Any failure is reported as [shared.ErrRefreshFailed]; the caller has to log in again.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	resp, err := c.sendPath(ctx, http.MethodGet, "/api/refresh-token", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	defer drain(resp)

	if err := c.statusError(resp); err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		return "", fmt.Errorf("%w: malformed token response", shared.ErrRefreshFailed)
	}
	c.store(body)
	c.logger.Debug("access token refreshed", "expires_in", lifetime(body.ExpiresIn))
	return body.AccessToken, nil
}

// Login starts a login through the server and returns the authorization URL to open in a browser.
func (c *Client) Login(ctx context.Context) (string, error) {
	resp, err := c.sendPath(ctx, http.MethodGet, "/api/login", url.Values{"client": {"cli"}})
	if err != nil {
		return "", err
	}
	defer drain(resp)

	loc := resp.Header.Get("Location")
	if resp.StatusCode != http.StatusFound || loc == "" {
		if err := c.statusError(resp); err != nil {
			return "", err
		}
		return "", &shared.UpstreamError{Status: resp.StatusCode, Message: "login did not redirect"}
	}
	return loc, nil
}

// WaitForLogin polls the access-token endpoint every interval until the login completes or ctx ends.
func (c *Client) WaitForLogin(ctx context.Context, interval time.Duration) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		token, err := c.AccessToken(ctx)
		switch {
		case err == nil:
			return token, nil
		case !errors.Is(err, shared.ErrUnauthorized):
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", shared.ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Logout cancels the pending refresh, drops the token and destroys the server session.
func (c *Client) Logout(ctx context.Context) error {
	c.Close()

	resp, err := c.sendPath(ctx, http.MethodGet, "/api/logout", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrLogoutFailed, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", shared.ErrLogoutFailed, resp.StatusCode)
	}
	return nil
}

// Close cancels the pending refresh and forgets the access token.
func (c *Client) Close() {
	c.timer.Cancel()

	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// store keeps the token and replaces the pending refresh with one due RefreshMargin before expiry.
func (c *Client) store(body tokenResponse) {
	c.mu.Lock()
	c.token = body.AccessToken
	c.mu.Unlock()

	c.timer.Schedule(refreshDelay(lifetime(body.ExpiresIn)), c.refreshInBackground)
}

func (c *Client) refreshInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("proactive refresh failed", "error", err)
	}
}

// refreshDelay returns the delay before refreshing a token that lives expiresIn seconds, never negative.
func refreshDelay(expiresIn int) time.Duration {
	return max(time.Duration(expiresIn)*time.Second-RefreshMargin, 0)
}

func lifetime(expiresIn *int) int {
	if expiresIn == nil {
		return DefaultLifetime
	}
	return *expiresIn
}

// doJSON issues method path with an optional JSON body and decodes a JSON response into out.
//
// A 204 leaves out untouched and reports false.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) (bool, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return false, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Issue(req)
	if err != nil {
		return false, err
	}
	defer drain(resp)

	if err := c.statusError(resp); err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return resp.StatusCode != http.StatusNoContent, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: malformed response: %v", shared.ErrUpstream, err)
	}
	return true, nil
}

// statusError maps a non-2xx response onto the error taxonomy.
func (c *Client) statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}

	var body errorResponse
	json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", shared.ErrUnauthorized, resp.StatusCode)
	case http.StatusTooManyRequests:
		after := shared.ParseRetryAfter(resp.Header.Get("Retry-After"), c.clock.Now())
		if after == 0 && body.RetryAfter > 0 {
			after = time.Duration(body.RetryAfter) * time.Second
		}
		return &shared.RateLimitError{RetryAfter: after}
	}

	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &shared.UpstreamError{Status: resp.StatusCode, Message: msg}
}

func (c *Client) sendPath(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return c.send(req, "")
}

// send performs one attempt with token as the bearer credential.
func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(r)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	return resp, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// rewind returns a copy of req whose body can be sent again.
func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("%w: request body cannot be replayed", shared.ErrInvalidInput)
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to replay request body: %w", err)
	}
	retry.Body = body
	return retry, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
