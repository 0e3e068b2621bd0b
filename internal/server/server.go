package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/findtune/internal/auth"
	"github.com/desertthunder/findtune/internal/services"
	"github.com/desertthunder/findtune/internal/sessions"
	"github.com/desertthunder/findtune/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, sessions, CORS, recovery, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own a group of endpoints.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Options configures a [Server].
type Options struct {
	Config   *shared.Config
	Auth     *auth.Controller
	Sessions sessions.Store
	Cookies  *sessions.CookieCodec
	Service  services.Service
	Clock    shared.Clock
	Logger   *log.Logger
}

// Server serves the /api endpoints.
type Server struct {
	config  *shared.Config
	router  *BasicRouter
	logger  *log.Logger
	httpSrv *http.Server
}

// New wires handlers and middleware into a [Server].
func New(opts Options) (*Server, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("%w: server config is required", shared.ErrMissingConfig)
	case opts.Auth == nil || opts.Sessions == nil || opts.Cookies == nil || opts.Service == nil:
		return nil, fmt.Errorf("%w: auth, sessions, cookies and service are required", shared.ErrInvalidConfig)
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	logger := shared.WithLogger(opts.Logger, "component", "server")
	sess := &sessionLoader{store: opts.Sessions, cookies: opts.Cookies, logger: logger}

	router := NewBasicRouter()
	router.Use(
		RecoverMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(opts.Config.Server.Domain),
		sess.Middleware,
	)

	router.Handler(&AuthHandler{
		auth:    opts.Auth,
		cookies: opts.Cookies,
		clock:   opts.Clock,
		logger:  logger,
		domain:  opts.Config.Server.Domain,
		maxAge:  opts.Config.Session.MaxAge(),
	})

	api := &APIHandler{
		service:  opts.Service,
		clock:    opts.Clock,
		logger:   logger,
		playlist: opts.Config.Player.PlaylistName,
	}
	api.Register(router)

	router.Handle(http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	return &Server{config: opts.Config, router: router, logger: logger}, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutting down")
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}
