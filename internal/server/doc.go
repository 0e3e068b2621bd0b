// Package server provides HTTP routing, middleware, and the /api endpoints of the findtune web service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering. Requests with the wrong
// method get a 405 with an Allow header.
//
// # Sessions
//
// Every request passes through the session loader, which reads the signed findtune-cookie and attaches the stored
// session to the request context. Sessions are only created by /api/login.
//
// # Authorization Endpoints
//
// [AuthHandler] runs the PKCE authorization code flow. Login stores a fresh verifier and state on the session and
// redirects to the authorization server. The callback rejects a missing or foreign state without contacting the token
// endpoint and redirects to the landing page with ?error=state_mismatch.
//
// A callback that arrives without a cookie (a login started by the CLI and finished in a browser) is matched to its
// session by state and answered with a small HTML status page.
//
// # Upstream Endpoints
//
// [APIHandler] forwards player, search, recommendation and playlist requests to a [services.Service]. The access token
// comes from the Authorization header when present, else from the session. Upstream failures map onto responses:
//   - 401 stays 401
//   - 429 becomes 429 with Retry-After and a retryAfter field
//   - other upstream statuses pass through with the upstream message
//   - validation errors become 400
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
