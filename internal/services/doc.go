// Package services defines the [Service] interface for the upstream music API and implements it for Spotify.
//
// # Spotify Implementation
//
// [SpotifyService] holds no credentials. Each call builds a short-lived Web API client around the access
// token it was given, so one service value is shared by every session on the server.
//
// Player, catalog and playlist calls use github.com/zmb3/spotify/v2. Recommendations go through
// [APIService], which returns the raw response so the Retry-After header of a 429 is kept.
//
// An optional [rate.Limiter] paces all outgoing calls.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrUnauthorized] : the access token was rejected (401)
//   - [shared.RateLimitError] : throttled (429), carries the requested delay
//   - [shared.UpstreamError] : any other non-2xx status with the upstream message
//   - [shared.ErrServiceUnavailable] : the request never got a response
//
// # API Mappings
//
// Web API tracks, devices and users are converted to [models.Track], [models.Device] and [models.Profile].
// A player that is not playing reports the "already_paused" pause restriction so the track-ended rule
// of the player can be evaluated against it.
package services
