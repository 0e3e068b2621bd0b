// Package models defines the domain entities shared by the findtune server, client and player.
//
// The package contains two categories of types:
//
// 1. Catalog and playback DTOs exchanged with the music service and between server and client
//   - [Track] : playable track with display metadata
//   - [PlaybackSnapshot] : state reported by the remote player
//   - [Device] : a playback output device
//   - [Profile], [Playlist] : user profile and playlist metadata
//
// 2. Session entities persisted by the session stores
//   - [Session] : server-side session record
//   - [Credentials] : access/refresh token pair with expiry, never sent to the client whole
//   - [PendingLogin] : PKCE verifier and anti-forgery state for one login attempt
package models
