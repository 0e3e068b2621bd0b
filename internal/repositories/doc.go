// Package repositories implements SQL persistence for findtune.
//
// Repositories work against database/sql with either the sqlite3 or postgres driver; queries are written
// with "?" placeholders and rebound through [shared.Rebind]. The schema comes from the embedded migrations
// run by [shared.RunMigrations].
//
// Key Implementations:
//   - [SessionRepository] : server-side sessions, implements [sessions.Store]
//   - [LikedTrackRepository] : the player's liked set, kept between runs
package repositories
