package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/sessions"
	"github.com/desertthunder/findtune/internal/shared"
)

var _ sessions.Store = (*SessionRepository)(nil)

// SessionRepository implements [sessions.Store] on top of database/sql.
//
// Works with both the sqlite3 and postgres drivers; queries are written with "?" and rebound per driver.
type SessionRepository struct {
	db     *sql.DB
	driver string
	clock  shared.Clock
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB, driver string, clock shared.Clock) *SessionRepository {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &SessionRepository{db: db, driver: driver, clock: clock}
}

const sessionColumns = `
	id, access_token, refresh_token, token_expires_at, user_id,
	login_state, login_verifier, login_created_at, login_cli, created_at, updated_at, expires_at
`

// Get retrieves a live session by ID
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ? AND expires_at > ?`

	row := r.db.QueryRowContext(ctx, shared.Rebind(r.driver, query), id, r.clock.Now().UTC())
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// FindByState retrieves the live session holding the pending login with the given state
func (r *SessionRepository) FindByState(ctx context.Context, state string) (*models.Session, error) {
	if state == "" {
		return nil, shared.ErrSessionNotFound
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE login_state = ? AND expires_at > ?`

	row := r.db.QueryRowContext(ctx, shared.Rebind(r.driver, query), state, r.clock.Now().UTC())
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session by state: %w", err)
	}
	return s, nil
}

// Save inserts or updates a session
func (r *SessionRepository) Save(ctx context.Context, s *models.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: session id is required", shared.ErrInvalidInput)
	}

	now := r.clock.Now().UTC()
	s.UpdatedAt = now
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}

	var (
		loginState, loginVerifier sql.NullString
		loginCreatedAt            sql.NullTime
		tokenExpiresAt            sql.NullTime
		loginCLI                  bool
	)
	if s.Login != nil {
		loginCLI = s.Login.CLI
		loginState = sql.NullString{String: s.Login.State, Valid: true}
		loginVerifier = sql.NullString{String: s.Login.Verifier, Valid: true}
		loginCreatedAt = sql.NullTime{Time: s.Login.CreatedAt.UTC(), Valid: true}
	}
	if !s.Credentials.ExpiresAt.IsZero() {
		tokenExpiresAt = sql.NullTime{Time: s.Credentials.ExpiresAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expires_at = excluded.token_expires_at,
			user_id = excluded.user_id,
			login_state = excluded.login_state,
			login_verifier = excluded.login_verifier,
			login_created_at = excluded.login_created_at,
			login_cli = excluded.login_cli,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`

	_, err := r.db.ExecContext(ctx, shared.Rebind(r.driver, query),
		s.ID, s.Credentials.AccessToken, s.Credentials.RefreshToken, tokenExpiresAt, s.Credentials.UserID,
		loginState, loginVerifier, loginCreatedAt, loginCLI, s.CreatedAt.UTC(), now, s.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session by ID
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, shared.Rebind(r.driver, `DELETE FROM sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry and returns how many were removed
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, shared.Rebind(r.driver, `DELETE FROM sessions WHERE expires_at <= ?`), r.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		s                         models.Session
		tokenExpiresAt            sql.NullTime
		loginState, loginVerifier sql.NullString
		loginCreatedAt            sql.NullTime
		loginCLI                  bool
		createdAt, updatedAt      time.Time
		expiresAt                 time.Time
	)

	err := row.Scan(
		&s.ID, &s.Credentials.AccessToken, &s.Credentials.RefreshToken, &tokenExpiresAt, &s.Credentials.UserID,
		&loginState, &loginVerifier, &loginCreatedAt, &loginCLI, &createdAt, &updatedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if tokenExpiresAt.Valid {
		s.Credentials.ExpiresAt = tokenExpiresAt.Time
	}
	if loginState.Valid {
		s.Login = &models.PendingLogin{State: loginState.String, Verifier: loginVerifier.String, CLI: loginCLI}
		if loginCreatedAt.Valid {
			s.Login.CreatedAt = loginCreatedAt.Time
		}
	}
	s.CreatedAt = createdAt
	s.UpdatedAt = updatedAt
	s.ExpiresAt = expiresAt

	return &s, nil
}
