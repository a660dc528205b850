package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/restockd/restockd/internal/models"
)

// FindSession returns the cached verified session for a domain, or nil when
// none exists or the stored one has expired. Expired rows stay in place until
// the sweep removes them; they are just never returned.
func (db *DB) FindSession(ctx context.Context, domain string) (*models.VerifiedSession, error) {
	query := `
		SELECT id, domain, cookies, user_agent, created_at, expires_at
		FROM verified_sessions
		WHERE domain = $1 AND expires_at > NOW()`

	s := &models.VerifiedSession{}
	err := db.QueryRow(ctx, query, domain).Scan(
		&s.ID, &s.Domain, &s.Cookies, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return s, nil
}

// UpsertSession stores a freshly verified session for a domain. A later
// verification supersedes the stored row entirely; last writer wins.
func (db *DB) UpsertSession(ctx context.Context, domain string, cookies json.RawMessage, userAgent string, ttl time.Duration) (*models.VerifiedSession, error) {
	query := `
		INSERT INTO verified_sessions (id, domain, cookies, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, NOW() + $5)
		ON CONFLICT (domain) DO UPDATE SET
			cookies = EXCLUDED.cookies,
			user_agent = EXCLUDED.user_agent,
			created_at = NOW(),
			expires_at = EXCLUDED.expires_at
		RETURNING id, domain, cookies, user_agent, created_at, expires_at`

	s := &models.VerifiedSession{}
	err := db.QueryRow(ctx, query, uuid.New(), domain, cookies, userAgent, ttl).Scan(
		&s.ID, &s.Domain, &s.Cookies, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}

	return s, nil
}

// DeleteSession removes a session by domain.
func (db *DB) DeleteSession(ctx context.Context, domain string) error {
	if _, err := db.Exec(ctx, `DELETE FROM verified_sessions WHERE domain = $1`, domain); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions sweeps sessions past their expiry and returns the
// number removed.
func (db *DB) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM verified_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
