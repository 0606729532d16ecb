package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/docrepo-api/internal/models"
)

const sessionColumns = `id, user_id, user_type, expires_at, created_at, last_seen_at, user_agent, ip_address`

// SessionRepository persists server-side sessions keyed by token hash.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = now
	}
	query := `INSERT INTO sessions (` + sessionColumns + `)
VALUES (:id, :user_id, :user_type, :expires_at, :created_at, :last_seen_at, :user_agent, :ip_address)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindActive returns a non-expired session by id.
func (r *SessionRepository) FindActive(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 AND expires_at > NOW()`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// Extend pushes the expiry of a session forward and records activity.
func (r *SessionRepository) Extend(ctx context.Context, id string, expiresAt, seenAt time.Time) error {
	const query = `UPDATE sessions SET expires_at = $2, last_seen_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, expiresAt, seenAt); err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sessions WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteByUser removes every session of a user except keepID and returns the removed ids
// so cached copies can be evicted.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID, keepID string) ([]string, error) {
	const query = `DELETE FROM sessions WHERE user_id = $1 AND id <> $2 RETURNING id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID, keepID); err != nil {
		return nil, fmt.Errorf("delete user sessions: %w", err)
	}
	return ids, nil
}

// DeleteExpired purges sessions past their expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at <= $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// CountActiveByUsers reports live session counts for the given users.
func (r *SessionRepository) CountActiveByUsers(ctx context.Context, userIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	const query = `SELECT user_id, COUNT(*) AS count FROM sessions WHERE user_id = ANY($1) AND expires_at > NOW() GROUP BY user_id`
	rows, err := r.db.QueryxContext(ctx, query, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			userID string
			count  int
		)
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("scan session count: %w", err)
		}
		result[userID] = count
	}
	return result, rows.Err()
}
