package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/visionary-ai/storyboard-server/internal/models"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	const query = `INSERT INTO sessions (token, account_id, expires_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, session.Token, session.AccountID, session.ExpiresAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Find returns nil for unknown or expired tokens.
func (r *SessionRepository) Find(ctx context.Context, token string) (*models.Session, error) {
	const query = `
SELECT token, account_id, created_at, expires_at FROM sessions
WHERE token = ? AND expires_at > NOW()`
	row := r.db.QueryRowContext(ctx, query, token)
	var s models.Session
	if err := row.Scan(&s.Token, &s.AccountID, &s.CreatedAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	const query = `DELETE FROM sessions WHERE token = ?`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
