package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/cordless/internal/models"
)

// Sessions stores hashed session tokens in app_sessions.
type Sessions struct {
	db DB
}

func NewSessions(db DB) *Sessions {
	return &Sessions{db: db}
}

func (s *Sessions) CreateSession(ctx context.Context, sess *models.Session) error {
	q := `
		INSERT INTO app_sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.Exec(ctx, q, sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", mapInsertErr(err))
	}
	return nil
}

// GetSessionUser returns the owner of a session that is still valid at now.
// A missing, expired or orphaned session yields nil, nil.
func (s *Sessions) GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	q := `
		SELECT u.id, u.username, u.password_hash
		FROM app_sessions s
		JOIN app_users u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > $2
	`
	var u models.User
	err := s.db.QueryRow(ctx, q, tokenHash, now).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &u, nil
}

// DeleteSessionByHash removes the session and reports how many rows went.
func (s *Sessions) DeleteSessionByHash(ctx context.Context, tokenHash string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM app_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session: %w", err)
	}
	return tag.RowsAffected(), nil
}
