// Package session issues, resolves and revokes server-side login sessions.
// Only the sha256 digest of a bearer token is ever stored.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cordless/internal/auth"
	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultMaxAge is the lifetime of a session when Config leaves it unset.
const DefaultMaxAge = 7 * 24 * time.Hour

// Store is the persistence the Manager needs. database.Sessions and
// database.Memory implement it.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
	DeleteSessionByHash(ctx context.Context, tokenHash string) (int64, error)
}

type Config struct {
	MaxAge time.Duration
}

type Manager struct {
	store  Store
	maxAge time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

func NewManager(cfg Config, store Store, logger *logrus.Logger) *Manager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	return &Manager{store: store, maxAge: cfg.MaxAge, logger: logger, now: time.Now}
}

// MaxAge is the configured session lifetime, also used for the cookie.
func (m *Manager) MaxAge() time.Duration { return m.maxAge }

// Create starts a session for userID. The returned token is the only copy of
// the credential.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID) (string, *models.Session, error) {
	token, hash, err := auth.GenerateToken()
	if err != nil {
		return "", nil, err
	}

	now := m.now().UTC()
	sess := &models.Session{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: now.Add(m.maxAge),
		CreatedAt: now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}
	return token, sess, nil
}

// Resolve returns the user owning token, or nil, nil when the session is
// absent, expired or points at a missing user. Store faults are returned so
// the caller can choose a policy.
func (m *Manager) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	u, err := m.store.GetSessionUser(ctx, auth.HashToken(token), m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	return u, nil
}

// ResolveOrAnonymous treats any store fault as an unauthenticated caller.
func (m *Manager) ResolveOrAnonymous(ctx context.Context, token string) *models.User {
	u, err := m.Resolve(ctx, token)
	if err != nil {
		m.logger.WithError(err).Warn("session lookup failed, treating request as anonymous")
		return nil
	}
	return u
}

// Revoke deletes the session for token. Revoking an unknown or empty token
// succeeds.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	n, err := m.store.DeleteSessionByHash(ctx, auth.HashToken(token))
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if n > 0 {
		m.logger.Debug("session revoked")
	}
	return nil
}
