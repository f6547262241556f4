// Package account implements signup, login, logout and whoami on top of the
// credential store and the session manager.
package account

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cordless/internal/apperr"
	"github.com/jason-s-yu/cordless/internal/auth"
	"github.com/jason-s-yu/cordless/internal/database"
	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	MinUsernameLength = 3
	MinPasswordLength = 8
)

const (
	msgBadCredentialsShape = "Username must be 3+ chars and password must be 8+ chars."
	msgUsernameTaken       = "Username already exists."
	msgInvalidLogin        = "Invalid username or password."
	msgUnauthorized        = "Unauthorized"
	msgPartialSignup       = "Account created, but signing in failed. Please log in."
	msgLoginConfig         = "Login failed due to database configuration. Ensure migrations have been applied."
	msgSignupConfig        = "Signup failed due to database configuration. Ensure migrations have been applied."
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type Sessions interface {
	Create(ctx context.Context, userID uuid.UUID) (string, *models.Session, error)
	Resolve(ctx context.Context, token string) (*models.User, error)
	Revoke(ctx context.Context, token string) error
}

// Result is a signed-in user together with the bearer token to hand back.
type Result struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

type Service struct {
	users    UserStore
	sessions Sessions
	hasher   *auth.Hasher
	logger   *logrus.Logger
}

func NewService(users UserStore, sessions Sessions, hasher *auth.Hasher, logger *logrus.Logger) *Service {
	return &Service{users: users, sessions: sessions, hasher: hasher, logger: logger}
}

// Normalize trims and lowercases a username.
func Normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Signup creates the account and signs it in. When the account is stored
// but the session cannot be created, the error is a PartialSignup and the
// Result still carries the new user.
func (s *Service) Signup(ctx context.Context, username, password string) (*Result, error) {
	username = Normalize(username)
	password = strings.TrimSpace(password)
	if utf8.RuneCountInString(username) < MinUsernameLength || utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, apperr.Invalid(msgBadCredentialsShape)
	}

	existing, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Config(msgSignupConfig, err)
	}
	if existing != nil {
		return nil, apperr.Conflict(msgUsernameTaken)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	u := &models.User{Username: username, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, apperr.Conflict(msgUsernameTaken)
		}
		return nil, apperr.Config(msgSignupConfig, err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  u.ID,
		"username": u.Username,
	}).Info("account created")

	token, sess, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", u.ID).Error("account created without a session")
		return &Result{User: u}, apperr.PartialSignup(msgPartialSignup, err)
	}
	return &Result{User: u, Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

// Login verifies credentials. An unknown username and a wrong password fail
// with the same error after the same amount of hashing work.
func (s *Service) Login(ctx context.Context, username, password string) (*Result, error) {
	username = Normalize(username)
	password = strings.TrimSpace(password)

	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Config(msgLoginConfig, err)
	}
	if u == nil {
		s.hasher.VerifyAbsent(password)
		return nil, apperr.Unauthenticated(msgInvalidLogin)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, apperr.Unauthenticated(msgInvalidLogin)
	}

	token, sess, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, apperr.Config(msgLoginConfig, err)
	}
	return &Result{User: u, Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

// Logout revokes token. Failures are only logged; the caller always
// clears its cookie.
func (s *Service) Logout(ctx context.Context, token string) {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.logger.WithError(err).Warn("logout could not delete session")
	}
}

// WhoAmI returns the session owner or an Unauthenticated error.
func (s *Service) WhoAmI(ctx context.Context, token string) (*models.User, error) {
	u, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		s.logger.WithError(err).Warn("session lookup failed")
		return nil, apperr.Unauthenticated(msgUnauthorized)
	}
	if u == nil {
		return nil, apperr.Unauthenticated(msgUnauthorized)
	}
	return u, nil
}
