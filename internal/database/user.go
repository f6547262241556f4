package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/cordless/internal/models"
)

// Users is the Postgres credential store backed by app_users.
type Users struct {
	db DB
}

func NewUsers(db DB) *Users {
	return &Users{db: db}
}

// CreateUser inserts u, assigning an id when it has none. A taken username
// yields ErrDuplicate.
func (s *Users) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		u.ID = id
	}

	q := `INSERT INTO app_users (id, username, password_hash) VALUES ($1, $2, $3)`
	if _, err := s.db.Exec(ctx, q, u.ID, u.Username, u.PasswordHash); err != nil {
		return fmt.Errorf("failed to insert user: %w", mapInsertErr(err))
	}
	return nil
}

// GetUserByUsername returns nil, nil when no user has that exact username.
func (s *Users) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	q := `SELECT id, username, password_hash FROM app_users WHERE username = $1`
	return s.scanOne(s.db.QueryRow(ctx, q, username))
}

// GetUserByID returns nil, nil when the id is unknown.
func (s *Users) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT id, username, password_hash FROM app_users WHERE id = $1`
	return s.scanOne(s.db.QueryRow(ctx, q, id))
}

func (s *Users) scanOne(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// GetUsernames resolves every id in one round trip. Unknown ids are simply
// missing from the result.
func (s *Users) GetUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	where, args := Where(0, In("id", ids))
	rows, err := s.db.Query(ctx, `SELECT id, username FROM app_users `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usernames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}
