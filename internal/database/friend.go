// internal/database/friend.go

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/cordless/internal/models"
)

const friendColumns = `id, from_user_id, to_user_id, status, created_at`

// Friends is the relationship store backed by friend_requests. The pair
// index on (LEAST, GREATEST) keeps one row per unordered pair.
type Friends struct {
	db DB
}

func NewFriends(db DB) *Friends {
	return &Friends{db: db}
}

// PairOf matches the row between a and b in either direction.
func PairOf(a, b uuid.UUID) Cond {
	return Or(
		And(Eq("from_user_id", a), Eq("to_user_id", b)),
		And(Eq("from_user_id", b), Eq("to_user_id", a)),
	)
}

// Touching matches rows where userID is either party.
func Touching(userID uuid.UUID) Cond {
	return Or(Eq("from_user_id", userID), Eq("to_user_id", userID))
}

// FindBetween returns the row between a and b in any direction and status,
// or nil, nil.
func (s *Friends) FindBetween(ctx context.Context, a, b uuid.UUID) (*models.FriendRequest, error) {
	where, args := Where(0, PairOf(a, b))
	row := s.db.QueryRow(ctx, `SELECT `+friendColumns+` FROM friend_requests `+where+` LIMIT 1`, args...)
	return scanFriend(row)
}

// GetFriendRequest returns the row with id, or nil, nil.
func (s *Friends) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	where, args := Where(0, Eq("id", id))
	return scanFriend(s.db.QueryRow(ctx, `SELECT `+friendColumns+` FROM friend_requests `+where, args...))
}

// InsertFriendRequest stores fr as given. A second row for the same pair
// yields ErrDuplicate.
func (s *Friends) InsertFriendRequest(ctx context.Context, fr *models.FriendRequest) error {
	if fr.ID == uuid.Nil {
		fr.ID = uuid.New()
	}
	q := `
		INSERT INTO friend_requests (id, from_user_id, to_user_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.Exec(ctx, q, fr.ID, fr.FromUserID, fr.ToUserID, string(fr.Status), fr.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert friend request: %w", mapInsertErr(err))
	}
	return nil
}

// AcceptFriendRequest flips a pending row to accepted only when recipient
// is its to_user_id. It returns the number of rows changed.
func (s *Friends) AcceptFriendRequest(ctx context.Context, id, recipient uuid.UUID) (int64, error) {
	where, args := Where(1, And(
		Eq("id", id),
		Eq("to_user_id", recipient),
		Eq("status", string(models.FriendPending)),
	))
	args = append([]any{string(models.FriendAccepted)}, args...)

	tag, err := s.db.Exec(ctx, `UPDATE friend_requests SET status = $1 `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to accept friend request: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListFriendRequests returns every row touching userID, newest first.
func (s *Friends) ListFriendRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	where, args := Where(0, Touching(userID))
	q := `SELECT ` + friendColumns + ` FROM friend_requests ` + where + ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}
	defer rows.Close()

	var out []models.FriendRequest
	for rows.Next() {
		fr, err := scanFriendRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fr)
	}
	return out, rows.Err()
}

func scanFriend(row pgx.Row) (*models.FriendRequest, error) {
	fr, err := scanFriendRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return fr, err
}

func scanFriendRow(row pgx.Row) (*models.FriendRequest, error) {
	var fr models.FriendRequest
	var status string
	if err := row.Scan(&fr.ID, &fr.FromUserID, &fr.ToUserID, &status, &fr.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan friend request: %w", err)
	}
	fr.Status = models.FriendStatus(status)
	return &fr, nil
}
