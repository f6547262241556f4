package models

import (
	"time"

	"github.com/google/uuid"
)

type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	// FriendBlocked is accepted by the schema but nothing produces or consumes it.
	FriendBlocked FriendStatus = "blocked"
)

// FriendRequest is the directed row between two users. Once accepted it is
// read symmetrically.
type FriendRequest struct {
	ID         uuid.UUID    `json:"id"`
	FromUserID uuid.UUID    `json:"from_user_id"`
	ToUserID   uuid.UUID    `json:"to_user_id"`
	Status     FriendStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Touches reports whether userID is either party of the request.
func (f *FriendRequest) Touches(userID uuid.UUID) bool {
	return f.FromUserID == userID || f.ToUserID == userID
}

// Other returns the party that is not userID.
func (f *FriendRequest) Other(userID uuid.UUID) uuid.UUID {
	if f.FromUserID == userID {
		return f.ToUserID
	}
	return f.FromUserID
}
