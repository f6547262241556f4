// Package notify turns relationship changes into per-user notifications.
// A Source delivers changes, either pushed from the change feed or
// synthesized by polling the list view; a Notifier filters them for one
// user and keeps that user's request list current.
package notify

import (
	"context"

	"github.com/jason-s-yu/cordless/internal/friends"
	"github.com/jason-s-yu/cordless/internal/models"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	// ChangeReconcile carries a fresh view after a (re)subscribe or the
	// first poll. It replaces whatever the consumer had cached.
	ChangeReconcile ChangeKind = "reconcile"
)

type Change struct {
	Kind     ChangeKind
	Request  *models.FriendRequest
	Snapshot *friends.View
}

// Source streams relationship changes for user until ctx ends, then closes
// the channel. Changes may concern other users; filtering is the
// consumer's job.
type Source interface {
	Stream(ctx context.Context, user *models.User) <-chan Change
}

// Viewer is implemented by friends.Engine.
type Viewer interface {
	ListView(ctx context.Context, user *models.User) (*friends.View, error)
}

func send(ctx context.Context, out chan<- Change, c Change) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
