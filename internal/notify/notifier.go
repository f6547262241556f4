package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cordless/internal/friends"
	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/sirupsen/logrus"
)

type NotificationKind string

const (
	KindSnapshot        NotificationKind = "snapshot"
	KindRequestInserted NotificationKind = "request_inserted"
	KindRequestUpdated  NotificationKind = "request_updated"
	KindRequestReceived NotificationKind = "friend_request_received"
)

// Notification is what a realtime client receives.
type Notification struct {
	Kind     NotificationKind       `json:"kind"`
	Request  *models.FriendRequest  `json:"request,omitempty"`
	View     *friends.View          `json:"view,omitempty"`
	Requests []models.FriendRequest `json:"requests,omitempty"`
	Message  string                 `json:"message,omitempty"`
}

// UsernameResolver is implemented by the user stores.
type UsernameResolver interface {
	GetUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// Notifier holds one connection's view of the user's requests. It is not
// safe for concurrent use.
type Notifier struct {
	user   *models.User
	names  UsernameResolver
	logger *logrus.Logger

	requests []models.FriendRequest
	index    map[uuid.UUID]int
}

func NewNotifier(user *models.User, names UsernameResolver, logger *logrus.Logger) *Notifier {
	return &Notifier{user: user, names: names, logger: logger, index: make(map[uuid.UUID]int)}
}

// Requests returns the cached list, newest insert first.
func (n *Notifier) Requests() []models.FriendRequest {
	out := make([]models.FriendRequest, len(n.requests))
	copy(out, n.requests)
	return out
}

// Apply folds c into the cache and returns the notifications it produces.
// Changes that do not touch the user produce nothing.
func (n *Notifier) Apply(ctx context.Context, c Change) []Notification {
	switch c.Kind {
	case ChangeReconcile:
		if c.Snapshot == nil {
			return nil
		}
		n.requests = append(n.requests[:0], c.Snapshot.Requests...)
		n.reindex()
		return []Notification{{Kind: KindSnapshot, View: c.Snapshot, Requests: n.Requests()}}

	case ChangeInsert:
		if c.Request == nil || !c.Request.Touches(n.user.ID) {
			return nil
		}
		fr := *c.Request
		if i, known := n.index[fr.ID]; known {
			n.requests[i] = fr
			return nil
		}
		n.requests = append([]models.FriendRequest{fr}, n.requests...)
		n.reindex()

		out := []Notification{{Kind: KindRequestInserted, Request: &fr}}
		if fr.ToUserID == n.user.ID && fr.Status == models.FriendPending {
			out = append(out, Notification{
				Kind:    KindRequestReceived,
				Request: &fr,
				Message: fmt.Sprintf("%s sent you a friend request.", n.senderName(ctx, fr.FromUserID)),
			})
		}
		return out

	case ChangeUpdate:
		if c.Request == nil || !c.Request.Touches(n.user.ID) {
			return nil
		}
		fr := *c.Request
		if i, known := n.index[fr.ID]; known {
			n.requests[i] = fr
		} else {
			n.index[fr.ID] = len(n.requests)
			n.requests = append(n.requests, fr)
		}
		return []Notification{{Kind: KindRequestUpdated, Request: &fr}}
	}
	return nil
}

func (n *Notifier) reindex() {
	clear(n.index)
	for i, fr := range n.requests {
		n.index[fr.ID] = i
	}
}

func (n *Notifier) senderName(ctx context.Context, id uuid.UUID) string {
	names, err := n.names.GetUsernames(ctx, []uuid.UUID{id})
	if err != nil {
		n.logger.WithError(err).WithField("sender_id", id).Warn("could not resolve sender name")
		return "Someone"
	}
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return "Someone"
}

// Run feeds src into n and hands every notification to deliver until the
// source closes or deliver fails.
func Run(ctx context.Context, src Source, n *Notifier, deliver func(Notification) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for c := range src.Stream(ctx, n.user) {
		for _, note := range n.Apply(ctx, c) {
			if err := deliver(note); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}
