package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cordless/internal/feed"
	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/sirupsen/logrus"
)

// FriendStore is implemented by Friends and Memory.
type FriendStore interface {
	FindBetween(ctx context.Context, a, b uuid.UUID) (*models.FriendRequest, error)
	GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error)
	InsertFriendRequest(ctx context.Context, fr *models.FriendRequest) error
	AcceptFriendRequest(ctx context.Context, id, recipient uuid.UUID) (int64, error)
	ListFriendRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)
}

// PublishingFriends emits insert/update events for every successful
// mutation. A publish failure is logged; the mutation already committed.
type PublishingFriends struct {
	FriendStore
	pub    feed.Publisher
	logger *logrus.Logger
}

func NewPublishingFriends(store FriendStore, pub feed.Publisher, logger *logrus.Logger) *PublishingFriends {
	return &PublishingFriends{FriendStore: store, pub: pub, logger: logger}
}

func (p *PublishingFriends) InsertFriendRequest(ctx context.Context, fr *models.FriendRequest) error {
	if err := p.FriendStore.InsertFriendRequest(ctx, fr); err != nil {
		return err
	}
	p.publish(ctx, feed.Insert, fr)
	return nil
}

func (p *PublishingFriends) AcceptFriendRequest(ctx context.Context, id, recipient uuid.UUID) (int64, error) {
	n, err := p.FriendStore.AcceptFriendRequest(ctx, id, recipient)
	if err != nil || n == 0 {
		return n, err
	}

	fr, err := p.FriendStore.GetFriendRequest(ctx, id)
	if err != nil || fr == nil {
		p.logger.WithFields(logrus.Fields{
			"request_id": id,
			"error":      err,
		}).Warn("accepted friend request could not be re-read for the change feed")
		return n, nil
	}
	p.publish(ctx, feed.Update, fr)
	return n, nil
}

func (p *PublishingFriends) publish(ctx context.Context, kind feed.Kind, fr *models.FriendRequest) {
	ev, err := feed.NewEvent(feed.CollectionFriendRequests, kind, fr)
	if err == nil {
		err = p.pub.Publish(ctx, ev)
	}
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"request_id": fr.ID,
			"kind":       kind,
			"error":      err,
		}).Error("failed to publish friend request change")
	}
}
