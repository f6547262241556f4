package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jason-s-yu/cordless/internal/feed"
	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// PushSource relays change feed events. After every successful subscribe
// it reconciles with a fresh view, since the feed does not replay what was
// published while disconnected.
type PushSource struct {
	sub    feed.Subscriber
	views  Viewer
	logger *logrus.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewPushSource(sub feed.Subscriber, views Viewer, logger *logrus.Logger) *PushSource {
	return &PushSource{sub: sub, views: views, logger: logger, minBackoff: minBackoff, maxBackoff: maxBackoff}
}

func (p *PushSource) Stream(ctx context.Context, user *models.User) <-chan Change {
	out := make(chan Change)
	go func() {
		defer close(out)
		log := p.logger.WithField("user_id", user.ID)
		backoff := p.minBackoff

		for ctx.Err() == nil {
			subCtx, cancel := context.WithCancel(ctx)
			ok := p.relay(subCtx, user, out, log, &backoff)
			cancel()
			if !ok || ctx.Err() != nil {
				return
			}
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, p.maxBackoff)
		}
	}()
	return out
}

// relay runs one subscription: subscribe, reconcile, then forward events
// until the feed closes the channel. A failed subscribe or reconcile drops
// the subscription so the caller backs off and tries again; without a
// baseline view the events alone cannot be applied. It returns false once
// out can no longer be written.
func (p *PushSource) relay(ctx context.Context, user *models.User, out chan<- Change, log *logrus.Entry, backoff *time.Duration) bool {
	events, err := p.sub.Subscribe(ctx, feed.CollectionFriendRequests, feed.Insert, feed.Update)
	if err != nil {
		log.WithError(err).Warn("change feed subscribe failed")
		return true
	}

	view, err := p.views.ListView(ctx, user)
	if err != nil {
		log.WithError(err).Warn("reconcile after subscribe failed, dropping subscription")
		return true
	}
	if !send(ctx, out, Change{Kind: ChangeReconcile, Snapshot: view}) {
		return false
	}
	*backoff = p.minBackoff

	for ev := range events {
		var row models.FriendRequest
		if err := json.Unmarshal(ev.Row, &row); err != nil {
			log.WithError(err).Warn("dropping undecodable friend request event")
			continue
		}
		kind := ChangeInsert
		if ev.Kind == feed.Update {
			kind = ChangeUpdate
		}
		if !send(ctx, out, Change{Kind: kind, Request: &row}) {
			return false
		}
	}
	if ctx.Err() == nil {
		log.Info("change feed subscription lost, resubscribing")
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
