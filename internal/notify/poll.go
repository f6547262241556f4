package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cordless/internal/friends"
	"github.com/jason-s-yu/cordless/internal/models"
	"github.com/sirupsen/logrus"
)

const DefaultPollInterval = 3 * time.Second

// PollSource re-reads the list view on an interval and diffs it against the
// previous read to synthesize insert and update changes.
type PollSource struct {
	views    Viewer
	interval time.Duration
	logger   *logrus.Logger
}

func NewPollSource(views Viewer, interval time.Duration, logger *logrus.Logger) *PollSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollSource{views: views, interval: interval, logger: logger}
}

func (p *PollSource) Stream(ctx context.Context, user *models.User) <-chan Change {
	out := make(chan Change)
	go func() {
		defer close(out)
		log := p.logger.WithField("user_id", user.ID)

		var prev map[uuid.UUID]models.FriendStatus
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			view, err := p.views.ListView(ctx, user)
			switch {
			case err != nil:
				log.WithError(err).Warn("poll failed")
			case prev == nil:
				prev = statuses(view)
				if !send(ctx, out, Change{Kind: ChangeReconcile, Snapshot: view}) {
					return
				}
			default:
				for _, c := range diff(prev, view) {
					if !send(ctx, out, c) {
						return
					}
				}
				prev = statuses(view)
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func statuses(v *friends.View) map[uuid.UUID]models.FriendStatus {
	m := make(map[uuid.UUID]models.FriendStatus, len(v.Requests))
	for _, fr := range v.Requests {
		m[fr.ID] = fr.Status
	}
	return m
}

// diff returns changes oldest first. Requests arrive newest first.
func diff(prev map[uuid.UUID]models.FriendStatus, v *friends.View) []Change {
	var changes []Change
	for i := len(v.Requests) - 1; i >= 0; i-- {
		fr := v.Requests[i]
		old, known := prev[fr.ID]
		switch {
		case !known:
			changes = append(changes, Change{Kind: ChangeInsert, Request: &fr})
		case old != fr.Status:
			changes = append(changes, Change{Kind: ChangeUpdate, Request: &fr})
		}
	}
	return changes
}
