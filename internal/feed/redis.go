package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultChannelPrefix namespaces the pub/sub channels, one per collection.
const DefaultChannelPrefix = "cordless:changes:"

// DialRedis connects to addr/db and pings it.
func DialRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Redis fans events out across server replicas with Redis pub/sub. As with
// Memory, a subscriber that falls a full buffer behind has its channel
// closed.
type Redis struct {
	rdb    *redis.Client
	prefix string
	logger *logrus.Logger
}

func NewRedis(rdb *redis.Client, logger *logrus.Logger) *Redis {
	return &Redis{rdb: rdb, prefix: DefaultChannelPrefix, logger: logger}
}

func (r *Redis) channel(collection string) string {
	return r.prefix + collection
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel(ev.Collection), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to '%s': %w", r.channel(ev.Collection), err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, collection string, kinds ...Kind) (<-chan Event, error) {
	ps := r.rdb.Subscribe(ctx, r.channel(collection))
	// wait for the subscription confirmation so no publish is missed after we return
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to '%s': %w", r.channel(collection), err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.WithFields(logrus.Fields{
						"channel": msg.Channel,
						"error":   err,
					}).Warn("dropping malformed feed event")
					continue
				}
				if !wants(kinds, ev.Kind) {
					continue
				}
				select {
				case out <- ev:
				default:
					// a stalled reader would back up into go-redis, which drops
					// messages without telling anyone; end the subscription instead
					r.logger.WithField("channel", msg.Channel).Warn("subscriber too slow, closing subscription")
					return
				}
			}
		}
	}()
	return out, nil
}
