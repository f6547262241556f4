// Package feed is the change-notification capability: stores publish row
// changes and long-lived subscribers receive them. The feed does not filter
// by relevance and does not replay events missed during a disconnect.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	Insert Kind = "insert"
	Update Kind = "update"
)

// CollectionFriendRequests is the only collection that publishes today.
const CollectionFriendRequests = "friend_requests"

// Event is one row change. Row holds the full new row as JSON.
type Event struct {
	Collection string          `json:"collection"`
	Kind       Kind            `json:"kind"`
	Row        json.RawMessage `json:"row"`
	At         time.Time       `json:"at"`
}

func NewEvent(collection string, kind Kind, row any) (Event, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s row: %w", collection, err)
	}
	return Event{Collection: collection, Kind: kind, Row: data, At: time.Now().UTC()}, nil
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber streams events of the given kinds (all kinds when none are
// given). The channel is closed when ctx ends or the subscription is lost.
type Subscriber interface {
	Subscribe(ctx context.Context, collection string, kinds ...Kind) (<-chan Event, error)
}

type Feed interface {
	Publisher
	Subscriber
}

func wants(kinds []Kind, k Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
