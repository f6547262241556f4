package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID string `json:"id"`
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestMemoryFanOut(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := m.Subscribe(ctx, CollectionFriendRequests)
	require.NoError(t, err)
	b, err := m.Subscribe(ctx, CollectionFriendRequests, Update)
	require.NoError(t, err)

	ins, err := NewEvent(CollectionFriendRequests, Insert, row{ID: "1"})
	require.NoError(t, err)
	upd, err := NewEvent(CollectionFriendRequests, Update, row{ID: "1"})
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, ins))
	require.NoError(t, m.Publish(ctx, upd))

	assert.Equal(t, Insert, receive(t, a).Kind)
	assert.Equal(t, Update, receive(t, a).Kind)

	// b only asked for updates
	got := receive(t, b)
	assert.Equal(t, Update, got.Kind)
	var r row
	require.NoError(t, json.Unmarshal(got.Row, &r))
	assert.Equal(t, "1", r.ID)
}

func TestMemoryIgnoresOtherCollections(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.Subscribe(ctx, CollectionFriendRequests)
	require.NoError(t, err)

	ev, err := NewEvent("app_users", Insert, row{ID: "x"})
	require.NoError(t, err)
	require.NoError(t, m.Publish(ctx, ev))

	select {
	case got := <-ch:
		t.Fatalf("unexpected event %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryUnsubscribeOnCancel(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := m.Subscribe(ctx, CollectionFriendRequests)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Subscribers())

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
	assert.Equal(t, 0, m.Subscribers())
}

func TestMemoryDropsOverflowingSubscriber(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow, err := m.Subscribe(ctx, CollectionFriendRequests)
	require.NoError(t, err)
	fast, err := m.Subscribe(ctx, CollectionFriendRequests)
	require.NoError(t, err)

	ev, err := NewEvent(CollectionFriendRequests, Insert, row{ID: "1"})
	require.NoError(t, err)
	for i := 0; i < subscriberBuffer; i++ {
		require.NoError(t, m.Publish(ctx, ev))
		receive(t, fast)
	}
	// slow never reads, so this one overflows it
	require.NoError(t, m.Publish(ctx, ev))
	receive(t, fast)

	received := 0
	for range slow {
		received++
	}
	assert.Equal(t, subscriberBuffer, received)
	assert.Equal(t, 1, m.Subscribers())

	// cancelling after the drop must not close the channel twice
	cancel()
	for range fast {
	}
	assert.Equal(t, 0, m.Subscribers())
}
