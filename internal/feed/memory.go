package feed

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

type memorySub struct {
	collection string
	kinds      []Kind
	ch         chan Event
}

// Memory is an in-process feed for single-node deployments and tests.
// A subscriber whose buffer is full is dropped and its channel closed, so
// the reader can resubscribe and reconcile instead of silently missing
// events.
type Memory struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*memorySub
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[int]*memorySub)}
}

func (m *Memory) Publish(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.subs {
		if s.collection != ev.Collection || !wants(s.kinds, ev.Kind) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			m.drop(id)
		}
	}
	return nil
}

// drop must be called with mu held.
func (m *Memory) drop(id int) {
	s, ok := m.subs[id]
	if !ok {
		return
	}
	delete(m.subs, id)
	close(s.ch)
}

func (m *Memory) Subscribe(ctx context.Context, collection string, kinds ...Kind) (<-chan Event, error) {
	s := &memorySub{collection: collection, kinds: kinds, ch: make(chan Event, subscriberBuffer)}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = s
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.drop(id)
		m.mu.Unlock()
	}()
	return s.ch, nil
}

// Subscribers reports the number of live subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
