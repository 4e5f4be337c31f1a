package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one notification delivered to subscribers.
type Event struct {
	ID   string    `json:"id"`
	Name string    `json:"event"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// NewEvent stamps an event with an id and time.
func NewEvent(name string, data any) Event {
	return Event{ID: uuid.NewString(), Name: name, Data: data, At: time.Now().UTC()}
}

// ClassTopic is the channel students of a class listen on.
func ClassTopic(classID int64) string {
	return fmt.Sprintf("class-%d", classID)
}

// Subscription streams events for a set of topics until Close.
type Subscription struct {
	C     <-chan Event
	close func()
	once  sync.Once
}

// Close stops delivery and releases resources. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// Broker publishes and subscribes to topic-scoped events. Delivery is
// best-effort: no subscribers is not an error and nothing is retried.
type Broker interface {
	Publish(ctx context.Context, topic string, evt Event) error
	Subscribe(ctx context.Context, topics ...string) (*Subscription, error)
}

const subscriberBuffer = 16

// Hub is an in-process Broker.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*hubSub]struct{}
	closed bool
}

type hubSub struct {
	ch chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*hubSub]struct{})}
}

// Publish delivers evt to current subscribers of topic. Slow subscribers with
// a full buffer miss the event.
func (h *Hub) Publish(_ context.Context, topic string, evt Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[topic] {
		select {
		case sub.ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe registers for topics. The subscription also ends when ctx does.
func (h *Hub) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	sub := &hubSub{ch: make(chan Event, subscriberBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, fmt.Errorf("hub closed")
	}
	for _, t := range topics {
		if h.subs[t] == nil {
			h.subs[t] = make(map[*hubSub]struct{})
		}
		h.subs[t][sub] = struct{}{}
	}
	h.mu.Unlock()

	s := &Subscription{C: sub.ch}
	s.close = func() {
		h.mu.Lock()
		for _, t := range topics {
			delete(h.subs[t], sub)
			if len(h.subs[t]) == 0 {
				delete(h.subs, t)
			}
		}
		h.mu.Unlock()
		close(sub.ch)
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return s, nil
}

// Subscribers returns the number of subscribers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
