// Package live fans state snapshots out to subscribers.
//
// Each subscription holds at most one pending snapshot: publishing while a
// snapshot is still unread replaces it, so a slow reader only ever sees the
// most recent state. Subscriptions must be cancelled when the reader goes
// away; a cancelled subscription can be replaced by subscribing again.
package live

import (
	"fmt"
	"sync"
)

// Snapshot is one published state for a topic.
type Snapshot struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

type Subscription struct {
	hub    *Hub
	topics []string
	ch     chan Snapshot
	mu     sync.Mutex
	done   bool
	once   sync.Once
}

// C delivers snapshots. It is closed on Cancel.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Subscribe registers interest in one or more topics.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{hub: h, topics: topics, ch: make(chan Snapshot, 1)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.done = true
		close(sub.ch)
		return sub
	}
	for _, t := range topics {
		if h.subs[t] == nil {
			h.subs[t] = make(map[*Subscription]struct{})
		}
		h.subs[t][sub] = struct{}{}
	}
	return sub
}

// Cancel unregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.remove(s)
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.done {
			s.done = true
			close(s.ch)
		}
	})
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range sub.topics {
		delete(h.subs[t], sub)
		if len(h.subs[t]) == 0 {
			delete(h.subs, t)
		}
	}
}

// offer replaces any unread snapshot with snap.
func (s *Subscription) offer(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

// HasSubscribers reports whether anyone listens on topic, so callers can
// skip building snapshots nobody will read.
func (h *Hub) HasSubscribers(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic]) > 0
}

// Publish delivers data to every subscriber of topic.
func (h *Hub) Publish(topic string, data any) {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[topic]))
	for sub := range h.subs[topic] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	snap := Snapshot{Topic: topic, Data: data}
	for _, sub := range targets {
		sub.offer(snap)
	}
}

// Close cancels every subscription; later subscriptions are returned closed.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Subscription
	seen := map[*Subscription]bool{}
	for _, subs := range h.subs {
		for sub := range subs {
			if !seen[sub] {
				seen[sub] = true
				all = append(all, sub)
			}
		}
	}
	h.closed = true
	h.mu.Unlock()

	for _, sub := range all {
		sub.Cancel()
	}
}

func UserOrdersTopic(userID uint) string {
	return fmt.Sprintf("orders:user:%d", userID)
}

func UserNotificationsTopic(userID uint) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

const (
	AdminOrdersTopic = "orders:all"
	MenuTopic        = "menu"
)
