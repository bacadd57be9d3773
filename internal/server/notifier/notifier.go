// Package notifier fans catalog events out to subscribed SSE streams.
package notifier

import (
	"sync"
	"time"

	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

// Event types.
const (
	// EventRefresh is sent after the lineage cache was dropped.
	EventRefresh = "refresh"
	// EventDrift is sent when a scheduled snapshot differs from the last one.
	EventDrift = "drift"
)

// Event is one notification. Delta is only set for drift events.
type Event struct {
	Type    string          `json:"type"`
	Catalog string          `json:"catalog"`
	Reason  string          `json:"reason,omitempty"`
	At      time.Time       `json:"at"`
	Delta   *snapshot.Delta `json:"delta,omitempty"`
}

// bufferSize is how many undelivered events a slow listener may hold.
const bufferSize = 8

// Notifier broadcasts events to all subscribed listeners.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
	dropped   int
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel that receives events.
// The caller must call Unsubscribe when done.
func (n *Notifier) Subscribe() chan Event {
	ch := make(chan Event, bufferSize)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[ch]; !ok {
		return
	}
	delete(n.listeners, ch)
	close(ch)
}

// Broadcast sends ev to every listener without blocking. A listener whose
// buffer is full misses the event.
func (n *Notifier) Broadcast(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.listeners {
		select {
		case ch <- ev:
		default:
			n.dropped++
		}
	}
}

// Listeners returns the number of subscribed listeners.
func (n *Notifier) Listeners() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Dropped returns how many deliveries were skipped because a listener was full.
func (n *Notifier) Dropped() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dropped
}
