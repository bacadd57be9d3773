package notifier

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

func TestNotifier_Subscribe_Unsubscribe(t *testing.T) {
	n := New()

	ch := n.Subscribe()
	require.NotNil(t, ch)
	assert.Equal(t, 1, n.Listeners())

	n.Unsubscribe(ch)
	assert.Equal(t, 0, n.Listeners())

	_, open := <-ch
	assert.False(t, open, "channel should be closed")

	// Second unsubscribe is a no-op.
	n.Unsubscribe(ch)
}

func TestNotifier_Broadcast(t *testing.T) {
	n := New()

	ch1 := n.Subscribe()
	ch2 := n.Subscribe()
	defer n.Unsubscribe(ch1)
	defer n.Unsubscribe(ch2)

	delta := snapshot.Delta{HasChanges: true, AddedTables: []string{"t2"}}
	n.Broadcast(Event{Type: EventDrift, Catalog: "shop", Delta: &delta})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventDrift, ev.Type)
			assert.Equal(t, "shop", ev.Catalog)
			require.NotNil(t, ev.Delta)
			assert.Equal(t, []string{"t2"}, ev.Delta.AddedTables)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("listener did not receive broadcast")
		}
	}
}

func TestNotifier_Broadcast_NonBlocking(t *testing.T) {
	n := New()

	ch := n.Subscribe()
	defer n.Unsubscribe(ch)

	for range bufferSize {
		n.Broadcast(Event{Type: EventRefresh})
	}

	done := make(chan struct{})
	go func() {
		n.Broadcast(Event{Type: EventRefresh})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Broadcast blocked on full channel")
	}
	assert.Equal(t, 1, n.Dropped())
}

func TestNotifier_Concurrent(t *testing.T) {
	n := New()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := n.Subscribe()
			n.Broadcast(Event{Type: EventRefresh})
			n.Unsubscribe(ch)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, n.Listeners())
}
