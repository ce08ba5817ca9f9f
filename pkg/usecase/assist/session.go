package assist

import (
	"sync"
	"time"

	"github.com/k-taniguchi/sidekick/pkg/model"
)

// sessionState pairs a session with its single-writer lock. A new
// inbound message for a thread already mid-turn queues on the lock
// instead of mutating shared state concurrently.
type sessionState struct {
	mu      sync.Mutex
	session *model.Session
}

// dedupCap bounds the remembered-event table; oldest entries are evicted
// once the cap is exceeded.
const dedupCap = 100

// dedupWindow remembers recently processed event IDs so a retried
// delivery of the same event does not duplicate a turn.
type dedupWindow struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newDedupWindow() *dedupWindow {
	return &dedupWindow{seen: make(map[string]time.Time)}
}

// contains reports whether an event ID was already processed. An empty
// ID is never deduplicated.
func (d *dedupWindow) contains(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// remember records an event ID, reporting false when it was already
// seen. An empty ID is never deduplicated.
func (d *dedupWindow) remember(id string) bool {
	if id == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = time.Now()

	for len(d.seen) > dedupCap {
		oldestID := ""
		var oldest time.Time
		for seenID, at := range d.seen {
			if oldestID == "" || at.Before(oldest) {
				oldestID, oldest = seenID, at
			}
		}
		delete(d.seen, oldestID)
	}
	return true
}
