// Package feed distributes live attendance snapshots to display
// clients. The in-process broadcaster serves a single node; the redis
// bridge extends the same snapshots across nodes via pub/sub.
package feed

import (
	"sync"
	"time"

	"presenza/internal/projector"
	"presenza/pkg/domain"
)

// Snapshot is one refresh of a conference's live table.
type Snapshot struct {
	ConferenceID domain.ConferenceID `json:"conference_id"`
	At           time.Time           `json:"at"`
	Rows         []projector.View    `json:"rows"`
}

// Broadcaster fans snapshots out to subscribers. Delivery is
// best-effort: a subscriber that cannot keep up misses snapshots
// rather than stalling the refresher (the next snapshot supersedes the
// missed one anyway).
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	conferenceID domain.ConferenceID
	ch           chan Snapshot
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]subscription)}
}

// Subscribe registers a listener for one conference's snapshots. The
// returned cancel func must be called to release the subscription.
func (b *Broadcaster) Subscribe(conferenceID domain.ConferenceID) (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Snapshot, 1)
	b.subs[id] = subscription{conferenceID: conferenceID, ch: ch}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// Publish delivers the snapshot to every subscriber of its conference
// without blocking.
func (b *Broadcaster) Publish(snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.conferenceID != snap.ConferenceID {
			continue
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}
