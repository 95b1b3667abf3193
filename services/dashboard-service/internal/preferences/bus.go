package preferences

import (
	"context"
	"sync"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

// Bus fans preference changes out to every open view of a user. Each subscriber holds at most
// one pending value; a newer value replaces an undelivered older one.
type Bus struct {
	mu      sync.Mutex
	next    int
	subs    map[string]map[int]chan model.Preferences
	forward func(ctx context.Context, userID string, prefs model.Preferences)
}

func NewBus() *Bus {
	return &Bus{subs: map[string]map[int]chan model.Preferences{}}
}

// Subscribe returns a channel of updates for userID and a func that unsubscribes and closes it.
func (b *Bus) Subscribe(userID string) (<-chan model.Preferences, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan model.Preferences, 1)
	if b.subs[userID] == nil {
		b.subs[userID] = map[int]chan model.Preferences{}
	}
	b.subs[userID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			close(ch)
		})
	}
}

// Publish delivers locally and hands the value to the forwarder, if one is set.
func (b *Bus) Publish(ctx context.Context, userID string, prefs model.Preferences) {
	b.deliver(userID, prefs)
	b.mu.Lock()
	fwd := b.forward
	b.mu.Unlock()
	if fwd != nil {
		fwd(ctx, userID, prefs)
	}
}

// SetForwarder registers fn to receive every local publication.
func (b *Bus) SetForwarder(fn func(ctx context.Context, userID string, prefs model.Preferences)) {
	b.mu.Lock()
	b.forward = fn
	b.mu.Unlock()
}

func (b *Bus) deliver(userID string, prefs model.Preferences) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[userID] {
		select {
		case ch <- prefs:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- prefs
		}
	}
}

func (b *Bus) Subscribers(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}
