package notify

import (
	"sync"
)

// Broker fans notifications out to subscribers.
//
// Delivery is fire-and-forget: publishing never blocks, a subscriber whose
// buffer is full misses that notification, and there is no replay; a
// subscriber only sees notifications published after it subscribed. The
// change feed is advisory, consumers needing exactness re-read the store.
type Broker struct {
	mu   sync.Mutex
	subs map[int]chan Notification
	next int
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: map[int]chan Notification{}}
}

// Subscribe registers a subscriber and returns its channel plus a cancel
// function. The buffer bounds how far the subscriber may fall behind.
func (b *Broker) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers the notification to every current subscriber without
// blocking.
func (b *Broker) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
