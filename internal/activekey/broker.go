// Package activekey distributes "active key" values, such as the selected
// tab of a screen, to tables whose identity depends on them.
//
// The broker is a small in-process pub/sub. Each topic remembers its latest
// value so late subscribers can read it without waiting for the next
// publish.
package activekey

import (
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. Slow
// subscribers drop intermediate values but always observe the latest via
// Latest.
const subscriberBuffer = 8

// Broker fans out published keys per topic.
type Broker struct {
	mu     sync.RWMutex
	latest map[string]string
	subs   map[string]map[int]chan string
	nextID int
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		latest: make(map[string]string),
		subs:   make(map[string]map[int]chan string),
	}
}

// Publish records key as the latest value of topic and notifies
// subscribers without blocking.
func (b *Broker) Publish(topic, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest[topic] = key
	for _, ch := range b.subs[topic] {
		select {
		case ch <- key:
		default:
		}
	}
}

// Latest returns the last key published on topic.
func (b *Broker) Latest(topic string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	key, ok := b.latest[topic]
	return key, ok
}

// Subscribe returns a channel receiving keys published on topic and a
// cancel function that closes it. Cancel is safe to call more than once.
func (b *Broker) Subscribe(topic string) (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan string)
	}
	b.subs[topic][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscribers on topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
