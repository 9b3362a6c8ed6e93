package activekey

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_LatestWithoutSubscribers(t *testing.T) {
	b := NewBroker()

	_, ok := b.Latest("tabs")
	assert.False(t, ok)

	b.Publish("tabs", "open")
	b.Publish("tabs", "closed")

	key, ok := b.Latest("tabs")
	require.True(t, ok)
	assert.Equal(t, "closed", key)

	_, ok = b.Latest("other")
	assert.False(t, ok)
}

func TestBroker_SubscribeReceivesPublishes(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("tabs")
	defer cancel()

	b.Publish("tabs", "open")
	b.Publish("elsewhere", "ignored")

	assert.Equal(t, "open", <-ch)
	select {
	case key := <-ch:
		t.Fatalf("unexpected key %q", key)
	default:
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("tabs")
	defer cancel()

	for i := 0; i < subscriberBuffer*3; i++ {
		b.Publish("tabs", "k")
	}
	assert.Len(t, ch, subscriberBuffer)

	b.Publish("tabs", "last")
	key, _ := b.Latest("tabs")
	assert.Equal(t, "last", key)
}

func TestBroker_CancelClosesAndForgets(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("tabs")
	_, other := b.Subscribe("tabs")
	defer other()
	require.Equal(t, 2, b.SubscriberCount("tabs"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 1, b.SubscriberCount("tabs"))

	b.Publish("tabs", "after")
}

func TestBroker_ConcurrentUse(t *testing.T) {
	b := NewBroker()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancel := b.Subscribe("tabs")
			cancel()
		}()
		go func() {
			defer wg.Done()
			b.Publish("tabs", "k")
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.SubscriberCount("tabs"))
}
