package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePublish(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("product:1")
	defer cancel()

	bus.Publish("product:1", Event{Type: "status", Data: map[string]any{"status": "searching"}})

	select {
	case ev := <-ch:
		assert.Equal(t, "status", ev.Type)
		assert.Equal(t, "searching", ev.Data["status"])
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestPublishProduct_FansOut(t *testing.T) {
	bus := NewBus()
	global, cancelGlobal := bus.Subscribe(GlobalChannel)
	defer cancelGlobal()
	scoped, cancelScoped := bus.Subscribe(ProductChannel("42"))
	defer cancelScoped()

	bus.PublishProduct("42", Event{Type: "phase"})

	for _, ch := range []<-chan Event{global, scoped} {
		select {
		case ev := <-ch:
			assert.Equal(t, "42", ev.ProductID)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("no event received")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("product:1")
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing to a channel with no subscribers is a no-op.
	bus.Publish("product:1", Event{Type: "status"})
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("product:1")
	defer cancel()

	// Overfill the buffer; publish must not block.
	for i := 0; i < queueSize+10; i++ {
		bus.Publish("product:1", Event{Type: "tick"})
	}
	assert.Len(t, ch, queueSize)
}

func TestPublishDuringUnsubscribe(t *testing.T) {
	bus := NewBus()

	// A subscriber disconnecting mid-publish must end the stream without
	// crashing the publisher.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			bus.PublishProduct("p-1", Event{Type: "status"})
		}
	}()

	for i := 0; i < 200; i++ {
		ch, cancel := bus.Subscribe(ProductChannel("p-1"))
		go func() {
			for range ch {
			}
		}()
		cancel()
	}
	<-done
}

func TestFormatSSE(t *testing.T) {
	msg, err := FormatSSE(Event{Type: "status", ProductID: "7"})
	require.NoError(t, err)
	assert.Contains(t, msg, "event: status\n")
	assert.Contains(t, msg, `"product_id":"7"`)
	assert.True(t, len(msg) > 0 && msg[len(msg)-2:] == "\n\n")
}
