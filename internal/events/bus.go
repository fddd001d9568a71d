// Package events provides an in-process event bus for streaming pipeline
// progress to SSE subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// subscriber buffer size; events for a subscriber that falls this far
// behind are dropped rather than blocking the pipeline.
const queueSize = 256

// GlobalChannel receives every product event alongside the per-product
// channel.
const GlobalChannel = "products"

// Event is one progress notification from a pipeline run.
type Event struct {
	Type      string         `json:"type"`
	ProductID string         `json:"product_id,omitempty"`
	Timestamp time.Time      `json:"ts"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus fans events out to channel subscribers. Publishing never blocks.
type Bus struct {
	mu       sync.Mutex
	channels map[string][]chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{channels: make(map[string][]chan Event)}
}

// Subscribe registers a subscriber on the named channel. The returned
// cancel function removes the subscription and closes the event channel.
func (b *Bus) Subscribe(channel string) (<-chan Event, func()) {
	ch := make(chan Event, queueSize)

	b.mu.Lock()
	b.channels[channel] = append(b.channels[channel], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.channels[channel]
		for i, sub := range subs {
			if sub == ch {
				b.channels[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
		if len(b.channels[channel]) == 0 {
			delete(b.channels, channel)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber on the channel, dropping
// it for subscribers whose buffers are full. Sends happen under the bus
// lock: a concurrent unsubscribe closes the channel under the same lock,
// so a send can never hit a closed channel. The sends are non-blocking,
// keeping the critical section bounded.
func (b *Bus) Publish(channel string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.channels[channel] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// PublishProduct stamps the event with the product id and current time,
// then delivers it to both the global channel and the per-product one.
func (b *Bus) PublishProduct(productID string, ev Event) {
	ev.ProductID = productID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.Publish(GlobalChannel, ev)
	b.Publish(ProductChannel(productID), ev)
}

// ProductChannel returns the per-product channel name.
func ProductChannel(productID string) string {
	return "product:" + productID
}

// FormatSSE renders an event as a server-sent-events message.
func FormatSSE(ev Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data), nil
}
