// Package stream exposes the raw bus delivery as a multicast sequence of
// parsed events, so independent pipelines (logging, filtering, transformation)
// can compose over one subscription instead of each joining the bus.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cascadehq/cascade/libs/bus"
)

// Source is the subset of the bus client the adapter consumes.
type Source interface {
	ConnectConsumer(ctx context.Context, groupID string, topics []string, fromBeginning bool) error
	Consume(ctx context.Context, handler bus.Handler) error
}

// Event is one parsed domain event as observed on the stream.
type Event struct {
	Topic     string
	Key       string
	Partition int
	Offset    int64
	Timestamp time.Time
	Data      map[string]any
}

// Consumer multicasts every delivered message to all current subscribers.
// Side effects in one branch must not assume exclusive ownership of an event.
type Consumer struct {
	src    Source
	logger *slog.Logger

	mu     sync.Mutex
	subs   []chan Event
	closed bool
	err    error
}

func NewConsumer(src Source, logger *slog.Logger) *Consumer {
	return &Consumer{src: src, logger: logger}
}

// Connect joins the consumer group and starts pumping deliveries into the
// stream. The pump stops on context cancellation (clean completion) or on a
// bus connection error (the stream terminates with that error recorded).
func (c *Consumer) Connect(ctx context.Context, groupID string, topics []string, fromBeginning bool) error {
	if err := c.src.ConnectConsumer(ctx, groupID, topics, fromBeginning); err != nil {
		return err
	}
	go func() {
		err := c.src.Consume(ctx, c.onMessage)
		if ctx.Err() != nil {
			err = nil
		}
		c.terminate(err)
	}()
	return nil
}

func (c *Consumer) onMessage(_ context.Context, msg kafka.Message) error {
	var data map[string]any
	if err := json.Unmarshal(msg.Value, &data); err != nil {
		// Parse failures are dropped; they never terminate the stream.
		c.logger.Warn("dropping unparseable event", "topic", msg.Topic, "err", err)
		return nil
	}
	ev := Event{
		Topic:     msg.Topic,
		Key:       string(msg.Key),
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Data:      data,
	}

	c.mu.Lock()
	subs := make([]chan Event, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	// Blocks if any subscriber is slow, like a direct channel fan-out.
	for _, sub := range subs {
		sub <- ev
	}
	return nil
}

// Events returns a new subscription observing the shared delivery. After the
// stream has terminated it returns an already-closed channel.
func (c *Consumer) Events() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := make(chan Event)
	if c.closed {
		close(sub)
		return sub
	}
	c.subs = append(c.subs, sub)
	return sub
}

// FilterByTopic is a derived view restricted to the named topics. It adds no
// bus subscription of its own.
func (c *Consumer) FilterByTopic(topics ...string) <-chan Event {
	allowed := make(map[string]bool, len(topics))
	for _, t := range topics {
		allowed[t] = true
	}
	in := c.Events()
	out := make(chan Event)
	go func() {
		defer close(out)
		for ev := range in {
			if allowed[ev.Topic] {
				out <- ev
			}
		}
	}()
	return out
}

// Resilient wraps the stream with bounded retry: after the stream errors it
// resubscribes up to retryCount times, waiting retryDelay between attempts.
// When retries are exhausted the returned channel simply closes (goes empty)
// rather than propagating the error to unrelated subscribers.
func (c *Consumer) Resilient(retryCount int, retryDelay time.Duration) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for attempt := 0; ; attempt++ {
			in := c.Events()
			for ev := range in {
				out <- ev
			}
			if c.Err() == nil {
				// Clean completion, nothing to retry.
				return
			}
			if attempt >= retryCount {
				return
			}
			time.Sleep(retryDelay)
		}
	}()
	return out
}

// Err reports the terminal stream error, or nil while the stream is live or
// after a clean completion.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Consumer) terminate(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		close(sub)
	}
	if err != nil {
		c.logger.Error("event stream terminated", "err", err)
	}
}
