package stream

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cascadehq/cascade/libs/bus"
)

type fakeSource struct {
	msgs []kafka.Message
	err  error
}

func (s *fakeSource) ConnectConsumer(context.Context, string, []string, bool) error {
	return nil
}

func (s *fakeSource) Consume(ctx context.Context, handler bus.Handler) error {
	for _, msg := range s.msgs {
		_ = handler(ctx, msg)
	}
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestEvents_MulticastsToAllSubscribers(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		{Topic: "board.created", Key: []byte("b1"), Value: []byte(`{"boardId":"b1"}`)},
		{Topic: "task.created", Key: []byte("t1"), Value: []byte(`{"taskId":"t1"}`)},
	}}
	c := NewConsumer(src, testLogger())

	first := c.Events()
	second := c.Events()
	done := make(chan []Event, 2)
	go func() { done <- collect(first) }()
	go func() { done <- collect(second) }()

	if err := c.Connect(context.Background(), "g", []string{"board.created", "task.created"}, false); err != nil {
		t.Fatalf("connect: %v", err)
	}

	for range 2 {
		got := <-done
		if len(got) != 2 {
			t.Fatalf("expected each subscriber to observe 2 events, got %d", len(got))
		}
		if got[0].Topic != "board.created" || got[1].Topic != "task.created" {
			t.Fatalf("unexpected event order: %+v", got)
		}
	}
}

func TestFilterByTopic_IsAView(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		{Topic: "board.created", Value: []byte(`{"boardId":"b1"}`)},
		{Topic: "user.logged_in", Value: []byte(`{"userId":"u1"}`)},
		{Topic: "board.updated", Value: []byte(`{"boardId":"b1","updates":{}}`)},
	}}
	c := NewConsumer(src, testLogger())

	boards := c.FilterByTopic("board.created", "board.updated")
	done := make(chan []Event, 1)
	go func() { done <- collect(boards) }()

	if err := c.Connect(context.Background(), "g", nil, false); err != nil {
		t.Fatalf("connect: %v", err)
	}

	got := <-done
	if len(got) != 2 {
		t.Fatalf("expected 2 board events, got %d", len(got))
	}
	for _, ev := range got {
		if ev.Topic == "user.logged_in" {
			t.Fatal("filtered topic leaked through")
		}
	}
}

func TestParseFailuresAreDropped(t *testing.T) {
	src := &fakeSource{msgs: []kafka.Message{
		{Topic: "task.created", Value: []byte(`garbage`)},
		{Topic: "task.created", Value: []byte(`{"taskId":"t1"}`)},
	}}
	c := NewConsumer(src, testLogger())

	events := c.Events()
	done := make(chan []Event, 1)
	go func() { done <- collect(events) }()

	if err := c.Connect(context.Background(), "g", nil, false); err != nil {
		t.Fatalf("connect: %v", err)
	}

	got := <-done
	if len(got) != 1 {
		t.Fatalf("expected the malformed event to be dropped, got %d events", len(got))
	}
	if got[0].Data["taskId"] != "t1" {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestResilient_GoesEmptyAfterRetryExhaustion(t *testing.T) {
	src := &fakeSource{
		msgs: []kafka.Message{{Topic: "task.created", Value: []byte(`{"taskId":"t1"}`)}},
		err:  errors.New("broker connection lost"),
	}
	c := NewConsumer(src, testLogger())

	out := c.Resilient(2, time.Millisecond)
	done := make(chan []Event, 1)
	go func() { done <- collect(out) }()

	if err := c.Connect(context.Background(), "g", nil, false); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case got := <-done:
		if len(got) != 1 {
			t.Fatalf("expected 1 event before termination, got %d", len(got))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resilient stream did not terminate after retry exhaustion")
	}
	if c.Err() == nil {
		t.Fatal("expected the terminal error to be recorded")
	}
}

func TestResilient_ClosesCleanlyWithoutError(t *testing.T) {
	src := &fakeSource{}
	c := NewConsumer(src, testLogger())

	out := c.Resilient(3, time.Millisecond)
	if err := c.Connect(context.Background(), "g", nil, false); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case _, open := <-out:
		if open {
			t.Fatal("expected stream to complete without events")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("clean completion should not consume retries")
	}
	if c.Err() != nil {
		t.Fatalf("clean completion must not record an error: %v", c.Err())
	}
}
