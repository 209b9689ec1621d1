package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSubscribeDelay_DoublesFromOneSecond(t *testing.T) {
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 64 * time.Second,
	}
	for i, expected := range want {
		if got := subscribeDelay(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, expected, got)
		}
	}
}

func TestConnectConsumer_RetriesMissingTopic(t *testing.T) {
	var attempts int
	var slept []time.Duration

	c := NewClient("test", []string{"broker:9092"}, testLogger())
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	c.checkTopic = func(_ context.Context, topic string) error {
		attempts++
		if attempts < 4 {
			return errors.New("unknown topic")
		}
		return nil
	}
	c.newReader = func(kafka.ReaderConfig) messageReader { return &fakeReader{} }

	if err := c.ConnectConsumer(context.Background(), "g", []string{"board.created"}, false); err != nil {
		t.Fatalf("expected subscription to recover, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
	if len(slept) != 3 || slept[0] != 1*time.Second || slept[1] != 2*time.Second || slept[2] != 4*time.Second {
		t.Fatalf("unexpected backoff schedule: %v", slept)
	}
	if c.State() != ConsumerReady {
		t.Fatalf("expected ConsumerReady, got %s", c.State())
	}
}

func TestConnectConsumer_FailsAfterRetryBudget(t *testing.T) {
	var attempts int

	c := NewClient("test", []string{"broker:9092"}, testLogger())
	c.sleep = func(time.Duration) {}
	c.checkTopic = func(context.Context, string) error {
		attempts++
		return errors.New("unknown topic")
	}

	err := c.ConnectConsumer(context.Background(), "g", []string{"board.created"}, false)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != subscribeMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", subscribeMaxAttempts, attempts)
	}
	if c.State() == ConsumerReady || c.State() == Consuming {
		t.Fatalf("client must not be ready after failed subscription, state=%s", c.State())
	}
}

func TestConsume_RequiresConsumerReady(t *testing.T) {
	c := NewClient("test", []string{"broker:9092"}, testLogger())
	err := c.Consume(context.Background(), func(context.Context, kafka.Message) error { return nil })
	if err == nil {
		t.Fatal("expected Consume to fail before ConnectConsumer")
	}
}

func TestConsume_HandlerFailureDoesNotStopLoop(t *testing.T) {
	msgs := []kafka.Message{
		{Topic: "task.created", Value: []byte(`{"taskId":"t1"}`)},
		{Topic: "task.created", Value: []byte(`broken`)},
		{Topic: "task.created", Value: []byte(`{"taskId":"t2"}`)},
	}
	reader := &fakeReader{msgs: msgs}

	c := NewClient("test", []string{"broker:9092"}, testLogger())
	c.sleep = func(time.Duration) {}
	c.checkTopic = func(context.Context, string) error { return nil }
	c.newReader = func(kafka.ReaderConfig) messageReader { return reader }

	if err := c.ConnectConsumer(context.Background(), "g", []string{"task.created"}, false); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var handled []string
	err := c.Consume(context.Background(), func(_ context.Context, msg kafka.Message) error {
		if string(msg.Value) == "broken" {
			panic("bad payload")
		}
		handled = append(handled, string(msg.Value))
		return nil
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(handled) != 2 {
		t.Fatalf("expected the loop to survive the panic and handle 2 messages, got %d", len(handled))
	}
}

func TestDisconnect_SafeWithoutConnect(t *testing.T) {
	c := NewClient("test", []string{"broker:9092"}, testLogger())
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect on fresh client: %v", err)
	}
	if c.State() != Disconnected {
		t.Fatalf("expected Disconnected, got %s", c.State())
	}
}

// fakeReader yields its messages then reports EOF, as a closed reader would.
type fakeReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
	pos  int
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.msgs) {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[r.pos]
	r.pos++
	return msg, nil
}

func (r *fakeReader) Close() error { return nil }
