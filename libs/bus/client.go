package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// State tracks the client lifecycle. Consuming is only reachable through
// ConsumerReady; ConnectConsumer never hands out a half-subscribed consumer.
type State int

const (
	Disconnected State = iota
	ProducerConnected
	ConsumerConnecting
	ConsumerReady
	Consuming
)

func (s State) String() string {
	switch s {
	case ProducerConnected:
		return "producer-connected"
	case ConsumerConnecting:
		return "consumer-connecting"
	case ConsumerReady:
		return "consumer-ready"
	case Consuming:
		return "consuming"
	default:
		return "disconnected"
	}
}

const (
	subscribeBaseDelay   = 1 * time.Second
	subscribeMaxAttempts = 10
)

// Handler is invoked once per delivered message, in partition order.
type Handler func(ctx context.Context, msg kafka.Message) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Client is a shared producer/consumer over a topic-partitioned log. One
// instance per process, constructed at startup and passed to components.
type Client struct {
	clientID string
	brokers  []string
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	writer *kafka.Writer
	reader messageReader

	// Seams for tests; nil means the real kafka implementations.
	checkTopic func(ctx context.Context, topic string) error
	newReader  func(cfg kafka.ReaderConfig) messageReader
	sleep      func(d time.Duration)
}

func NewClient(clientID string, brokers []string, logger *slog.Logger) *Client {
	return &Client{
		clientID: clientID,
		brokers:  brokers,
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectProducer establishes the shared producer. Safe to call once at
// startup; a second call is a no-op. Unreachable brokers are a fatal error.
func (c *Client) ConnectProducer(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer != nil {
		return nil
	}
	if len(c.brokers) == 0 {
		return errors.New("bus: no brokers configured")
	}

	dialer := kafka.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.brokers[0])
	if err != nil {
		return fmt.Errorf("bus: broker unreachable: %w", err)
	}
	_ = conn.Close()

	c.writer = &kafka.Writer{
		Addr:                   kafka.TCP(c.brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	if c.state == Disconnected {
		c.state = ProducerConnected
	}
	c.logger.Info("bus producer connected", "client_id", c.clientID)
	return nil
}

// Send serializes payload to JSON and appends it to topic, keyed by the
// aggregate id so all events for one aggregate land on the same partition.
// It returns once the broker acknowledges the write. Delivery is
// at-least-once: a crash after the store commit but before Send returns
// means the event is lost.
func (c *Client) Send(ctx context.Context, topic, key string, payload any) error {
	c.mu.Lock()
	writer := c.writer
	c.mu.Unlock()
	if writer == nil {
		return errors.New("bus: producer not connected")
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal %s event: %w", topic, err)
	}

	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(uuid.NewString())},
		{Key: "event_type", Value: []byte(topic)},
	}
	headers = injectTraceHeaders(ctx, headers)

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
		Time:    time.Now(),
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("bus: send %s: %w", topic, err)
	}
	return nil
}

// ConnectConsumer joins groupID and subscribes to topics. Topic provisioning
// may race service startup, so each topic is probed with exponential backoff
// before the group reader is created. Exhausting the retry budget is fatal:
// the error propagates and the service must not come up half-subscribed.
func (c *Client) ConnectConsumer(ctx context.Context, groupID string, topics []string, fromBeginning bool) error {
	if len(topics) == 0 {
		return errors.New("bus: no topics to subscribe")
	}

	c.mu.Lock()
	if c.reader != nil {
		c.mu.Unlock()
		return errors.New("bus: consumer already connected")
	}
	c.state = ConsumerConnecting
	c.mu.Unlock()

	for _, topic := range topics {
		if err := c.awaitTopic(ctx, topic); err != nil {
			return err
		}
		c.logger.Info("subscribed to topic", "topic", topic, "group_id", groupID)
	}

	startOffset := kafka.LastOffset
	if fromBeginning {
		startOffset = kafka.FirstOffset
	}
	cfg := kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	}

	c.mu.Lock()
	if c.newReader != nil {
		c.reader = c.newReader(cfg)
	} else {
		c.reader = kafka.NewReader(cfg)
	}
	c.state = ConsumerReady
	c.mu.Unlock()
	return nil
}

// awaitTopic probes topic metadata until the broker knows the topic, backing
// off 1s, 2s, 4s... for at most subscribeMaxAttempts attempts.
func (c *Client) awaitTopic(ctx context.Context, topic string) error {
	check := c.checkTopic
	if check == nil {
		check = c.topicExists
	}

	var lastErr error
	for attempt := 1; attempt <= subscribeMaxAttempts; attempt++ {
		lastErr = check(ctx, topic)
		if lastErr == nil {
			return nil
		}
		if attempt == subscribeMaxAttempts {
			break
		}
		delay := subscribeDelay(attempt)
		c.logger.Info("topic not ready, retrying",
			"topic", topic, "attempt", attempt, "max_attempts", subscribeMaxAttempts, "delay", delay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.sleep(delay)
	}
	return fmt.Errorf("bus: subscribe %s after %d attempts: %w", topic, subscribeMaxAttempts, lastErr)
}

func subscribeDelay(attempt int) time.Duration {
	return subscribeBaseDelay << (attempt - 1)
}

func (c *Client) topicExists(ctx context.Context, topic string) error {
	dialer := kafka.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return err
	}
	if len(partitions) == 0 {
		return fmt.Errorf("topic %s has no partitions", topic)
	}
	return nil
}

// Consume runs the delivery loop until ctx is cancelled or the consumer is
// disconnected. A failing or panicking handler never stops the loop and the
// message is not redelivered locally; the broker redelivers uncommitted
// messages only after a consumer restart.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	if c.state != ConsumerReady {
		c.mu.Unlock()
		return fmt.Errorf("bus: consume in state %s", c.state)
	}
	c.state = Consuming
	reader := c.reader
	c.mu.Unlock()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				// Reader was closed by Disconnect.
				return nil
			}
			c.logger.Error("bus read error", "err", err)
			c.sleep(1 * time.Second)
			continue
		}

		msgCtx := extractTraceContext(ctx, msg)
		spanCtx, span := otel.Tracer("bus").Start(msgCtx, "bus.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)
		meta := extractMeta(msg)
		if err := c.deliver(spanCtx, handler, msg); err != nil {
			c.logger.Error("handler error", "err", err, "topic", msg.Topic, "event_id", meta.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}

func (c *Client) deliver(ctx context.Context, handler Handler, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}

// Disconnect releases producer and consumer connections. Safe to call at any
// point in the lifecycle, including before any connect completed.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	writer := c.writer
	reader := c.reader
	c.writer = nil
	c.reader = nil
	c.state = Disconnected
	c.mu.Unlock()

	var errs []error
	if writer != nil {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
