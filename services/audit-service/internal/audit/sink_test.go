package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/cascadehq/cascade/libs/events"
)

type recorded struct {
	EventType string
	ActorID   string
}

type fakeRecorder struct {
	rows []recorded
	err  error
}

func (r *fakeRecorder) Record(_ context.Context, eventType, actorID string, _ []byte) error {
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, recorded{EventType: eventType, ActorID: actorID})
	return nil
}

func newTestSink() (*Sink, *fakeRecorder) {
	rec := &fakeRecorder{}
	return NewSink(rec, slog.New(slog.DiscardHandler)), rec
}

func TestSink_ExtractsActorPerTopic(t *testing.T) {
	sink, rec := newTestSink()
	ctx := context.Background()

	msgs := []kafka.Message{
		{Topic: events.TopicUserRegistered, Value: []byte(`{"userId":"u1","email":"a@b.com","name":"A"}`)},
		{Topic: events.TopicBoardCreated, Value: []byte(`{"boardId":"b1","name":"x","ownerId":"u2","visibility":"public"}`)},
		{Topic: events.TopicTaskMoved, Value: []byte(`{"taskId":"t1","boardId":"b1","oldColumnId":"todo","newColumnId":"done"}`)},
	}
	for _, msg := range msgs {
		if err := sink.Handle(ctx, msg); err != nil {
			t.Fatalf("%s: handle: %v", msg.Topic, err)
		}
	}

	want := []recorded{
		{EventType: "user.registered", ActorID: "u1"},
		{EventType: "board.created", ActorID: "u2"},
		{EventType: "task.moved", ActorID: ""},
	}
	if len(rec.rows) != len(want) {
		t.Fatalf("recorded %d rows, want %d", len(rec.rows), len(want))
	}
	for i := range want {
		if rec.rows[i] != want[i] {
			t.Fatalf("row %d = %+v, want %+v", i, rec.rows[i], want[i])
		}
	}
}

func TestSink_SkipsMalformedAndUnknown(t *testing.T) {
	sink, rec := newTestSink()
	ctx := context.Background()

	if err := sink.Handle(ctx, kafka.Message{Topic: events.TopicBoardCreated, Value: []byte("{")}); err != nil {
		t.Fatalf("malformed payload must be skipped, got %v", err)
	}
	if err := sink.Handle(ctx, kafka.Message{Topic: "billing.invoice", Value: []byte("{}")}); err != nil {
		t.Fatalf("unknown topic must be ignored, got %v", err)
	}
	if len(rec.rows) != 0 {
		t.Fatalf("nothing should be recorded, got %v", rec.rows)
	}
}

func TestSink_SurfacesInsertFailure(t *testing.T) {
	sink, rec := newTestSink()
	rec.err = errors.New("connection lost")

	err := sink.Handle(context.Background(), kafka.Message{
		Topic: events.TopicBoardDeleted,
		Value: []byte(`{"boardId":"b1"}`),
	})
	if err == nil {
		t.Fatal("insert failure must surface to the consumer loop")
	}
}
