package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

func TestDecode_BoardCreated(t *testing.T) {
	raw := []byte(`{"boardId":"b1","name":"Sprint 1","ownerId":"u1","visibility":"private","timestamp":"2026-02-01T10:00:00Z"}`)
	e, err := Decode[BoardCreated](raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.BoardID != "b1" || e.OwnerID != "u1" || e.Visibility != "private" {
		t.Fatalf("unexpected payload: %+v", e)
	}
}

func TestDecode_RejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		run  func([]byte) error
	}{
		{"board.created without owner", `{"boardId":"b1","name":"x","visibility":"public"}`,
			func(raw []byte) error { _, err := Decode[BoardCreated](raw); return err }},
		{"task.created without column", `{"taskId":"t1","boardId":"b1","title":"x"}`,
			func(raw []byte) error { _, err := Decode[TaskCreated](raw); return err }},
		{"task.moved without old column", `{"taskId":"t1","boardId":"b1","newColumnId":"done"}`,
			func(raw []byte) error { _, err := Decode[TaskMoved](raw); return err }},
		{"board.updated without updates", `{"boardId":"b1"}`,
			func(raw []byte) error { _, err := Decode[BoardUpdated](raw); return err }},
		{"user.logged_in without email", `{"userId":"u1"}`,
			func(raw []byte) error { _, err := Decode[UserLoggedIn](raw); return err }},
	}
	for _, tc := range cases {
		if err := tc.run([]byte(tc.raw)); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	if _, err := Decode[TaskDeleted]([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestValidTopic(t *testing.T) {
	if !ValidTopic("task.moved") {
		t.Fatal("task.moved should be a valid topic")
	}
	if ValidTopic("task.archived") {
		t.Fatal("task.archived is outside the taxonomy")
	}
}

func TestPublisher_SendFailureIsSwallowed(t *testing.T) {
	sender := &failingSender{err: errors.New("broker down")}
	p := NewPublisher(sender, slog.New(slog.DiscardHandler))

	// Must not panic or surface the error; the mutation already committed.
	p.BoardCreated(context.Background(), "b1", "Sprint 1", "u1", "private")
	if sender.calls != 1 {
		t.Fatalf("expected 1 send attempt, got %d", sender.calls)
	}
}

func TestPublisher_KeysByAggregateID(t *testing.T) {
	sender := &failingSender{}
	p := NewPublisher(sender, slog.New(slog.DiscardHandler))

	p.TaskMoved(context.Background(), "t9", "b1", "todo", "done")
	if sender.lastTopic != TopicTaskMoved {
		t.Fatalf("expected topic %s, got %s", TopicTaskMoved, sender.lastTopic)
	}
	if sender.lastKey != "t9" {
		t.Fatalf("expected partition key t9, got %s", sender.lastKey)
	}
}

type failingSender struct {
	err       error
	calls     int
	lastTopic string
	lastKey   string
}

func (s *failingSender) Send(_ context.Context, topic, key string, _ any) error {
	s.calls++
	s.lastTopic = topic
	s.lastKey = key
	return s.err
}
