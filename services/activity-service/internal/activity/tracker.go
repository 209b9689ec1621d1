// Package activity builds a human-readable feed from the event stream.
// The feed is in-memory and bounded; it is a convenience view, not a system
// of record, so losing it on restart is fine.
package activity

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cascadehq/cascade/libs/events"
	"github.com/cascadehq/cascade/libs/stream"
)

const feedSize = 200

type Entry struct {
	Topic      string    `json:"topic"`
	Message    string    `json:"message"`
	ObservedAt time.Time `json:"observedAt"`
}

type Tracker struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries []Entry
}

func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// Run consumes the channel until it closes. Call it from its own goroutine,
// one per stream branch.
func (t *Tracker) Run(ch <-chan stream.Event) {
	for ev := range ch {
		entry := Entry{
			Topic:      ev.Topic,
			Message:    describe(ev),
			ObservedAt: time.Now().UTC(),
		}
		t.logger.Info("activity", "topic", entry.Topic, "message", entry.Message)

		t.mu.Lock()
		t.entries = append(t.entries, entry)
		if len(t.entries) > feedSize {
			t.entries = t.entries[len(t.entries)-feedSize:]
		}
		t.mu.Unlock()
	}
}

// Recent returns the feed newest first.
func (t *Tracker) Recent(limit int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if limit <= 0 || limit > len(t.entries) {
		limit = len(t.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(t.entries) - 1; i >= len(t.entries)-limit; i-- {
		out = append(out, t.entries[i])
	}
	return out
}

func describe(ev stream.Event) string {
	str := func(key string) string {
		v, _ := ev.Data[key].(string)
		return v
	}
	switch ev.Topic {
	case events.TopicUserRegistered:
		return fmt.Sprintf("%s registered", str("email"))
	case events.TopicUserLoggedIn:
		return fmt.Sprintf("%s logged in", str("email"))
	case events.TopicBoardCreated:
		return fmt.Sprintf("board %q created by %s", str("name"), str("ownerId"))
	case events.TopicBoardUpdated:
		return fmt.Sprintf("board %s updated", str("boardId"))
	case events.TopicBoardDeleted:
		return fmt.Sprintf("board %s deleted", str("boardId"))
	case events.TopicTaskCreated:
		return fmt.Sprintf("task %q added to board %s", str("title"), str("boardId"))
	case events.TopicTaskUpdated:
		return fmt.Sprintf("task %s updated", str("taskId"))
	case events.TopicTaskMoved:
		return fmt.Sprintf("task %s moved from %s to %s", str("taskId"), str("oldColumnId"), str("newColumnId"))
	case events.TopicTaskDeleted:
		return fmt.Sprintf("task %s deleted", str("taskId"))
	}
	return fmt.Sprintf("event on %s", ev.Topic)
}
