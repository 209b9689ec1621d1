package activity

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/cascadehq/cascade/libs/events"
	"github.com/cascadehq/cascade/libs/stream"
)

func runTracker(evs []stream.Event) *Tracker {
	tracker := NewTracker(slog.New(slog.DiscardHandler))
	ch := make(chan stream.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	tracker.Run(ch)
	return tracker
}

func TestTracker_BuildsFeedNewestFirst(t *testing.T) {
	tracker := runTracker([]stream.Event{
		{Topic: events.TopicBoardCreated, Data: map[string]any{"name": "Sprint", "ownerId": "u1"}},
		{Topic: events.TopicTaskMoved, Data: map[string]any{"taskId": "t1", "oldColumnId": "todo", "newColumnId": "done"}},
	})

	feed := tracker.Recent(0)
	if len(feed) != 2 {
		t.Fatalf("feed has %d entries, want 2", len(feed))
	}
	if feed[0].Topic != events.TopicTaskMoved {
		t.Fatalf("newest entry topic = %s, want task.moved", feed[0].Topic)
	}
	if !strings.Contains(feed[0].Message, "todo") || !strings.Contains(feed[0].Message, "done") {
		t.Fatalf("move message missing columns: %q", feed[0].Message)
	}
	if !strings.Contains(feed[1].Message, "Sprint") {
		t.Fatalf("create message missing board name: %q", feed[1].Message)
	}
}

func TestTracker_FeedIsBounded(t *testing.T) {
	evs := make([]stream.Event, feedSize+50)
	for i := range evs {
		evs[i] = stream.Event{Topic: events.TopicTaskUpdated, Data: map[string]any{"taskId": "t"}}
	}
	tracker := runTracker(evs)

	if got := len(tracker.Recent(0)); got != feedSize {
		t.Fatalf("feed holds %d entries, want cap of %d", got, feedSize)
	}
}

func TestTracker_RecentHonorsLimit(t *testing.T) {
	tracker := runTracker([]stream.Event{
		{Topic: events.TopicUserRegistered, Data: map[string]any{"email": "a@b.com"}},
		{Topic: events.TopicUserLoggedIn, Data: map[string]any{"email": "a@b.com"}},
		{Topic: events.TopicUserLoggedIn, Data: map[string]any{"email": "c@d.com"}},
	})

	feed := tracker.Recent(2)
	if len(feed) != 2 {
		t.Fatalf("got %d entries, want 2", len(feed))
	}
	if !strings.Contains(feed[0].Message, "c@d.com") {
		t.Fatalf("limit must keep the newest entries, got %q", feed[0].Message)
	}
}
