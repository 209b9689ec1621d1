package events

import (
	"context"
	"log/slog"
	"time"
)

// Sender appends one serialized event to a topic. *bus.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, topic, key string, payload any) error
}

// Publisher emits domain events after the system of record has been mutated.
// A failed Send is a degraded success: the write already committed, so the
// failure is logged at error level and never rolled back or retried here.
// Consumers relying on the event for invalidation serve stale data until the
// cache TTL expires.
type Publisher struct {
	bus    Sender
	logger *slog.Logger
}

func NewPublisher(bus Sender, logger *slog.Logger) *Publisher {
	return &Publisher{bus: bus, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, topic, key string, payload any) {
	if err := p.bus.Send(ctx, topic, key, payload); err != nil {
		p.logger.Error("event publish failed, continuing without rollback",
			"topic", topic, "key", key, "err", err)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (p *Publisher) BoardCreated(ctx context.Context, boardID, name, ownerID, visibility string) {
	p.publish(ctx, TopicBoardCreated, boardID, BoardCreated{
		BoardID:    boardID,
		Name:       name,
		OwnerID:    ownerID,
		Visibility: visibility,
		Timestamp:  now(),
	})
}

func (p *Publisher) BoardUpdated(ctx context.Context, boardID string, updates map[string]any) {
	p.publish(ctx, TopicBoardUpdated, boardID, BoardUpdated{
		BoardID:   boardID,
		Updates:   updates,
		Timestamp: now(),
	})
}

func (p *Publisher) BoardDeleted(ctx context.Context, boardID string) {
	p.publish(ctx, TopicBoardDeleted, boardID, BoardDeleted{
		BoardID:   boardID,
		Timestamp: now(),
	})
}

func (p *Publisher) TaskCreated(ctx context.Context, taskID, boardID, title, columnID string) {
	p.publish(ctx, TopicTaskCreated, taskID, TaskCreated{
		TaskID:    taskID,
		BoardID:   boardID,
		Title:     title,
		ColumnID:  columnID,
		Timestamp: now(),
	})
}

func (p *Publisher) TaskUpdated(ctx context.Context, taskID, boardID string, updates map[string]any) {
	p.publish(ctx, TopicTaskUpdated, taskID, TaskUpdated{
		TaskID:    taskID,
		BoardID:   boardID,
		Updates:   updates,
		Timestamp: now(),
	})
}

func (p *Publisher) TaskMoved(ctx context.Context, taskID, boardID, oldColumnID, newColumnID string) {
	p.publish(ctx, TopicTaskMoved, taskID, TaskMoved{
		TaskID:      taskID,
		BoardID:     boardID,
		OldColumnID: oldColumnID,
		NewColumnID: newColumnID,
		Timestamp:   now(),
	})
}

func (p *Publisher) TaskDeleted(ctx context.Context, taskID, boardID string) {
	p.publish(ctx, TopicTaskDeleted, taskID, TaskDeleted{
		TaskID:    taskID,
		BoardID:   boardID,
		Timestamp: now(),
	})
}

func (p *Publisher) UserRegistered(ctx context.Context, userID, email, name string) {
	p.publish(ctx, TopicUserRegistered, userID, UserRegistered{
		UserID:    userID,
		Email:     email,
		Name:      name,
		Timestamp: now(),
	})
}

func (p *Publisher) UserLoggedIn(ctx context.Context, userID, email string) {
	p.publish(ctx, TopicUserLoggedIn, userID, UserLoggedIn{
		UserID:    userID,
		Email:     email,
		Timestamp: now(),
	})
}
