// Package invalidator maps domain events to cache deletions. Invalidation
// is pure deletion: entries are dropped and rebuilt by the next read, never
// patched in place.
package invalidator

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/cascadehq/cascade/libs/events"
	"github.com/cascadehq/cascade/services/board-query/internal/cache"
	"github.com/cascadehq/cascade/services/board-query/internal/storage"
)

type Invalidator struct {
	cache  *cache.Cache
	boards *storage.BoardReader
	logger *slog.Logger
}

func New(c *cache.Cache, boards *storage.BoardReader, logger *slog.Logger) *Invalidator {
	return &Invalidator{cache: c, boards: boards, logger: logger}
}

// Handle is the consumer callback. It always returns nil: an event that
// cannot be decoded is quarantined with a warning, and a failed deletion is
// covered by the TTL. Redelivery would not help either case.
func (i *Invalidator) Handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case events.TopicBoardCreated:
		e, err := events.Decode[events.BoardCreated](msg.Value)
		if err != nil {
			i.quarantine(msg, err)
			return nil
		}
		i.cache.Drop(ctx, cache.BoardsKey(e.OwnerID), cache.BoardKey(e.BoardID))

	case events.TopicBoardUpdated:
		e, err := events.Decode[events.BoardUpdated](msg.Value)
		if err != nil {
			i.quarantine(msg, err)
			return nil
		}
		keys := []string{cache.BoardKey(e.BoardID)}
		// Membership changes alter every member's board list, so the member
		// set comes from the store, not from the event payload.
		board, err := i.boards.Get(ctx, e.BoardID)
		if err != nil {
			i.logger.Warn("board read for invalidation failed, member lists expire by TTL",
				"boardId", e.BoardID, "err", err)
		} else {
			members, _ := board["members"].([]any)
			for _, m := range members {
				member, _ := m.(map[string]any)
				if uid, ok := member["userId"].(string); ok {
					keys = append(keys, cache.BoardsKey(uid))
				}
			}
		}
		i.cache.Drop(ctx, keys...)

	case events.TopicBoardDeleted:
		e, err := events.Decode[events.BoardDeleted](msg.Value)
		if err != nil {
			i.quarantine(msg, err)
			return nil
		}
		// The owner is unknown at this point, so only the singular entry is
		// dropped; any list entries expire by TTL.
		i.cache.Drop(ctx, cache.BoardKey(e.BoardID))

	case events.TopicTaskCreated:
		e, err := events.Decode[events.TaskCreated](msg.Value)
		if err != nil {
			i.quarantine(msg, err)
			return nil
		}
		i.cache.Drop(ctx, cache.TasksKey(e.BoardID))

	case events.TopicTaskUpdated:
		e, err := events.Decode[events.TaskUpdated](msg.Value)
		if err != nil {
			i.quarantine(msg, err)
			return nil
		}
		i.cache.Drop(ctx, cache.TasksKey(e.BoardID))

	case events.TopicTaskMoved:
		e, err := events.Decode[events.TaskMoved](msg.Value)
		if err != nil {
			i.quarantine(msg, err)
			return nil
		}
		i.cache.Drop(ctx, cache.TasksKey(e.BoardID))

	case events.TopicTaskDeleted:
		e, err := events.Decode[events.TaskDeleted](msg.Value)
		if err != nil {
			i.quarantine(msg, err)
			return nil
		}
		i.cache.Drop(ctx, cache.TasksKey(e.BoardID))

	default:
		i.logger.Warn("event on unexpected topic ignored", "topic", msg.Topic)
	}
	return nil
}

func (i *Invalidator) quarantine(msg kafka.Message, err error) {
	i.logger.Warn("undecodable event quarantined",
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
}
