package storage

import (
	"context"
	"time"

	"github.com/cascadehq/cascade/libs/docstore"
	"github.com/cascadehq/cascade/services/board-command/internal/model"
)

type TaskRepository struct {
	col docstore.Collection
}

func NewTaskRepository(col docstore.Collection) *TaskRepository {
	return &TaskRepository{col: col}
}

func (r *TaskRepository) Insert(ctx context.Context, task *model.Task) error {
	doc, err := docstore.ToDoc(task)
	if err != nil {
		return err
	}
	return r.col.Create(ctx, task.ID, doc)
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*model.Task, error) {
	doc, err := r.col.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var task model.Task
	if err := docstore.FromDoc(doc, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) Patch(ctx context.Context, id string, patch map[string]any) error {
	patch["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return r.col.UpdateByID(ctx, id, patch)
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	return r.col.DeleteByID(ctx, id)
}

func (r *TaskRepository) DeleteByBoard(ctx context.Context, boardID string) (int64, error) {
	return r.col.DeleteMany(ctx, docstore.Filter{"boardId": boardID})
}

// NextOrder places a new task after every existing task in the column:
// max(order)+1, or 0 for an empty column.
func (r *TaskRepository) NextOrder(ctx context.Context, boardID, columnID string) (int, error) {
	docs, err := r.col.Find(ctx, docstore.Filter{"boardId": boardID, "columnId": columnID})
	if err != nil {
		return 0, err
	}
	next := 0
	for _, doc := range docs {
		if v, ok := doc["order"].(float64); ok && int(v)+1 > next {
			next = int(v) + 1
		}
	}
	return next, nil
}

// ReassignColumn moves every task in fromColumn to toColumn in one pass.
func (r *TaskRepository) ReassignColumn(ctx context.Context, boardID, fromColumn, toColumn string) (int64, error) {
	return r.col.UpdateMany(ctx,
		docstore.Filter{"boardId": boardID, "columnId": fromColumn},
		map[string]any{"columnId": toColumn, "updatedAt": time.Now().UTC().Format(time.RFC3339Nano)})
}

// RemoveTag pulls tagID out of the tags array of every task on the board.
// The merge patch cannot express array element removal, so this is a
// read-modify-write per affected task; last-write-wins is acceptable here.
func (r *TaskRepository) RemoveTag(ctx context.Context, boardID, tagID string) error {
	docs, err := r.col.Find(ctx, docstore.Filter{"boardId": boardID, "tags": []any{tagID}})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		id, _ := doc["id"].(string)
		if id == "" {
			continue
		}
		raw, _ := doc["tags"].([]any)
		kept := make([]any, 0, len(raw))
		for _, t := range raw {
			if t != tagID {
				kept = append(kept, t)
			}
		}
		if err := r.Patch(ctx, id, map[string]any{"tags": kept}); err != nil {
			return err
		}
	}
	return nil
}
