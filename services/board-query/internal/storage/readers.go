// Package storage reads the same document tables the command side writes.
// Readers return raw documents; the query side never reshapes what the
// command side stored.
package storage

import (
	"context"
	"sort"

	"github.com/cascadehq/cascade/libs/docstore"
)

type BoardReader struct {
	col docstore.Collection
}

func NewBoardReader(col docstore.Collection) *BoardReader {
	return &BoardReader{col: col}
}

func (r *BoardReader) Get(ctx context.Context, id string) (map[string]any, error) {
	return r.col.FindByID(ctx, id)
}

// ListForUser returns boards the user owns or is a member of, newest first.
func (r *BoardReader) ListForUser(ctx context.Context, userID string) ([]map[string]any, error) {
	docs, err := r.col.Find(ctx,
		docstore.Filter{"ownerId": userID},
		docstore.Filter{"members": []any{map[string]any{"userId": userID}}},
	)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(docs)
	return docs, nil
}

func (r *BoardReader) ListPublic(ctx context.Context) ([]map[string]any, error) {
	docs, err := r.col.Find(ctx, docstore.Filter{"visibility": "public"})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(docs)
	return docs, nil
}

type TaskReader struct {
	col docstore.Collection
}

func NewTaskReader(col docstore.Collection) *TaskReader {
	return &TaskReader{col: col}
}

func (r *TaskReader) Get(ctx context.Context, id string) (map[string]any, error) {
	return r.col.FindByID(ctx, id)
}

// ListByBoard returns the board's tasks in display order.
func (r *TaskReader) ListByBoard(ctx context.Context, boardID string) ([]map[string]any, error) {
	docs, err := r.col.Find(ctx, docstore.Filter{"boardId": boardID})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool {
		oi, _ := docs[i]["order"].(float64)
		oj, _ := docs[j]["order"].(float64)
		if oi != oj {
			return oi < oj
		}
		ci, _ := docs[i]["createdAt"].(string)
		cj, _ := docs[j]["createdAt"].(string)
		return ci < cj
	})
	return docs, nil
}

func sortNewestFirst(docs []map[string]any) {
	sort.SliceStable(docs, func(i, j int) bool {
		ci, _ := docs[i]["createdAt"].(string)
		cj, _ := docs[j]["createdAt"].(string)
		return ci > cj
	})
}
