package storage

import (
	"context"
	"time"

	"github.com/cascadehq/cascade/libs/docstore"
	"github.com/cascadehq/cascade/services/board-command/internal/model"
)

type BoardRepository struct {
	col docstore.Collection
}

func NewBoardRepository(col docstore.Collection) *BoardRepository {
	return &BoardRepository{col: col}
}

func (r *BoardRepository) Insert(ctx context.Context, board *model.Board) error {
	doc, err := docstore.ToDoc(board)
	if err != nil {
		return err
	}
	return r.col.Create(ctx, board.ID, doc)
}

func (r *BoardRepository) Get(ctx context.Context, id string) (*model.Board, error) {
	doc, err := r.col.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var board model.Board
	if err := docstore.FromDoc(doc, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// Patch merges the given fields into the stored board and bumps updatedAt.
func (r *BoardRepository) Patch(ctx context.Context, id string, patch map[string]any) error {
	patch["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return r.col.UpdateByID(ctx, id, patch)
}

func (r *BoardRepository) Delete(ctx context.Context, id string) error {
	return r.col.DeleteByID(ctx, id)
}
