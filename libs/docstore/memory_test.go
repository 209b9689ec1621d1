package docstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemCollection_CRUD(t *testing.T) {
	ctx := context.Background()
	col := NewMemCollection()

	if err := col.Create(ctx, "b1", map[string]any{"id": "b1", "name": "Sprint 1", "ownerId": "u1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, err := col.FindByID(ctx, "b1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if doc["name"] != "Sprint 1" {
		t.Fatalf("unexpected doc: %v", doc)
	}

	if err := col.UpdateByID(ctx, "b1", map[string]any{"name": "Sprint 2"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, _ = col.FindByID(ctx, "b1")
	if doc["name"] != "Sprint 2" || doc["ownerId"] != "u1" {
		t.Fatalf("patch should merge shallowly, got %v", doc)
	}

	if err := col.DeleteByID(ctx, "b1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := col.FindByID(ctx, "b1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := col.UpdateByID(ctx, "b1", map[string]any{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestMemCollection_FindWithContainment(t *testing.T) {
	ctx := context.Background()
	col := NewMemCollection()
	_ = col.Create(ctx, "b1", map[string]any{
		"id": "b1", "ownerId": "u1", "visibility": "private",
		"members": []any{
			map[string]any{"userId": "u1", "role": "owner"},
			map[string]any{"userId": "u2", "role": "member"},
		},
	})
	_ = col.Create(ctx, "b2", map[string]any{
		"id": "b2", "ownerId": "u3", "visibility": "public",
		"members": []any{map[string]any{"userId": "u3", "role": "owner"}},
	})

	public, err := col.Find(ctx, Filter{"visibility": "public"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(public) != 1 || public[0]["id"] != "b2" {
		t.Fatalf("expected only b2, got %v", public)
	}

	// Membership query by array containment.
	forU2, err := col.Find(ctx,
		Filter{"ownerId": "u2"},
		Filter{"members": []any{map[string]any{"userId": "u2"}}},
	)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(forU2) != 1 || forU2[0]["id"] != "b1" {
		t.Fatalf("expected b1 via membership, got %v", forU2)
	}

	all, _ := col.Find(ctx)
	if len(all) != 2 {
		t.Fatalf("no filters should return everything, got %d", len(all))
	}
}

func TestMemCollection_UpdateManyAndDeleteMany(t *testing.T) {
	ctx := context.Background()
	col := NewMemCollection()
	_ = col.Create(ctx, "t1", map[string]any{"id": "t1", "boardId": "b1", "columnId": "todo"})
	_ = col.Create(ctx, "t2", map[string]any{"id": "t2", "boardId": "b1", "columnId": "todo"})
	_ = col.Create(ctx, "t3", map[string]any{"id": "t3", "boardId": "b1", "columnId": "done"})

	n, err := col.UpdateMany(ctx, Filter{"boardId": "b1", "columnId": "todo"}, map[string]any{"columnId": "done"})
	if err != nil {
		t.Fatalf("update many: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 updates, got %d", n)
	}
	moved, _ := col.Find(ctx, Filter{"columnId": "done"})
	if len(moved) != 3 {
		t.Fatalf("expected all tasks in done, got %d", len(moved))
	}

	deleted, err := col.DeleteMany(ctx, Filter{"boardId": "b1"})
	if err != nil {
		t.Fatalf("delete many: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deletions, got %d", deleted)
	}
}

func TestDocRoundTrip(t *testing.T) {
	type board struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	doc, err := ToDoc(board{ID: "b1", Name: "Sprint 1"})
	if err != nil {
		t.Fatalf("to doc: %v", err)
	}
	var out board
	if err := FromDoc(doc, &out); err != nil {
		t.Fatalf("from doc: %v", err)
	}
	if out != (board{ID: "b1", Name: "Sprint 1"}) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
