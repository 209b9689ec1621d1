package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/libs/docstore"
	"github.com/cascadehq/cascade/libs/events"
	"github.com/cascadehq/cascade/services/board-command/internal/model"
	"github.com/cascadehq/cascade/services/board-command/internal/storage"
)

type BoardHandler struct {
	boards *storage.BoardRepository
	tasks  *storage.TaskRepository
	events *events.Publisher
	logger *slog.Logger
}

func NewBoardHandler(boards *storage.BoardRepository, tasks *storage.TaskRepository, publisher *events.Publisher, logger *slog.Logger) *BoardHandler {
	return &BoardHandler{boards: boards, tasks: tasks, events: publisher, logger: logger}
}

type createBoardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

type updateBoardRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Visibility  *string `json:"visibility"`
}

type joinBoardRequest struct {
	Pin string `json:"pin"`
}

type columnRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type updateColumnRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
	Order *int    `json:"order"`
}

type tagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (h *BoardHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Board name is required")
		return
	}
	if req.Visibility == "" {
		req.Visibility = model.VisibilityPrivate
	}
	if !model.ValidVisibility(req.Visibility) {
		writeError(w, http.StatusBadRequest, "Visibility must be public or private")
		return
	}

	now := time.Now().UTC()
	board := &model.Board{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		OwnerID:     uid,
		Visibility:  req.Visibility,
		Members:     []model.Member{{UserID: uid, Role: model.RoleOwner, JoinedAt: now}},
		Columns:     model.DefaultColumns(),
		Tags:        []model.Tag{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if board.Visibility == model.VisibilityPrivate {
		board.JoinPin = model.NewJoinPin()
	}

	if err := h.boards.Insert(r.Context(), board); err != nil {
		h.logger.Error("board insert failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to create board")
		return
	}

	h.events.BoardCreated(r.Context(), board.ID, board.Name, board.OwnerID, board.Visibility)
	writeData(w, http.StatusCreated, board)
}

func (h *BoardHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	board, ok := h.loadBoard(w, r)
	if !ok {
		return
	}
	if board.OwnerID != uid {
		writeError(w, http.StatusForbidden, "Only the owner can update this board")
		return
	}

	var req updateBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "Board name cannot be empty")
			return
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Visibility != nil {
		if !model.ValidVisibility(*req.Visibility) {
			writeError(w, http.StatusBadRequest, "Visibility must be public or private")
			return
		}
		updates["visibility"] = *req.Visibility
		// Flipping to private mints a PIN; flipping to public drops it.
		if *req.Visibility == model.VisibilityPrivate && board.JoinPin == "" {
			updates["joinPin"] = model.NewJoinPin()
		}
		if *req.Visibility == model.VisibilityPublic {
			updates["joinPin"] = ""
		}
	}
	if len(updates) == 0 {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	if err := h.boards.Patch(r.Context(), board.ID, updates); err != nil {
		h.logger.Error("board patch failed", "boardId", board.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to update board")
		return
	}

	h.events.BoardUpdated(r.Context(), board.ID, updates)
	writeData(w, http.StatusOK, map[string]any{"id": board.ID, "updates": updates})
}

func (h *BoardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	board, ok := h.loadBoard(w, r)
	if !ok {
		return
	}
	if board.OwnerID != uid {
		writeError(w, http.StatusForbidden, "Only the owner can delete this board")
		return
	}

	if _, err := h.tasks.DeleteByBoard(r.Context(), board.ID); err != nil {
		h.logger.Error("task cascade delete failed", "boardId", board.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete board")
		return
	}
	if err := h.boards.Delete(r.Context(), board.ID); err != nil {
		h.logger.Error("board delete failed", "boardId", board.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete board")
		return
	}

	h.events.BoardDeleted(r.Context(), board.ID)
	writeData(w, http.StatusOK, map[string]any{"id": board.ID})
}

func (h *BoardHandler) Join(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	board, ok := h.loadBoard(w, r)
	if !ok {
		return
	}
	// Membership is checked before the PIN so an existing member never gets
	// asked to re-authenticate.
	if board.HasMember(uid) {
		writeError(w, http.StatusBadRequest, "Already a member of this board")
		return
	}

	var req joinBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if board.Visibility == model.VisibilityPrivate && req.Pin != board.JoinPin {
		writeError(w, http.StatusForbidden, "Invalid PIN")
		return
	}

	members := append(board.Members, model.Member{
		UserID:   uid,
		Role:     model.RoleMember,
		JoinedAt: time.Now().UTC(),
	})
	updates := map[string]any{"members": members}
	if err := h.boards.Patch(r.Context(), board.ID, updates); err != nil {
		h.logger.Error("board join patch failed", "boardId", board.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to join board")
		return
	}

	h.events.BoardUpdated(r.Context(), board.ID, updates)
	writeData(w, http.StatusOK, map[string]any{"id": board.ID, "members": members})
}

func (h *BoardHandler) AddColumn(w http.ResponseWriter, r *http.Request) {
	board, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req columnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Column name is required")
		return
	}

	columns := append(board.Columns, model.Column{
		ID:    model.NewShortID(),
		Name:  req.Name,
		Order: len(board.Columns),
		Color: req.Color,
	})

	updates := map[string]any{"columns": columns}
	if err := h.boards.Patch(r.Context(), board.ID, updates); err != nil {
		h.logger.Error("column add failed", "boardId", board.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to add column")
		return
	}

	h.events.BoardUpdated(r.Context(), board.ID, updates)
	writeData(w, http.StatusCreated, map[string]any{"id": board.ID, "columns": columns})
}

func (h *BoardHandler) UpdateColumn(w http.ResponseWriter, r *http.Request) {
	board, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	columnID := r.PathValue("columnId")

	var req updateColumnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	found := false
	columns := make([]model.Column, len(board.Columns))
	copy(columns, board.Columns)
	for i := range columns {
		if columns[i].ID != columnID {
			continue
		}
		found = true
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				writeError(w, http.StatusBadRequest, "Column name cannot be empty")
				return
			}
			columns[i].Name = name
		}
		if req.Color != nil {
			columns[i].Color = *req.Color
		}
		if req.Order != nil {
			columns[i].Order = *req.Order
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "Column not found")
		return
	}

	updates := map[string]any{"columns": columns}
	if err := h.boards.Patch(r.Context(), board.ID, updates); err != nil {
		h.logger.Error("column update failed", "boardId", board.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to update column")
		return
	}

	h.events.BoardUpdated(r.Context(), board.ID, updates)
	writeData(w, http.StatusOK, map[string]any{"id": board.ID, "columns": columns})
}

func (h *BoardHandler) DeleteColumn(w http.ResponseWriter, r *http.Request) {
	board, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	columnID := r.PathValue("columnId")

	if len(board.Columns) <= 1 {
		writeError(w, http.StatusBadRequest, "Cannot delete the last column")
		return
	}

	remaining := make([]model.Column, 0, len(board.Columns)-1)
	found := false
	for _, c := range board.Columns {
		if c.ID == columnID {
			found = true
			continue
		}
		remaining = append(remaining, c)
	}
	if !found {
		writeError(w, http.StatusNotFound, "Column not found")
		return
	}

	// Orphaned tasks land in the first remaining column by display order.
	sorted := make([]model.Column, len(remaining))
	copy(sorted, remaining)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	dest := sorted[0].ID

	if _, err := h.tasks.ReassignColumn(r.Context(), board.ID, columnID, dest); err != nil {
		h.logger.Error("task reassignment failed", "boardId", board.ID, "column", columnID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete column")
		return
	}

	updates := map[string]any{"columns": remaining}
	if err := h.boards.Patch(r.Context(), board.ID, updates); err != nil {
		h.logger.Error("column delete failed", "boardId", board.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete column")
		return
	}

	// A single board.updated covers both the column removal and the task
	// reassignment; task caches stay stale until their TTL expires.
	h.events.BoardUpdated(r.Context(), board.ID, updates)
	writeData(w, http.StatusOK, map[string]any{"id": board.ID, "columns": remaining})
}

func (h *BoardHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	board, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req tagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Tag name is required")
		return
	}

	tags := append(board.Tags, model.Tag{ID: model.NewShortID(), Name: req.Name, Color: req.Color})
	if err := h.boards.Patch(r.Context(), board.ID, map[string]any{"tags": tags}); err != nil {
		h.logger.Error("tag add failed", "boardId", board.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to add tag")
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"id": board.ID, "tags": tags})
}

func (h *BoardHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	board, ok := h.requireMember(w, r)
	if !ok {
		return
	}
	tagID := r.PathValue("tagId")

	tags := make([]model.Tag, 0, len(board.Tags))
	found := false
	for _, t := range board.Tags {
		if t.ID == tagID {
			found = true
			continue
		}
		tags = append(tags, t)
	}
	if !found {
		writeError(w, http.StatusNotFound, "Tag not found")
		return
	}

	if err := h.tasks.RemoveTag(r.Context(), board.ID, tagID); err != nil {
		h.logger.Error("tag removal from tasks failed", "boardId", board.ID, "tag", tagID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete tag")
		return
	}
	if err := h.boards.Patch(r.Context(), board.ID, map[string]any{"tags": tags}); err != nil {
		h.logger.Error("tag delete failed", "boardId", board.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete tag")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": board.ID, "tags": tags})
}

func (h *BoardHandler) loadBoard(w http.ResponseWriter, r *http.Request) (*model.Board, bool) {
	board, err := h.boards.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Board not found")
			return nil, false
		}
		h.logger.Error("board load failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to load board")
		return nil, false
	}
	return board, true
}

func (h *BoardHandler) requireMember(w http.ResponseWriter, r *http.Request) (*model.Board, bool) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	board, ok := h.loadBoard(w, r)
	if !ok {
		return nil, false
	}
	if !board.HasMember(uid) {
		writeError(w, http.StatusForbidden, "Not a member of this board")
		return nil, false
	}
	return board, true
}
