package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/libs/docstore"
	"github.com/cascadehq/cascade/libs/events"
	"github.com/cascadehq/cascade/services/board-command/internal/model"
	"github.com/cascadehq/cascade/services/board-command/internal/storage"
)

type TaskHandler struct {
	boards *storage.BoardRepository
	tasks  *storage.TaskRepository
	events *events.Publisher
	logger *slog.Logger
}

func NewTaskHandler(boards *storage.BoardRepository, tasks *storage.TaskRepository, publisher *events.Publisher, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{boards: boards, tasks: tasks, events: publisher, logger: logger}
}

type createTaskRequest struct {
	BoardID     string   `json:"boardId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ColumnID    string   `json:"columnId"`
	Priority    string   `json:"priority"`
	AssignedTo  string   `json:"assignedTo"`
	Tags        []string `json:"tags"`
	DueDate     string   `json:"dueDate"`
}

type updateTaskRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Priority    *string   `json:"priority"`
	AssignedTo  *string   `json:"assignedTo"`
	Tags        *[]string `json:"tags"`
	DueDate     *string   `json:"dueDate"`
}

type moveTaskRequest struct {
	ColumnID string `json:"columnId"`
	Order    *int   `json:"order"`
}

type reorderTaskRequest struct {
	Order *int `json:"order"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.BoardID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "boardId and title are required")
		return
	}

	board, err := h.boards.Get(r.Context(), req.BoardID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Board not found")
			return
		}
		h.logger.Error("board load failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to load board")
		return
	}
	if !board.HasMember(uid) {
		writeError(w, http.StatusForbidden, "Not a member of this board")
		return
	}

	if req.ColumnID == "" {
		req.ColumnID = "todo"
	}
	if !columnExists(board, req.ColumnID) {
		writeError(w, http.StatusBadRequest, "Column does not exist on this board")
		return
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}
	if !model.ValidPriority(req.Priority) {
		writeError(w, http.StatusBadRequest, "Priority must be low, medium, or high")
		return
	}

	var dueDate *time.Time
	if req.DueDate != "" {
		t, err := time.Parse(time.RFC3339, req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dueDate must be RFC 3339")
			return
		}
		dueDate = &t
	}

	order, err := h.tasks.NextOrder(r.Context(), req.BoardID, req.ColumnID)
	if err != nil {
		h.logger.Error("order computation failed", "boardId", req.BoardID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to create task")
		return
	}

	now := time.Now().UTC()
	task := &model.Task{
		ID:          uuid.NewString(),
		BoardID:     req.BoardID,
		ColumnID:    req.ColumnID,
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		AssignedTo:  req.AssignedTo,
		Tags:        req.Tags,
		Priority:    req.Priority,
		DueDate:     dueDate,
		Order:       order,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}

	if err := h.tasks.Insert(r.Context(), task); err != nil {
		h.logger.Error("task insert failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to create task")
		return
	}

	h.events.TaskCreated(r.Context(), task.ID, task.BoardID, task.Title, task.ColumnID)
	writeData(w, http.StatusCreated, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	task, ok := h.requireTaskMember(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, "Title cannot be empty")
			return
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Priority != nil {
		if !model.ValidPriority(*req.Priority) {
			writeError(w, http.StatusBadRequest, "Priority must be low, medium, or high")
			return
		}
		updates["priority"] = *req.Priority
	}
	if req.AssignedTo != nil {
		updates["assignedTo"] = *req.AssignedTo
	}
	if req.Tags != nil {
		updates["tags"] = *req.Tags
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			updates["dueDate"] = nil
		} else {
			t, err := time.Parse(time.RFC3339, *req.DueDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "dueDate must be RFC 3339")
				return
			}
			updates["dueDate"] = t.Format(time.RFC3339Nano)
		}
	}
	if len(updates) == 0 {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	if err := h.tasks.Patch(r.Context(), task.ID, updates); err != nil {
		h.logger.Error("task patch failed", "taskId", task.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to update task")
		return
	}

	h.events.TaskUpdated(r.Context(), task.ID, task.BoardID, updates)
	writeData(w, http.StatusOK, map[string]any{"id": task.ID, "updates": updates})
}

func (h *TaskHandler) Move(w http.ResponseWriter, r *http.Request) {
	task, ok := h.requireTaskMember(w, r)
	if !ok {
		return
	}

	var req moveTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.ColumnID == "" {
		writeError(w, http.StatusBadRequest, "columnId is required")
		return
	}

	board, err := h.boards.Get(r.Context(), task.BoardID)
	if err != nil {
		h.logger.Error("board load failed", "boardId", task.BoardID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to load board")
		return
	}
	if !columnExists(board, req.ColumnID) {
		writeError(w, http.StatusBadRequest, "Column does not exist on this board")
		return
	}

	order := 0
	if req.Order != nil {
		order = *req.Order
	} else {
		order, err = h.tasks.NextOrder(r.Context(), task.BoardID, req.ColumnID)
		if err != nil {
			h.logger.Error("order computation failed", "boardId", task.BoardID, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to move task")
			return
		}
	}

	oldColumn := task.ColumnID
	updates := map[string]any{"columnId": req.ColumnID, "order": order}
	if err := h.tasks.Patch(r.Context(), task.ID, updates); err != nil {
		h.logger.Error("task move failed", "taskId", task.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to move task")
		return
	}

	h.events.TaskMoved(r.Context(), task.ID, task.BoardID, oldColumn, req.ColumnID)
	writeData(w, http.StatusOK, map[string]any{
		"id":          task.ID,
		"oldColumnId": oldColumn,
		"newColumnId": req.ColumnID,
		"order":       order,
	})
}

func (h *TaskHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	task, ok := h.requireTaskMember(w, r)
	if !ok {
		return
	}

	var req reorderTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Order == nil || *req.Order < 0 {
		writeError(w, http.StatusBadRequest, "order must be a non-negative integer")
		return
	}

	updates := map[string]any{"order": *req.Order}
	if err := h.tasks.Patch(r.Context(), task.ID, updates); err != nil {
		h.logger.Error("task reorder failed", "taskId", task.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to reorder task")
		return
	}

	// Reorder is a move within the same column.
	h.events.TaskMoved(r.Context(), task.ID, task.BoardID, task.ColumnID, task.ColumnID)
	writeData(w, http.StatusOK, map[string]any{"id": task.ID, "order": *req.Order})
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	task, ok := h.requireTaskMember(w, r)
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), task.ID); err != nil {
		h.logger.Error("task delete failed", "taskId", task.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete task")
		return
	}

	h.events.TaskDeleted(r.Context(), task.ID, task.BoardID)
	writeData(w, http.StatusOK, map[string]any{"id": task.ID})
}

func (h *TaskHandler) requireTaskMember(w http.ResponseWriter, r *http.Request) (*model.Task, bool) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}

	task, err := h.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return nil, false
		}
		h.logger.Error("task load failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to load task")
		return nil, false
	}

	board, err := h.boards.Get(r.Context(), task.BoardID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Board not found")
			return nil, false
		}
		h.logger.Error("board load failed", "boardId", task.BoardID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to load board")
		return nil, false
	}
	if !board.HasMember(uid) {
		writeError(w, http.StatusForbidden, "Not a member of this board")
		return nil, false
	}
	return task, true
}

func columnExists(board *model.Board, columnID string) bool {
	for _, c := range board.Columns {
		if c.ID == columnID {
			return true
		}
	}
	return false
}
