package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cascadehq/cascade/libs/docstore"
	"github.com/cascadehq/cascade/services/board-query/internal/cache"
	"github.com/cascadehq/cascade/services/board-query/internal/storage"
)

type QueryHandler struct {
	boards *storage.BoardReader
	tasks  *storage.TaskReader
	cache  *cache.Cache
	logger *slog.Logger
}

func NewQueryHandler(boards *storage.BoardReader, tasks *storage.TaskReader, c *cache.Cache, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{boards: boards, tasks: tasks, cache: c, logger: logger}
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}

func userID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// ListBoards serves the caller's boards from cache when possible.
func (h *QueryHandler) ListBoards(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	key := cache.BoardsKey(uid)
	var cached []map[string]any
	if h.cache.Lookup(r.Context(), key, &cached) {
		writeData(w, http.StatusOK, cached)
		return
	}

	docs, err := h.boards.ListForUser(r.Context(), uid)
	if err != nil {
		h.logger.Error("board list failed", "userId", uid, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list boards")
		return
	}
	h.cache.Fill(r.Context(), key, docs)
	writeData(w, http.StatusOK, docs)
}

// ListPublicBoards is uncached: the public listing has no invalidation key.
func (h *QueryHandler) ListPublicBoards(w http.ResponseWriter, r *http.Request) {
	docs, err := h.boards.ListPublic(r.Context())
	if err != nil {
		h.logger.Error("public board list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list boards")
		return
	}
	writeData(w, http.StatusOK, docs)
}

func (h *QueryHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	boardID := r.PathValue("id")

	key := cache.BoardKey(boardID)
	var board map[string]any
	if !h.cache.Lookup(r.Context(), key, &board) {
		doc, err := h.boards.Get(r.Context(), boardID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Board not found")
				return
			}
			h.logger.Error("board load failed", "boardId", boardID, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to load board")
			return
		}
		h.cache.Fill(r.Context(), key, doc)
		board = doc
	}

	if board["visibility"] == "private" && !isMember(board, uid) {
		writeError(w, http.StatusForbidden, "Not a member of this board")
		return
	}
	writeData(w, http.StatusOK, redactPin(board, uid))
}

func (h *QueryHandler) GetBoardTasks(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	boardID := r.PathValue("id")

	key := cache.TasksKey(boardID)
	var tasks []map[string]any
	if h.cache.Lookup(r.Context(), key, &tasks) {
		writeData(w, http.StatusOK, tasks)
		return
	}

	tasks, err := h.tasks.ListByBoard(r.Context(), boardID)
	if err != nil {
		h.logger.Error("task list failed", "boardId", boardID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}
	h.cache.Fill(r.Context(), key, tasks)
	writeData(w, http.StatusOK, tasks)
}

// GetTask is uncached: single-task reads are rare compared to board views.
func (h *QueryHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	doc, err := h.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		h.logger.Error("task load failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to load task")
		return
	}
	writeData(w, http.StatusOK, doc)
}

func isMember(board map[string]any, userID string) bool {
	members, _ := board["members"].([]any)
	for _, m := range members {
		member, _ := m.(map[string]any)
		if member["userId"] == userID {
			return true
		}
	}
	return false
}

// redactPin hides the join PIN from everyone but the owner. The cached copy
// keeps the PIN; redaction happens per response.
func redactPin(board map[string]any, userID string) map[string]any {
	if board["ownerId"] == userID {
		return board
	}
	out := make(map[string]any, len(board))
	for k, v := range board {
		if k == "joinPin" {
			continue
		}
		out[k] = v
	}
	return out
}
