package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cascadehq/cascade/libs/auth"
	"github.com/cascadehq/cascade/libs/docstore"
	"github.com/cascadehq/cascade/libs/events"
	"github.com/cascadehq/cascade/services/auth-service/internal/storage"
)

type AuthHandler struct {
	users    *storage.UserRepository
	events   *events.Publisher
	secret   string
	tokenTTL time.Duration
	logger   *slog.Logger
}

func NewAuthHandler(users *storage.UserRepository, publisher *events.Publisher, secret string, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, events: publisher, secret: secret, tokenTTL: tokenTTL, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string         `json:"token"`
	User  map[string]any `json:"user"`
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

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Password == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "email, password, and name are required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("password hash failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	user := &storage.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.users.Insert(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "Email already registered")
			return
		}
		h.logger.Error("user insert failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	h.events.UserRegistered(r.Context(), user.ID, user.Email, user.Name)

	token, err := h.issueToken(user)
	if err != nil {
		h.logger.Error("token issue failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeData(w, http.StatusCreated, authResponse{Token: token, User: publicUser(user)})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.Error("user lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	h.events.UserLoggedIn(r.Context(), user.ID, user.Email)

	token, err := h.issueToken(user)
	if err != nil {
		h.logger.Error("token issue failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeData(w, http.StatusOK, authResponse{Token: token, User: publicUser(user)})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if !strings.HasPrefix(header, "Bearer ") || token == "" {
		writeError(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
		return
	}

	claims, err := auth.ParseAndVerifyHS256(token, h.secret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"id":    claims.Sub,
		"email": claims.Email,
		"name":  claims.Name,
	})
}

func (h *AuthHandler) issueToken(user *storage.User) (string, error) {
	now := time.Now().UTC()
	return auth.SignHS256(auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.Name,
		Iat:   now.Unix(),
		Exp:   now.Add(h.tokenTTL).Unix(),
	}, h.secret)
}

func publicUser(user *storage.User) map[string]any {
	return map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	}
}
