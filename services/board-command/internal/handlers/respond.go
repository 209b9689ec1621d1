package handlers

import (
	"encoding/json"
	"net/http"
)

// Every response uses the same envelope: {"success":true,"data":...} on the
// happy path, {"success":false,"error":"..."} otherwise.

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

// userID extracts the authenticated user from the X-User-Id header set by the
// gateway after token verification. Empty means the request is anonymous.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}
