package middleware

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the {success:false, error} envelope.
func WriteError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, status, map[string]any{"success": false, "error": message})
}
