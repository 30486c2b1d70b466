package utils

import (
	"encoding/json"
	"net/http"
)

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// RespondRejected sends a refused write along with the row as it currently
// stands, so the client can show the truth.
func RespondRejected(w http.ResponseWriter, status int, reason string, current interface{}) {
	body := map[string]interface{}{
		"success": false,
		"error":   reason,
	}
	if current != nil {
		body["current"] = current
	}
	RespondJSON(w, status, body)
}
