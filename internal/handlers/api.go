package handlers

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the uniform error body for API failures
type errorResponse struct {
	Error string `json:"error"`
}

// acceptedResponse is the 202 body for async submissions
type acceptedResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	ItemsQueued int    `json:"items_queued,omitempty"`
}

// writeJSON writes a JSON body with the given status code
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
