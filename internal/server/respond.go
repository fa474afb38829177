package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/patrikvak/singq/internal/models"
)

// errorBody is the error envelope for every non-2xx response.
type errorBody struct {
	Error    string                  `json:"error"`
	Message  string                  `json:"message"`
	Warnings []models.ReorderWarning `json:"warnings,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func readJSON(r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
