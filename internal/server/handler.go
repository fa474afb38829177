package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/patrikvak/singq/internal/models"
	"github.com/patrikvak/singq/internal/reorder"
)

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody int64 // bytes, for JSON endpoints
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody: 1 * 1024 * 1024, // 1MB
	}
}

// Handler creates the HTTP handler with all routes and middleware.
func Handler(svc *reorder.Service, cfg *ServerConfig, logger *slog.Logger) http.Handler {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &handlers{svc: svc, cfg: cfg, logger: logger}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", h.readyz)

	// Reorder workflow
	mux.HandleFunc("POST /api/v1/events/{id}/reorder/preview", h.preview)
	mux.HandleFunc("POST /api/v1/events/{id}/reorder/apply", h.apply)

	// Queue + audit views
	mux.HandleFunc("GET /api/v1/events/{id}/queue", h.queue)
	mux.HandleFunc("GET /api/v1/events/{id}/audit", h.audit)

	return applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)
}

type handlers struct {
	svc    *reorder.Service
	cfg    *ServerConfig
	logger *slog.Logger
}

// readyz verifies the store is reachable with a cheap version read.
func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.CurrentVersion(r.Context(), 0); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: "store unavailable"})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func eventID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

// previewRequest is the preview endpoint's body; every field is optional.
type previewRequest struct {
	MaturePolicy string `json:"maturePolicy,omitempty"`
	Horizon      *int   `json:"horizon,omitempty"`
	MovementCap  *int   `json:"movementCap,omitempty"`
	Actor        string `json:"actor,omitempty"`
}

func (h *handlers) preview(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid event id"})
		return
	}

	var body previewRequest
	if r.ContentLength > 0 {
		if err := readJSON(r, h.cfg.MaxRequestBody, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
			return
		}
	}

	result, err := h.svc.Preview(r.Context(), reorder.PreviewRequest{
		EventID:      id,
		MaturePolicy: reorder.MaturePolicy(body.MaturePolicy),
		Horizon:      body.Horizon,
		MovementCap:  body.MovementCap,
		Actor:        body.Actor,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type applyRequest struct {
	PlanID         string `json:"planId"`
	BasedOnVersion string `json:"basedOnVersion"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Actor          string `json:"actor,omitempty"`
}

func (h *handlers) apply(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid event id"})
		return
	}

	var body applyRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
		return
	}
	if body.PlanID == "" || body.BasedOnVersion == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "planId and basedOnVersion are required"})
		return
	}

	result, err := h.svc.Apply(r.Context(), reorder.ApplyRequest{
		EventID:        id,
		PlanID:         body.PlanID,
		BasedOnVersion: body.BasedOnVersion,
		IdempotencyKey: body.IdempotencyKey,
		Actor:          body.Actor,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) queue(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid event id"})
		return
	}

	view, err := h.svc.Queue(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) audit(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid event id"})
		return
	}

	records, err := h.svc.Audit(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// writeError maps the reorder error taxonomy onto HTTP statuses:
// not-found (re-preview), conflict (queue mutated), unprocessable
// (domain policy), internal (infrastructure).
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reorder.ErrPlanNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:   "not_found",
			Message: "Plan not found or expired; request a new preview",
		})
	case errors.Is(err, reorder.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:   "conflict",
			Message: "Queue state has changed",
		})
	case errors.Is(err, reorder.ErrNoAssignments):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:   "unprocessable",
			Message: "Plan does not contain any assignments",
		})
	case errors.Is(err, reorder.ErrAllDeferred):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:   "unprocessable",
			Message: "All eligible entries are mature content; adjust the mature policy",
			Warnings: []models.ReorderWarning{{
				Code:           reorder.WarnAllDeferred,
				Message:        "every eligible entry is mature content held back by the defer policy",
				BlocksApproval: true,
			}},
		})
	case errors.Is(err, reorder.ErrPlanBlocked):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:   "unprocessable",
			Message: "Plan has blocking warnings; request a new preview",
		})
	default:
		h.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "internal",
			Message: "internal server error",
		})
	}
}
