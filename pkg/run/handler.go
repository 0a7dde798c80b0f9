package run

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joshmcq/sparkpilot/internal/audit"
	"github.com/joshmcq/sparkpilot/internal/httpserver"
)

// Handler mounts the run HTTP routes.
type Handler struct {
	Service *Service
	Logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// CreateRoutes returns the chi sub-router for /v1/jobs/{job_id}/runs.
func (h *Handler) CreateRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	return r
}

// Routes returns the chi sub-router for /v1/runs.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/cancel", h.handleCancel)
	r.Get("/{id}/logs", h.handleLogs)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid job id")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "Idempotency-Key header is required")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.Service.Create(r.Context(), jobID, key, audit.CallerFromRequest(r), req)
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}

	if result.Replayed {
		w.Header().Set("X-Idempotent-Replay", "true")
	}
	httpserver.Respond(w, result.StatusCode, result.Body)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var tenantID *uuid.UUID
	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid tenant_id")
			return
		}
		tenantID = &id
	}

	var state *string
	if raw := r.URL.Query().Get("state"); raw != "" {
		state = &raw
	}

	page, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	runs, err := h.Service.List(r.Context(), tenantID, state, page)
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, runs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid run id")
		return
	}

	resp, err := h.Service.Get(r.Context(), id)
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid run id")
		return
	}

	resp, err := h.Service.Cancel(r.Context(), id, audit.CallerFromRequest(r))
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid run id")
		return
	}

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 2000 {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 2000")
			return
		}
		limit = parsed
	}

	resp, err := h.Service.GetLogs(r.Context(), id, limit)
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}
