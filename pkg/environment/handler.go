package environment

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joshmcq/sparkpilot/internal/audit"
	"github.com/joshmcq/sparkpilot/internal/httpserver"
)

// Handler mounts the environment and provisioning-operation HTTP routes.
type Handler struct {
	Service *Service
	Logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// Routes returns the chi sub-router for /v1/environments.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	return r
}

// OperationRoutes returns the chi sub-router for /v1/provisioning-operations.
func (h *Handler) OperationRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.handleGetOperation)
	return r
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

	page, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	envs, err := h.Service.List(r.Context(), tenantID, page)
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, envs)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "Idempotency-Key header is required")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.Service.Create(r.Context(), key, audit.CallerFromRequest(r), req)
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}

	if result.Replayed {
		w.Header().Set("X-Idempotent-Replay", "true")
	}
	httpserver.Respond(w, result.StatusCode, result.Body)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid environment id")
		return
	}

	resp, err := h.Service.Get(r.Context(), id)
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provisioning operation id")
		return
	}

	resp, err := h.Service.GetProvisioningOperation(r.Context(), id)
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}
