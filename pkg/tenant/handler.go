package tenant

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joshmcq/sparkpilot/internal/audit"
	"github.com/joshmcq/sparkpilot/internal/httpserver"
)

// Handler mounts the tenant HTTP routes.
type Handler struct {
	Service *Service
	Logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// Routes returns the chi sub-router for tenant endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	return r
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
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid tenant id")
		return
	}

	resp, err := h.Service.Get(r.Context(), id)
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}
