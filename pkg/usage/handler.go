package usage

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joshmcq/sparkpilot/internal/httpserver"
)

// Handler mounts the usage HTTP routes.
type Handler struct {
	Service *Service
	Logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// Routes returns the chi sub-router for /v1/usage.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleGet)
	return r
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "tenant_id is required and must be a valid UUID")
		return
	}

	from, err := parseOptionalTimestamp(r.URL.Query().Get("from_ts"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid from_ts")
		return
	}
	to, err := parseOptionalTimestamp(r.URL.Query().Get("to_ts"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid to_ts")
		return
	}

	summary, err := h.Service.GetUsage(r.Context(), tenantID, from, to)
	if err != nil {
		httpserver.WriteError(w, h.Logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, summary)
}

// parseOptionalTimestamp parses an RFC 3339 query parameter, returning nil
// when raw is empty so the service can apply its own default.
func parseOptionalTimestamp(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
