package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/joshmcq/sparkpilot/internal/apierror"
)

// WriteError maps a domain error to its HTTP status and writes the error
// envelope, logging unexpected (untagged) errors at error level.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := apierror.Status(err)
	code := apierror.Code(err)

	if status == http.StatusInternalServerError {
		logger.Error("unhandled error", "error", err)
	}

	RespondError(w, status, code, err.Error())
}
