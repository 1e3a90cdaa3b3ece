package httphandler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ericfisherdev/creditpanel/internal/application"
	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// statusForError maps domain errors to HTTP status codes. Unknown errors
// are internal.
func statusForError(err error) int {
	var rejected *model.ActionRejectedError
	switch {
	case errors.Is(err, model.ErrNoViewer):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrCreditNotFound), errors.Is(err, driven.ErrListingNotFound):
		return http.StatusNotFound
	case errors.As(err, &rejected),
		errors.Is(err, model.ErrActionNotAllowed),
		errors.Is(err, model.ErrActionInFlight),
		errors.Is(err, model.ErrStaleView):
		return http.StatusConflict
	case errors.Is(err, application.ErrInvalidIssueRequest), errors.Is(err, application.ErrInvalidPrice):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAnalysisUnavailable), errors.Is(err, driven.ErrEncryptionKeyNotSet):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrAggregateFetchFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Internal errors are
// logged and their message is withheld from the client.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	logger.Debug(msg, "status", status, "error", err)
	writeError(w, status, err.Error())
}
