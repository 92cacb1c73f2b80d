package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/domain"
)

type errorBody struct {
	Error   string `json:"error"`
	Deleted *int   `json:"deleted,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		config.Logger.WithError(err).Warn("response encode failed")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSubjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := config.WithContext(r.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writePartial reports a bulk operation that stopped midway together with
// how many documents it removed first.
func writePartial(w http.ResponseWriter, r *http.Request, err error, deleted int) {
	status := statusFor(err)
	config.WithContext(r.Context()).WithError(err).WithField("deleted", deleted).Error("bulk operation incomplete")
	writeJSON(w, status, errorBody{Error: err.Error(), Deleted: &deleted})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}
