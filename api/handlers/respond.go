package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"incidentreg/core/attachments"
	"incidentreg/core/incidents"
	"incidentreg/core/partialdate"
	"incidentreg/core/regions"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		formatErr   *partialdate.FormatError
		dateErr     *partialdate.ValidationError
		inputErr    *incidents.ValidationError
		notFoundErr *attachments.NotFoundError
	)
	switch {
	case errors.As(err, &formatErr), errors.As(err, &dateErr), errors.As(err, &inputErr), errors.Is(err, regions.ErrInvalidName):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *utils.Logger, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "server error", status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

const jsonBodyMaxBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, jsonBodyMaxBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
