package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dc-tec/openbao-console/internal/ldap"
	"github.com/dc-tec/openbao-console/internal/mount"
	"github.com/dc-tec/openbao-console/internal/openbao"
	"github.com/dc-tec/openbao-console/internal/session"
	"github.com/dc-tec/openbao-console/internal/transform"
	"github.com/dc-tec/openbao-console/internal/validation"
)

// errorResponse mirrors OpenBao's own error body.
type errorResponse struct {
	Errors     []string          `json:"errors"`
	Validation *validation.Error `json:"validation,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Errors: []string{err.Error()}}
	if verr, ok := validation.As(err); ok {
		resp.Validation = verr
	}
	writeJSON(w, status, resp)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, validation.ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotFound), openbao.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, session.ErrLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, mount.ErrSubmitInFlight), errors.Is(err, mount.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, mount.ErrUnknownType),
		errors.Is(err, mount.ErrCategoryMismatch),
		errors.Is(err, ldap.ErrImmutable),
		errors.Is(err, transform.ErrImmutable),
		errors.Is(err, transform.ErrBuiltin),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

var errBadRequest = errors.New("bad request")

func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}
