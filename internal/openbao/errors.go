package openbao

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ResponseError is an error answer from OpenBao. Errors holds the server's
// messages verbatim, in order.
type ResponseError struct {
	Method     string
	Path       string
	StatusCode int
	Errors     []string
	// RawBody is kept when the body was not the usual {"errors": [...]} shape.
	RawBody string
}

func newResponseError(req *http.Request, statusCode int, body []byte) *ResponseError {
	rerr := &ResponseError{StatusCode: statusCode}
	if req != nil {
		rerr.Method = req.Method
		if req.URL != nil {
			rerr.Path = req.URL.Path
		}
	}

	var parsed struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		rerr.Errors = parsed.Errors
		return rerr
	}
	rerr.RawBody = strings.TrimSpace(string(body))
	return rerr
}

// Detail is the server-reported message as it should be shown to an operator.
func (e *ResponseError) Detail() string {
	if len(e.Errors) > 0 {
		return strings.Join(e.Errors, "; ")
	}
	if e.RawBody != "" {
		return e.RawBody
	}
	return http.StatusText(e.StatusCode)
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Detail())
}

// FailureKind tells apart rejections from the server and failures to reach it.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureRemoteRejection FailureKind = "remote_rejection"
	FailureTransport       FailureKind = "transport"
)

// ClassifyFailure reports which kind of failure err is. Both kinds are
// surfaced the same way; the distinction is kept for logs and metrics.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var rerr *ResponseError
	if errors.As(err, &rerr) {
		return FailureRemoteRejection
	}
	return FailureTransport
}

// FailureDetail extracts the message to show an operator for err.
func FailureDetail(err error) string {
	if err == nil {
		return ""
	}
	var rerr *ResponseError
	if errors.As(err, &rerr) {
		return rerr.Detail()
	}
	return err.Error()
}

// IsNotFound reports whether err is a 404 answer from OpenBao.
func IsNotFound(err error) bool {
	var rerr *ResponseError
	return errors.As(err, &rerr) && rerr.StatusCode == http.StatusNotFound
}
