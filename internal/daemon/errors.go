package daemon

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies the outcome of a daemon call.
type Kind string

const (
	KindNone         Kind = ""
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInvalidData  Kind = "invalid_data"
	KindDaemon       Kind = "daemon_error"
	KindTransport    Kind = "transport"
)

var (
	// ErrBadRequest matches a 400; the node agent uses it for a bad server configuration
	ErrBadRequest = errors.New("invalid server configuration")
	// ErrUnauthorized matches a 401 from the node agent
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches a 403 from the node agent
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound matches a 404 from the node agent
	ErrNotFound = errors.New("not found")
	// ErrConflict matches a 409 from the node agent
	ErrConflict = errors.New("conflict")
	// ErrInvalidData matches a 422, including local validation failures
	ErrInvalidData = errors.New("invalid data")
	// ErrDaemon matches other failed statuses and, through Is, transport failures
	ErrDaemon = errors.New("daemon error")
	// ErrTransport wraps connection failures; it also matches ErrDaemon
	ErrTransport = errors.New("transport failure")
)

var kindErrors = map[Kind]error{
	KindBadRequest:   ErrBadRequest,
	KindUnauthorized: ErrUnauthorized,
	KindForbidden:    ErrForbidden,
	KindNotFound:     ErrNotFound,
	KindConflict:     ErrConflict,
	KindInvalidData:  ErrInvalidData,
	KindDaemon:       ErrDaemon,
	KindTransport:    ErrTransport,
}

// Classify maps an HTTP status to a Kind. Status 0 is a transport failure.
func Classify(status int) Kind {
	switch {
	case status == 0:
		return KindTransport
	case status >= 200 && status < 300:
		return KindNone
	}

	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusUnprocessableEntity:
		return KindInvalidData
	default:
		return KindDaemon
	}
}

// Error is the error form of an unsuccessful Outcome.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("daemon returned HTTP %d: %s", e.Status, e.Message)
}

// Unwrap returns the sentinel of the error kind.
func (e *Error) Unwrap() error {
	return kindErrors[e.Kind]
}

// Is lets transport failures match ErrDaemon as well as ErrTransport.
func (e *Error) Is(target error) bool {
	return e.Kind == KindTransport && target == ErrDaemon
}

// errorMessage builds the stable message for a failed HTTP status.
func errorMessage(status int, path, detail string) string {
	if detail == "" {
		detail = "unknown error"
	}
	switch Classify(status) {
	case KindBadRequest:
		return "invalid server configuration: " + detail
	case KindUnauthorized:
		return "authentication failed: " + detail
	case KindForbidden:
		return "access forbidden: " + detail
	case KindNotFound:
		return "endpoint not found: " + path
	case KindConflict:
		return "resource conflict: " + detail
	case KindInvalidData:
		return "invalid data: " + detail
	}
	switch status {
	case http.StatusTooManyRequests:
		return "rate limit exceeded: " + detail
	case http.StatusInternalServerError:
		return "server error: " + detail
	}
	return fmt.Sprintf("HTTP %d: %s", status, detail)
}
