// Package ferr implements the federator's error taxonomy and its
// mapping to HTTP status codes. Callers match on the exported types,
// not on strings; causes are carried via github.com/pkg/errors so the
// chain from a transport failure to the status the client sees survives
// logging and %+v formatting.
package ferr

import (
	"errors"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

type (
	// BadSelector: malformed stream-epoch line or selector.
	BadSelector struct{ Reason string }
	// BadGroupKey: GroupBy called with an unrecognized key.
	BadGroupKey struct{ Key string }
	// NoContent: routing service returned 204, or no endpoint task ever
	// answered 200.
	NoContent struct{ Reason string }
	// UpstreamUnavailable: the routing service or a data-centre endpoint
	// is unreachable or answered with a failing status (for the routing
	// service: any non-2xx other than 204).
	UpstreamUnavailable struct{ Cause error }
	// SlotTimeout: a concurrency-limiter acquire timed out.
	SlotTimeout struct{ URL string }
	// StreamingError: raised mid-body; the connection is already
	// half-written so the envelope footer must not be emitted.
	StreamingError struct{ Cause error }
)

func (e *BadSelector) Error() string         { return "bad stream-epoch selector: " + e.Reason }
func (e *BadGroupKey) Error() string         { return "unrecognized group-by key: " + e.Key }
func (e *NoContent) Error() string           { return "no data: " + e.Reason }
func (e *UpstreamUnavailable) Error() string { return "upstream unavailable: " + e.Cause.Error() }
func (e *UpstreamUnavailable) Unwrap() error { return e.Cause }
func (e *SlotTimeout) Error() string         { return "timed out acquiring a slot for " + e.URL }
func (e *StreamingError) Error() string      { return "streaming error: " + e.Cause.Error() }
func (e *StreamingError) Unwrap() error      { return e.Cause }

// Status maps a federator error to the HTTP status code the ingress
// layer should (attempt to) surface. For a StreamingError the caller
// must not actually call WriteHeader, the body being half-written
// already, but the status is still useful for logging and metrics.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case as[*BadSelector](err), as[*BadGroupKey](err):
		return http.StatusBadRequest
	case as[*NoContent](err):
		return http.StatusNoContent
	case as[*SlotTimeout](err):
		return http.StatusServiceUnavailable
	case as[*UpstreamUnavailable](err):
		return http.StatusInternalServerError
	case as[*StreamingError](err):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func as[T error](err error) bool {
	var t T
	return errors.As(err, &t)
}

// Wrap annotates err with a caller-supplied message while preserving the
// chain, e.g. wrapping a fasthttp dial error before it becomes an
// UpstreamUnavailable.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}
