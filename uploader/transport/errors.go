package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed upload request for retry decisions.
type Kind string

// Error kinds. HTTPError carries a status code, the rest are transport-level.
const (
	KindAborted        Kind = "ABORTED"
	KindNetworkError   Kind = "NETWORK_ERROR"
	KindNetworkTimeout Kind = "NETWORK_TIMEOUT"
	KindHTTPError      Kind = "HTTP_ERROR"
	KindUnknown        Kind = "UNKNOWN"
)

// Error is the structured failure of a single upload request. It carries
// enough detail for a retry strategy to classify retryability.
type Error struct {
	StatusCode int
	Kind       Kind
	RawBody    string
	Fields     map[string]interface{}
	cause      error
}

// NewHTTPError builds an Error from a non-2xx response. The body is parsed
// opportunistically: if it is not valid JSON, a {status, raw, reason} fallback
// is stored instead.
func NewHTTPError(statusCode int, body []byte) *Error {
	e := &Error{
		StatusCode: statusCode,
		Kind:       KindHTTPError,
		RawBody:    string(body),
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err == nil {
		e.Fields = fields
	} else {
		e.Fields = map[string]interface{}{
			"status": statusCode,
			"raw":    string(body),
			"reason": string(KindUnknown),
		}
	}
	return e
}

// NewAbortedError wraps a cancellation cause as an ABORTED error.
func NewAbortedError(cause error) *Error {
	return &Error{Kind: KindAborted, cause: cause}
}

// Error ...
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.RawBody)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.cause)
	}
	return string(e.Kind)
}

// Unwrap ...
func (e *Error) Unwrap() error {
	return e.cause
}

// IsAborted reports whether err settles as a cancellation.
func IsAborted(err error) bool {
	var tErr *Error
	return errors.As(err, &tErr) && tErr.Kind == KindAborted
}

// IsStatus reports whether err is an HTTP error with the given status code.
func IsStatus(err error, statusCode int) bool {
	var tErr *Error
	return errors.As(err, &tErr) && tErr.StatusCode == statusCode
}

// classifyTransportError maps a request-level failure (no HTTP response
// received) to an error kind.
func classifyTransportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return &Error{Kind: KindAborted, cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetworkTimeout, cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindNetworkTimeout, cause: err}
	}
	return &Error{Kind: KindNetworkError, cause: err}
}
