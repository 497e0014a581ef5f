package zabbix

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	// ErrRetryExhausted matches every *RetryExhaustedError.
	ErrRetryExhausted = errors.New("zabbix: retry budget exhausted")
	// ErrMissingResult is returned when a response carries neither result nor error.
	ErrMissingResult = errors.New("zabbix: response is missing the result field")
	// ErrInvalidSeverity is the cause of a DecodeError for unknown severity codes.
	ErrInvalidSeverity = errors.New("zabbix: severity code out of range")
)

// TransportError is a connection, send or body read failure. Retried.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Method, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx HTTP response. Retried only for 5xx and 408.
type StatusError struct {
	Method string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected http status %d %s", e.Method, e.Code, http.StatusText(e.Code))
}

// DecodeError is a malformed response body or row. Body decode failures are
// retried; row-level failures surface from the operation without retry.
type DecodeError struct {
	Method  string
	Preview string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Preview != "" {
		return fmt.Sprintf("%s: decode response: %v; body preview: %s", e.Method, e.Err, e.Preview)
	}
	return fmt.Sprintf("%s: decode response: %v", e.Method, e.Err)
}
func (e *DecodeError) Unwrap() error { return e.Err }

// APIError is the error object of a JSON-RPC envelope. Never retried.
type APIError struct {
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zabbix api error %d: %s", e.Code, e.Message)
}

// RetryExhaustedError wraps the last retriable failure once the attempt or
// time budget is spent.
type RetryExhaustedError struct {
	Method   string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts", e.Method, e.Attempts)
}
func (e *RetryExhaustedError) Unwrap() error        { return e.Last }
func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// IsRetriable reports whether err belongs to the retried classes:
// transport failures, 5xx/408 statuses and body decode failures.
func IsRetriable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusRequestTimeout
	}
	var de *DecodeError
	return errors.As(err, &de)
}
