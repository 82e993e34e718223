package database

import (
	"errors"
	"fmt"
)

// Error taxonomy. ErrConnectFailure is never returned by Connect; it tags the
// recorded connection error so status queries can report it.
var (
	ErrConnectFailure        = errors.New("connect failure")
	ErrNotConnected          = errors.New("not connected")
	ErrUnsupportedQueryShape = errors.New("unsupported query shape")
	ErrUnsafeQuery           = errors.New("unsafe query")
	ErrBackendUnavailable    = errors.New("backend unavailable")
	ErrSchemaUnavailable     = errors.New("schema unavailable")
)

// HTTPError is returned by the schema fetcher for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("schema API returned http status %s", e.Status)
}

// QueryError wraps an execution failure with the query language involved.
// The backend message is preserved.
type QueryError struct {
	Language string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query failed: %v", e.Language, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// UnavailableError reports a backend that is still down after one reconnect
// attempt. It matches both ErrBackendUnavailable and ErrNotConnected.
type UnavailableError struct {
	Backend string
	// Cause is the aggregated connection error, possibly empty.
	Cause string
}

func (e *UnavailableError) Error() string {
	if e.Cause == "" {
		return fmt.Sprintf("%s backend unavailable: not connected", e.Backend)
	}
	return fmt.Sprintf("%s backend unavailable: not connected (%s)", e.Backend, e.Cause)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable || target == ErrNotConnected
}

// ErrorType names the taxonomy class of err for result metadata.
func ErrorType(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsafeQuery):
		return "UnsafeQuery"
	case errors.Is(err, ErrUnsupportedQueryShape):
		return "UnsupportedQueryShape"
	case errors.Is(err, ErrBackendUnavailable):
		return "BackendUnavailable"
	case errors.Is(err, ErrNotConnected):
		return "NotConnected"
	case errors.Is(err, ErrSchemaUnavailable):
		return "SchemaUnavailable"
	case errors.As(err, &httpErr):
		return "HttpError"
	case errors.Is(err, ErrConnectFailure):
		return "ConnectFailure"
	default:
		var qerr *QueryError
		if errors.As(err, &qerr) {
			return "QueryError"
		}
		return "Error"
	}
}
