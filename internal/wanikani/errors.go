package wanikani

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is wrapped by HTTPError for 401 responses.
	ErrUnauthorized = errors.New("unauthorized: check the API token")

	// ErrMalformed is returned when a response body cannot be understood.
	ErrMalformed = errors.New("malformed API response")
)

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("wanikani: %s returned %d: %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("wanikani: %s returned %d", e.URL, e.StatusCode)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == 401 {
		return ErrUnauthorized
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// unsupported reports a well-formed record of a kind the cache does not
// store. It matches both ErrUnsupported and ErrMalformed.
func unsupported(format string, args ...any) error {
	return errors.Join(ErrUnsupported, malformed(format, args...))
}
