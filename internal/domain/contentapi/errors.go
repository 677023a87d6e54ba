package contentapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for content API errors.
var (
	ErrUnknownVersion   = errors.New("unknown api version")
	ErrUnsupportedQuery = errors.New("unsupported query")
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidOption    = errors.New("invalid query option")
)

// OptionError reports an option value a backend cannot interpret.
type OptionError struct {
	Option string
	Value  any
	Reason string
}

// Error implements the error interface.
func (e *OptionError) Error() string {
	return fmt.Sprintf("option %s=%v: %s", e.Option, e.Value, e.Reason)
}

// Is implements errors.Is support.
func (e *OptionError) Is(target error) bool {
	return target == ErrInvalidOption
}

// NotFoundError reports a read that matched nothing.
type NotFoundError struct {
	Resource string
	Key      string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// Is implements errors.Is support.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// APIError is a non-2xx answer from a remote content API.
type APIError struct {
	Controller string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("content api %s: status %d", e.Controller, e.StatusCode)
	}
	return fmt.Sprintf("content api %s: status %d: %s", e.Controller, e.StatusCode, e.Message)
}

// Is implements errors.Is support.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrInvalidOption:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

func unsupported(version string, c Capability) error {
	return fmt.Errorf("%w: %s.%s (api %s)", ErrUnsupportedQuery, c.Controller, c.Type, version)
}
