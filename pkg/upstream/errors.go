package upstream

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is matched by every ConfigError.
var ErrNotConfigured = errors.New("assistant upstream is not configured")

// ConfigError reports which settings are missing. It never carries values.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("assistant upstream is not configured: missing %s", strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrNotConfigured
}

// RejectionError is a non-2xx answer from the upstream backend. Status and body
// are kept verbatim so the proxy can pass them through.
type RejectionError struct {
	Status      int
	Body        []byte
	ContentType string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("status error, got status %d. with response body %s", e.Status, string(e.Body))
}

// TransportError means no response was received from upstream.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AsRejection unwraps a RejectionError.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
