package provisioning

import (
	"errors"
	"fmt"
)

// ErrAttemptsExhausted is wrapped by a ProvisioningError when polling stops
// because the configured number of status fetches ran out.
var ErrAttemptsExhausted = errors.New("maximum poll attempts reached")

// ErrorKind classifies errors surfaced by the provisioner.
type ErrorKind string

const (
	KindUnknown       ErrorKind = "unknown"
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not_found"
	KindProvider      ErrorKind = "provider"
	KindProvisioning  ErrorKind = "provisioning"
)

// ConfigurationError reports a problem with local configuration or with the
// account setup that the user has to fix, e.g. no SSH keys registered.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NotFoundError reports a lookup that matched nothing.
type NotFoundError struct {
	Kind  string // "ssh key", "droplet"
	Field string // "name", "fingerprint", "id"
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with %s '%s' not found", e.Kind, e.Field, e.Value)
}

// ProviderError wraps a failed provider API call. The underlying error is kept
// as returned by the API client.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProvisioningError reports a droplet that did not reach the active state.
// Status is the last status observed; Err is set when polling stopped for a
// reason other than an unexpected status (timeout, cancellation, attempts).
type ProvisioningError struct {
	ID     int
	Status string
	Err    error
}

func (e *ProvisioningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("droplet %d not active (last status %q): %v", e.ID, e.Status, e.Err)
	}
	return fmt.Sprintf("droplet %d creation failed with status: %s", e.ID, e.Status)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// Kind returns the class of err. The outermost tagged error in the wrap
// chain decides, so a provider failure that wraps a not-found lookup is
// still a provider failure.
func Kind(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if kind, ok := kindOf(err); ok {
		return kind
	}
	return KindUnknown
}

func kindOf(err error) (ErrorKind, bool) {
	switch e := err.(type) {
	case *ConfigurationError:
		return KindConfiguration, true
	case *NotFoundError:
		return KindNotFound, true
	case *ProvisioningError:
		return KindProvisioning, true
	case *ProviderError:
		return KindProvider, true
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if kind, ok := kindOf(inner); ok {
				return kind, true
			}
		}
		return "", false
	}
	if inner := errors.Unwrap(err); inner != nil {
		return kindOf(inner)
	}
	return "", false
}

// ExitCode maps err to a process exit status so that callers can tell
// failure classes apart.
func ExitCode(err error) int {
	switch Kind(err) {
	case "":
		return 0
	case KindConfiguration:
		return 2
	case KindNotFound:
		return 3
	case KindProvider:
		return 4
	case KindProvisioning:
		return 5
	default:
		return 1
	}
}
