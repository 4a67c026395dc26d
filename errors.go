package mobly

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the service manager and device sessions
var (
	// ErrConfig matches every ConfigError through errors.Is
	ErrConfig = errors.New("mobly: configuration error")

	// ErrDuplicateAlias indicates a service is already registered under the alias
	ErrDuplicateAlias = errors.New("mobly: duplicate service alias")

	// ErrUnknownAlias indicates no service is registered under the alias
	ErrUnknownAlias = errors.New("mobly: unknown service alias")

	// ErrInvalidService indicates a factory that cannot produce a Service
	ErrInvalidService = errors.New("mobly: invalid service")

	// ErrServicesRunning indicates a session change refused while services are alive
	ErrServicesRunning = errors.New("mobly: services running")

	// ErrLogsExist indicates the target log directory already holds files
	ErrLogsExist = errors.New("mobly: logs already exist")

	// ErrBootTimeout indicates the device did not finish booting in time
	ErrBootTimeout = errors.New("mobly: device did not complete boot")
)

var errAliveCheck = errors.New("liveness check failed")

// ConfigError reports a programmer or configuration mistake. It is always
// returned to the caller and never recorded.
type ConfigError struct {
	// Alias is the service alias involved, if any
	Alias string
	// Reason is the human readable message
	Reason string
	// Err is the error kind or the underlying factory error
	Err error
}

// Error returns the reason
func (e *ConfigError) Error() string {
	return e.Reason
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConfig
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func duplicateAliasError(alias string) error {
	return &ConfigError{
		Alias:  alias,
		Reason: fmt.Sprintf("A service is already registered with alias %q", alias),
		Err:    ErrDuplicateAlias,
	}
}

func unknownAliasError(alias string) error {
	return &ConfigError{
		Alias:  alias,
		Reason: fmt.Sprintf("No service is registered with alias %q", alias),
		Err:    ErrUnknownAlias,
	}
}

// OpError represents a failed lifecycle call on a single service
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Alias is the alias of the service the call was issued to
	Alias string
	// Err is the underlying error
	Err error
}

// Message returns the fixed failure message, e.g. `Failed to start service "logcat".`
func (e *OpError) Message() string {
	verb, noun := e.Op.subject()
	return fmt.Sprintf("Failed to %s %s %q.", verb, noun, e.Alias)
}

// Error returns the failure message followed by the cause
func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Message()
	}
	return fmt.Sprintf("%s %v", e.Message(), e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// SessionError decorates an error with the debug tag of the device session
type SessionError struct {
	// Tag is the debug tag of the session
	Tag string
	// Err is the underlying error
	Err error
}

// Error returns the message prefixed with the session tag
func (e *SessionError) Error() string {
	return fmt.Sprintf("<%s|%s> %v", DefaultDebugTagPrefix, e.Tag, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *SessionError) Unwrap() error {
	return e.Err
}

// MultiError collects the failures of bulk operations, typically the
// records of a Recorder
type MultiError struct {
	// Errors holds the failures in the order they happened
	Errors []error
}

// Error lists every failure on its own line after a count
func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred:", len(m.Errors))
	for _, err := range m.Errors {
		b.WriteString("\n\t* ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Add appends err unless it is nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Err returns m, or nil when nothing was collected
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}
