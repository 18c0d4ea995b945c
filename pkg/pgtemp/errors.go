package pgtemp

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error represents an error with additional context for troubleshooting.
type Error struct {
	// Code identifies the error type
	Code ErrorCode

	// Message is the primary error message
	Message string

	// Context provides additional details
	Context map[string]interface{}

	// Cause is the underlying error (if any)
	Cause error

	// Suggestion provides actionable guidance for resolving the error
	Suggestion string
}

// ErrorCode identifies categories of errors
type ErrorCode string

const (
	// Factory construction errors
	ErrorCodeCreateDirFailed ErrorCode = "CREATE_DIR_FAILED"
	ErrorCodeBinaryNotFound  ErrorCode = "BINARY_NOT_FOUND"
	ErrorCodeInitDBFailed    ErrorCode = "INIT_DB_FAILED"
	ErrorCodeFactoryClosed   ErrorCode = "FACTORY_CLOSED"

	// Instance preparation errors
	ErrorCodeCopyFailed         ErrorCode = "COPY_FAILED"
	ErrorCodeInvalidDataDir     ErrorCode = "INVALID_DATA_DIR"
	ErrorCodeCreateConfigFailed ErrorCode = "CREATE_CONFIG_FAILED"
	ErrorCodePermitFailed       ErrorCode = "PERMIT_FAILED"
	ErrorCodePortsExhausted     ErrorCode = "PORTS_EXHAUSTED"

	// Process lifecycle errors
	ErrorCodeSpawnFailed       ErrorCode = "SPAWN_FAILED"
	ErrorCodeExecFailed        ErrorCode = "EXEC_FAILED"
	ErrorCodeEarlyExit         ErrorCode = "EARLY_EXIT"
	ErrorCodeTerminationFailed ErrorCode = "TERMINATION_FAILED"

	// Bootstrap errors
	ErrorCodeCreateRoleFailed ErrorCode = "CREATE_ROLE_FAILED"
	ErrorCodeCreateDBFailed   ErrorCode = "CREATE_DB_FAILED"
)

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "; ")
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause adds the underlying cause to the error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithSuggestion adds an actionable suggestion to the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// Common error constructors with helpful suggestions

// ErrCreateDirFailed creates an error for temporary directory creation failures
func ErrCreateDirFailed(purpose, root string, cause error) *Error {
	return NewError(ErrorCodeCreateDirFailed,
		fmt.Sprintf("Failed to create %s directory", purpose)).
		WithContext("temp_root", root).
		WithCause(cause).
		WithSuggestion(fmt.Sprintf(
			"Check that %s exists and is writable, or set PGTEMP_TEMP_DIR", root))
}

// ErrBinaryNotFound creates an error for missing PostgreSQL executables
func ErrBinaryNotFound(name string, cause error) *Error {
	return NewError(ErrorCodeBinaryNotFound,
		fmt.Sprintf("PostgreSQL executable '%s' not found", name)).
		WithContext("binary", name).
		WithCause(cause).
		WithSuggestion(
			"Install the PostgreSQL server package, or point PGTEMP_BIN_DIR at its bin directory:\n" +
				"  Debian/Ubuntu: apt-get install postgresql\n" +
				"  macOS:         brew install postgresql")
}

// ErrInitDBFailed creates an error for initdb failures
func ErrInitDBFailed(dir string, cause error) *Error {
	return NewError(ErrorCodeInitDBFailed,
		"initdb failed to create the template data directory").
		WithContext("template_dir", dir).
		WithCause(cause).
		WithSuggestion(
			"initdb refuses to run as root; run tests as an unprivileged user.\n" +
				"Inspect the captured stderr in the cause for details")
}

// ErrFactoryClosed creates an error for use of a closed factory
func ErrFactoryClosed() *Error {
	return NewError(ErrorCodeFactoryClosed, "Factory has been closed")
}

// ErrPortsExhausted creates an error for a factory that has used every port
// above its base port
func ErrPortsExhausted(port int, basePort uint16) *Error {
	return NewError(ErrorCodePortsExhausted,
		fmt.Sprintf("Port %d is out of range; no ports left above %d", port, basePort)).
		WithContext("port", port).
		WithContext("base_port", basePort).
		WithSuggestion("Ports are never reused within a factory. Create a new factory or lower base_port")
}

// ErrCopyFailed creates an error for template copy failures
func ErrCopyFailed(src, dst string, cause error) *Error {
	return NewError(ErrorCodeCopyFailed,
		"Failed to copy the template data directory").
		WithContext("template_dir", src).
		WithContext("data_dir", dst).
		WithCause(cause)
}

// ErrInvalidDataDir creates an error for a copied directory missing PG_VERSION
func ErrInvalidDataDir(dir string, cause error) *Error {
	return NewError(ErrorCodeInvalidDataDir,
		"Copied data directory is not a valid PostgreSQL data directory").
		WithContext("data_dir", dir).
		WithCause(cause).
		WithSuggestion("The template may have been modified or removed; recreate the factory")
}

// ErrCreateConfigFailed creates an error for configuration write failures
func ErrCreateConfigFailed(path string, cause error) *Error {
	return NewError(ErrorCodeCreateConfigFailed,
		"Failed to write postgresql.conf").
		WithContext("path", path).
		WithCause(cause)
}

// ErrPermitFailed creates an error for an abandoned admission wait
func ErrPermitFailed(cause error) *Error {
	return NewError(ErrorCodePermitFailed,
		"Gave up waiting for a free instance slot").
		WithCause(cause).
		WithSuggestion("Close instances sooner, or raise PGTEMP_MAX_PROCESSES")
}

// ErrSpawnFailed creates an error for server process spawn failures
func ErrSpawnFailed(path string, cause error) *Error {
	return NewError(ErrorCodeSpawnFailed,
		"Failed to start the postgres server process").
		WithContext("binary", path).
		WithCause(cause)
}

// ErrExecFailed creates an error for commands that could not be launched
func ErrExecFailed(step string, cause error) *Error {
	return NewError(ErrorCodeExecFailed,
		fmt.Sprintf("Failed to execute %s", step)).
		WithContext("step", step).
		WithCause(cause)
}

// ErrEarlyExit creates an error for servers that stopped before becoming ready
func ErrEarlyExit(port int, output []string, cause error) *Error {
	return NewError(ErrorCodeEarlyExit,
		"postgres exited before accepting connections").
		WithContext("port", port).
		WithContext("output", strings.Join(output, "\n")).
		WithCause(cause).
		WithSuggestion(
			"Common causes:\n" +
				"  1. Shared memory limits too low for shared_buffers\n" +
				"  2. Socket directory path too long (limit is about 100 bytes)\n" +
				"  3. Stale lock file from a crashed instance on the same port")
}

// ErrCreateRoleFailed creates an error for createuser failures
func ErrCreateRoleFailed(role string, cause error) *Error {
	return NewError(ErrorCodeCreateRoleFailed,
		fmt.Sprintf("Failed to create role '%s'", role)).
		WithContext("role", role).
		WithCause(cause)
}

// ErrCreateDBFailed creates an error for createdb failures
func ErrCreateDBFailed(database string, cause error) *Error {
	return NewError(ErrorCodeCreateDBFailed,
		fmt.Sprintf("Failed to create database '%s'", database)).
		WithContext("database", database).
		WithCause(cause)
}

// ErrTerminationFailed creates an error for process termination failures
func ErrTerminationFailed(id string, dataDir string, cause error) *Error {
	return NewError(ErrorCodeTerminationFailed,
		fmt.Sprintf("Failed to terminate instance '%s'", id)).
		WithContext("instance", id).
		WithContext("data_dir", dataDir).
		WithCause(cause).
		WithSuggestion(
			"The data directory was kept because the server may still be running.\n" +
				"  1. Find process: ps aux | grep 'postgres -p'\n" +
				"  2. Stop it: kill -INT <pid>\n" +
				"  3. Remove the data directory by hand")
}

// IsErrorCode checks if an error has the specified error code
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode returns the error code from an error, or empty string if not an Error
func GetErrorCode(err error) ErrorCode {
	var pgErr *Error
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// GetSuggestion returns the suggestion from an error, or empty string if not available
func GetSuggestion(err error) string {
	var pgErr *Error
	if errors.As(err, &pgErr) {
		return pgErr.Suggestion
	}
	return ""
}
