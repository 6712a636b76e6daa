package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Command errors
	ErrorTypeDuplicateCommand ErrorType = "duplicate_command"
	ErrorTypeCommandNotFound  ErrorType = "command_not_found"

	// Plugin errors
	ErrorTypePluginLoad        ErrorType = "plugin_load"
	ErrorTypeManifestParse     ErrorType = "manifest_parse"
	ErrorTypeCyclicDependency  ErrorType = "cyclic_dependency"
	ErrorTypeMissingDependency ErrorType = "missing_dependency"

	// Storage errors
	ErrorTypeStorage      ErrorType = "storage"
	ErrorTypeDuplicateKey ErrorType = "duplicate_key"

	// System errors
	ErrorTypeBootstrap ErrorType = "bootstrap"
	ErrorTypeInternal  ErrorType = "internal"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// AppError represents a structured framework error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	InnerError error                  `json:"-"`
	Stack      []string               `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.InnerError != nil {
		return e.InnerError.Error()
	}
	return string(e.Type)
}

// Unwrap returns the inner error
func (e *AppError) Unwrap() error {
	return e.InnerError
}

// WithMessage adds a message to the error
func (e *AppError) WithMessage(msg string) *AppError {
	e.Message = msg
	return e
}

// WithCode adds a code to the error
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithInnerError sets the inner error
func (e *AppError) WithInnerError(err error) *AppError {
	e.InnerError = err
	return e
}

// WithStack captures the call stack
func (e *AppError) WithStack() *AppError {
	e.Stack = captureStack(3) // Skip this method and the caller
	return e
}

// Is checks if this error is of a specific type
func (e *AppError) Is(target error) bool {
	if targetApp, ok := target.(*AppError); ok {
		return e.Type == targetApp.Type
	}
	return false
}

// New creates a new AppError
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Code:    string(errType),
	}
}

// FromError converts a standard error to AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return &AppError{
		Type:       ErrorTypeUnknown,
		Message:    err.Error(),
		InnerError: err,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	return FromError(err).WithMessage(message)
}

// WrapWithType wraps an error with a specific type
func WrapWithType(err error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		InnerError: err,
		Code:       string(errType),
	}
}

// Command errors
func NewDuplicateCommand(name string) *AppError {
	return New(ErrorTypeDuplicateCommand, fmt.Sprintf("command %q is already registered", name)).
		WithDetail("command", name)
}

func NewCommandNotFound(name string) *AppError {
	return New(ErrorTypeCommandNotFound, fmt.Sprintf("command %q is not registered", name)).
		WithDetail("command", name)
}

// Plugin errors
func NewPluginLoad(plugin, module string) *AppError {
	return New(ErrorTypePluginLoad, fmt.Sprintf("plugin %q failed to load module %q", plugin, module)).
		WithDetail("plugin", plugin).
		WithDetail("module", module)
}

func NewManifestParse(plugin string) *AppError {
	return New(ErrorTypeManifestParse, fmt.Sprintf("plugin %q has an unreadable manifest", plugin)).
		WithDetail("plugin", plugin)
}

func NewCyclicDependency(plugins []string) *AppError {
	return New(ErrorTypeCyclicDependency, "plugin dependency cycle detected").
		WithDetail("plugins", plugins)
}

func NewMissingDependency(plugin, dep string) *AppError {
	return New(ErrorTypeMissingDependency, fmt.Sprintf("plugin %q requires %q which is not active", plugin, dep)).
		WithDetail("plugin", plugin).
		WithDetail("dependency", dep)
}

// Storage errors
func NewStorage(message string) *AppError {
	return New(ErrorTypeStorage, message)
}

func NewDuplicateKey(collection string) *AppError {
	return New(ErrorTypeDuplicateKey, fmt.Sprintf("uniqueness constraint violated in %q", collection)).
		WithDetail("collection", collection)
}

// System errors
func NewBootstrap(message string) *AppError {
	return New(ErrorTypeBootstrap, message)
}

func NewInternal(message string) *AppError {
	return New(ErrorTypeInternal, message)
}

// captureStack captures the current call stack
func captureStack(skip int) []string {
	var stack []string
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		name := fn.Name()
		if strings.Contains(name, "runtime.") {
			continue
		}
		stack = append(stack, fmt.Sprintf("%s (%s:%d)", name, file, line))
	}
	return stack
}

// IsType reports whether err carries the given framework error type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}
