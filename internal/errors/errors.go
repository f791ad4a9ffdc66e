// Package errors provides structured error handling for secwebscan operations.
// It defines error codes, error types, and utilities for creating and
// inspecting errors raised by scan tasks, the store, and configuration.
package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Scan task errors.
	CodeNoTarget      ErrorCode = "NO_TARGET"
	CodeInstallFailed ErrorCode = "INSTALL_FAILED"
	CodeToolExecution ErrorCode = "TOOL_EXECUTION"
	CodeEmptyArtifact ErrorCode = "EMPTY_ARTIFACT"
	CodeParseFailed   ErrorCode = "PARSE_FAILED"

	// Store errors.
	CodeStoreConnection ErrorCode = "STORE_CONNECTION"
	CodeStoreQuery      ErrorCode = "STORE_QUERY"
	CodeStoreMigration  ErrorCode = "STORE_MIGRATION"

	// File system errors.
	CodeFileNotFound ErrorCode = "FILE_NOT_FOUND"
)

// TaskError represents an error raised by a single scan task. Task errors
// never abort the run; they are collected and logged per capability/source.
type TaskError struct {
	Code       ErrorCode
	Message    string
	Capability string
	Source     string
	Stderr     string
	Cause      error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Capability != "" {
		return fmt.Sprintf("[%s] %s (capability: %s, source: %s)", e.Code, e.Message, e.Capability, e.Source)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// WithStderr attaches captured tool stderr to the error.
func (e *TaskError) WithStderr(stderr string) *TaskError {
	e.Stderr = stderr
	return e
}

// NewTaskError creates a new task error with the specified code and message.
func NewTaskError(code ErrorCode, message string) *TaskError {
	return &TaskError{Code: code, Message: message}
}

// NewTaskErrorWithSource creates a task error scoped to one capability variant.
func NewTaskErrorWithSource(code ErrorCode, message, capability, source string) *TaskError {
	return &TaskError{
		Code:       code,
		Message:    message,
		Capability: capability,
		Source:     source,
	}
}

// WrapTaskError wraps an existing error as a task error.
func WrapTaskError(code ErrorCode, message, capability, source string, err error) *TaskError {
	return &TaskError{
		Code:       code,
		Message:    message,
		Capability: capability,
		Source:     source,
		Cause:      err,
	}
}

// StoreError represents persistence-related errors.
type StoreError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new store error.
func NewStoreError(code ErrorCode, message string) *StoreError {
	return &StoreError{Code: code, Message: message}
}

// WrapStoreError wraps an existing error as a store error.
func WrapStoreError(code ErrorCode, message string, err error) *StoreError {
	return &StoreError{Code: code, Message: message, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{Code: code, Message: message}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{Code: code, Message: message, Field: field, Value: value}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{Code: code, Message: message, Cause: err}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *TaskError:
		return e.Code
	case *StoreError:
		return e.Code
	case *ConfigError:
		return e.Code
	}
	return CodeUnknown
}

// IsFatal determines if an error indicates a fatal condition that should
// abort the whole run. Per-task failures are never fatal; only a missing
// scan target or broken configuration is.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeNoTarget, CodeConfiguration, CodeStoreMigration:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrNoTarget creates the fatal error for a run config that declares
// neither an IP nor a domain.
func ErrNoTarget() *ConfigError {
	return NewConfigError(CodeNoTarget, "No scannable target configured: set target_ip or target_domain")
}

// ErrInstallFailed creates an error for a failed install step.
func ErrInstallFailed(capability, command string, err error) *TaskError {
	e := WrapTaskError(CodeInstallFailed, "Install step failed", capability, "", err)
	e.Message = fmt.Sprintf("Install step failed: %s", command)
	return e
}

// ErrToolExecution creates an error for a tool that exited non-zero.
func ErrToolExecution(capability, source, stderr string, err error) *TaskError {
	return WrapTaskError(CodeToolExecution, "Tool execution failed", capability, source, err).WithStderr(stderr)
}

// ErrEmptyArtifact creates an error for a tool that exited zero but wrote
// no output.
func ErrEmptyArtifact(capability, source string) *TaskError {
	return NewTaskErrorWithSource(CodeEmptyArtifact, "Tool produced no output", capability, source)
}

// ErrParseFailed creates an error for a normalizer that rejected an artifact.
func ErrParseFailed(capability, source string, err error) *TaskError {
	return WrapTaskError(CodeParseFailed, "Artifact parse failed", capability, source, err)
}

// ErrStoreConnection creates an error for store connection failures.
func ErrStoreConnection(err error) *StoreError {
	return WrapStoreError(CodeStoreConnection, "Failed to connect to database", err)
}

// ErrStoreQuery creates an error for store query failures.
func ErrStoreQuery(operation string, err error) *StoreError {
	e := WrapStoreError(CodeStoreQuery, "Database operation failed", err)
	e.Operation = operation
	return e
}
