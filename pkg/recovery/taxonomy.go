package recovery

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies a handled fault for recovery decisions.
type ErrorCategory string

const (
	// CategoryNetwork covers connectivity failures: timeouts, refused
	// connections, DNS resolution problems.
	CategoryNetwork ErrorCategory = "network"

	// CategoryPermission covers denied filesystem or service access.
	CategoryPermission ErrorCategory = "permission"

	// CategorySystemRequirements covers unmet host requirements
	// (disk, memory, OS version, missing runtime).
	CategorySystemRequirements ErrorCategory = "system_requirements"

	// CategoryConfiguration covers malformed or invalid settings values.
	CategoryConfiguration ErrorCategory = "configuration"

	// CategoryUserInput covers rejected values supplied interactively.
	CategoryUserInput ErrorCategory = "user_input"

	// CategoryServiceUnavailable covers required services that are
	// installed but not responding.
	CategoryServiceUnavailable ErrorCategory = "service_unavailable"

	// CategoryUnknown is the catch-all for faults matching no rule.
	CategoryUnknown ErrorCategory = "unknown"
)

// ErrorSeverity grades how badly a fault compromises the run.
// Severities are totally ordered: Low < Medium < High < Critical.
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase name of the severity.
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// RecoveryAction is a recommended next move after a handled fault.
type RecoveryAction string

const (
	ActionRetry              RecoveryAction = "retry"
	ActionSkipStep           RecoveryAction = "skip_step"
	ActionRollback           RecoveryAction = "rollback"
	ActionAbort              RecoveryAction = "abort"
	ActionManualIntervention RecoveryAction = "manual_intervention"
	ActionRequestPermissions RecoveryAction = "request_permissions"
	ActionUseFallback        RecoveryAction = "use_fallback"
)

// RequirementsError reports an unmet host requirement. It always
// classifies as CategorySystemRequirements.
type RequirementsError struct {
	// Requirement names the failed check (e.g. "disk_space", "docker").
	Requirement string

	// Message is the human-readable description of what is missing.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *RequirementsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("requirement %s not met: %s: %v", e.Requirement, e.Message, e.Err)
	}
	return fmt.Sprintf("requirement %s not met: %s", e.Requirement, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *RequirementsError) Unwrap() error { return e.Err }

// NewRequirementsError creates a new unmet-requirement error.
func NewRequirementsError(requirement, message string, err error) *RequirementsError {
	return &RequirementsError{Requirement: requirement, Message: message, Err: err}
}

// ConnectivityError reports a failure to reach a network endpoint.
// It always classifies as CategoryNetwork.
type ConnectivityError struct {
	// Endpoint is the address that could not be reached.
	Endpoint string

	// Message describes the connectivity problem.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ConnectivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot reach %s: %s: %v", e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("cannot reach %s: %s", e.Endpoint, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ConnectivityError) Unwrap() error { return e.Err }

// NewConnectivityError creates a new connectivity error.
func NewConnectivityError(endpoint, message string, err error) *ConnectivityError {
	return &ConnectivityError{Endpoint: endpoint, Message: message, Err: err}
}

// PermissionError reports denied access to a path or resource.
// It always classifies as CategoryPermission.
type PermissionError struct {
	// Path is the filesystem path or resource that was denied.
	Path string

	// Message describes the denied operation.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("access denied to %s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("access denied to %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *PermissionError) Unwrap() error { return e.Err }

// NewPermissionError creates a new denied-access error.
func NewPermissionError(path, message string, err error) *PermissionError {
	return &PermissionError{Path: path, Message: message, Err: err}
}

// SnapshotNotFoundError is returned by rollback operations when the
// target snapshot id is not on the active stack.
type SnapshotNotFoundError struct {
	// ID is the snapshot id that was requested.
	ID string
}

// Error implements the error interface.
func (e *SnapshotNotFoundError) Error() string {
	return fmt.Sprintf("snapshot %s not found", e.ID)
}

// IsSnapshotNotFound returns true if the error chain contains a
// SnapshotNotFoundError.
func IsSnapshotNotFound(err error) bool {
	var e *SnapshotNotFoundError
	return errors.As(err, &e)
}
