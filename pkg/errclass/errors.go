// Package errclass defines the stable, machine-readable error classes of rcopy.
package errclass

import "fmt"

// RCopyError is a stable, machine-readable error class.
type RCopyError struct {
	Code    string
	Message string
}

func (e *RCopyError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RCopyError) Is(target error) bool {
	t, ok := target.(*RCopyError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new RCopyError with the same Code but a specific message.
func (e *RCopyError) WithMessage(msg string) *RCopyError {
	return &RCopyError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new RCopyError with a formatted message.
func (e *RCopyError) WithMessagef(format string, args ...any) *RCopyError {
	return &RCopyError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	// ErrConfigurationFailure is raised by startup checks only, never mid-transfer.
	ErrConfigurationFailure = &RCopyError{Code: "E_CONFIGURATION_FAILURE"}
	ErrToolNotFound         = &RCopyError{Code: "E_TOOL_NOT_FOUND"}
	ErrVersionUnavailable   = &RCopyError{Code: "E_VERSION_UNAVAILABLE"}
	ErrBothRemote           = &RCopyError{Code: "E_BOTH_REMOTE"}
	ErrSSHRequired          = &RCopyError{Code: "E_SSH_REQUIRED"}
	ErrHostRequired         = &RCopyError{Code: "E_HOST_REQUIRED"}
	ErrHostInvalid          = &RCopyError{Code: "E_HOST_INVALID"}
	ErrProcessStart         = &RCopyError{Code: "E_PROCESS_START"}
	ErrConfigInvalid        = &RCopyError{Code: "E_CONFIG_INVALID"}
)
