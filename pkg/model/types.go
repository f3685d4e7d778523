package model

// Kind classifies the outcome of one copy or probe attempt.
type Kind string

const (
	KindSuccess        Kind = "success"
	KindRetriableError Kind = "retriable_error"
	KindFatalError     Kind = "fatal_error"
)

// OperationType identifies the facade operation that produced an outcome.
type OperationType string

const (
	OperationCopy          OperationType = "copy"
	OperationCopyImmutable OperationType = "copy_immutable"
	OperationExists        OperationType = "exists"
	OperationCheck         OperationType = "check"
	OperationCheckRemote   OperationType = "check_remote"
)

// Platform families that matter for path translation.
const (
	PlatformWindows = "windows"
	PlatformUnix    = "unix"
)
