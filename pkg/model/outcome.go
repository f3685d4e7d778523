package model

import "fmt"

// Outcome is the structured result of a single copy or probe attempt.
// It is a value type; construct it with the helpers below and never mutate it.
type Outcome struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message,omitempty"`
}

// Predefined outcomes.
var (
	Success     = Outcome{Kind: KindSuccess}
	Terminated  = Outcome{Kind: KindRetriableError, Message: "Process was terminated."}
	Interrupted = Outcome{Kind: KindRetriableError, Message: "Process was interrupted."}
	TimedOut    = Outcome{Kind: KindRetriableError, Message: "Process has stopped because of timeout."}
)

// RetriableError returns a retriable outcome with the given message.
func RetriableError(format string, args ...any) Outcome {
	return Outcome{Kind: KindRetriableError, Message: fmt.Sprintf(format, args...)}
}

// FatalError returns a fatal outcome with the given message.
func FatalError(format string, args ...any) Outcome {
	return Outcome{Kind: KindFatalError, Message: fmt.Sprintf(format, args...)}
}

// IsSuccess reports whether the attempt succeeded.
func (o Outcome) IsSuccess() bool {
	return o.Kind == KindSuccess
}

// IsRetriable reports whether the caller may re-attempt the operation.
func (o Outcome) IsRetriable() bool {
	return o.Kind == KindRetriableError
}

func (o Outcome) String() string {
	if o.Message == "" {
		return string(o.Kind)
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Message)
}
