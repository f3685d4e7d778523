// Package exitcode maps rsync process results to retry-aware outcomes.
package exitcode

import (
	"sort"

	"github.com/jvs-project/rcopy/internal/process"
	"github.com/jvs-project/rcopy/pkg/model"
)

// Entry describes one documented rsync exit code.
type Entry struct {
	Code        int        `json:"code"`
	Description string     `json:"description"`
	Kind        model.Kind `json:"kind"`
}

// table is rsync's documented exit codes (rsync(1), EXIT VALUES), plus 255
// which ssh returns when the transport itself fails.
var table = map[int]Entry{
	1:   {1, "syntax or usage error", model.KindFatalError},
	2:   {2, "protocol incompatibility", model.KindFatalError},
	3:   {3, "errors selecting input/output files, dirs", model.KindFatalError},
	4:   {4, "requested action not supported", model.KindFatalError},
	5:   {5, "error starting client-server protocol", model.KindRetriableError},
	6:   {6, "daemon unable to append to log-file", model.KindFatalError},
	10:  {10, "error in socket I/O", model.KindRetriableError},
	11:  {11, "error in file I/O", model.KindRetriableError},
	12:  {12, "error in rsync protocol data stream", model.KindRetriableError},
	13:  {13, "errors with program diagnostics", model.KindFatalError},
	14:  {14, "error in IPC code", model.KindRetriableError},
	20:  {20, "received SIGUSR1 or SIGINT", model.KindRetriableError},
	21:  {21, "some error returned by waitpid()", model.KindRetriableError},
	22:  {22, "error allocating core memory buffers", model.KindRetriableError},
	23:  {23, "partial transfer due to error", model.KindRetriableError},
	24:  {24, "partial transfer due to vanished source files", model.KindRetriableError},
	25:  {25, "the --max-delete limit stopped deletions", model.KindFatalError},
	30:  {30, "timeout in data send/receive", model.KindRetriableError},
	35:  {35, "timeout waiting for daemon connection", model.KindRetriableError},
	255: {255, "remote shell failed", model.KindRetriableError},
}

// Lookup returns the table entry for code.
func Lookup(code int) (Entry, bool) {
	e, ok := table[code]
	return e, ok
}

// Entries returns the table ordered by code.
func Entries() []Entry {
	out := make([]Entry, 0, len(table))
	for _, e := range table {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Classify maps an exit code to an outcome. A terminated process always
// yields model.Terminated: the exit code of a killed process is meaningless.
func Classify(code int, terminated bool) model.Outcome {
	if terminated {
		return model.Terminated
	}
	if code == 0 {
		return model.Success
	}
	e, ok := table[code]
	if !ok {
		return model.FatalError("rsync: unknown exit code %d", code)
	}
	if e.Kind == model.KindRetriableError {
		return model.RetriableError("rsync: %s (exit code %d)", e.Description, code)
	}
	return model.FatalError("rsync: %s (exit code %d)", e.Description, code)
}

// ClassifyResult classifies a finished process, taking into account how
// the controller stopped it.
func ClassifyResult(r *process.Result) model.Outcome {
	switch {
	case r.Terminated:
		return model.Terminated
	case r.Interrupted:
		return model.Interrupted
	case r.TimedOut:
		return model.TimedOut
	}
	return Classify(r.ExitCode, false)
}
