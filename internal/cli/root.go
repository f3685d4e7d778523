// Package cli implements the rcopy command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jvs-project/rcopy/pkg/color"
	"github.com/jvs-project/rcopy/pkg/config"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFatal     = 1
	ExitRetriable = 75 // EX_TEMPFAIL
)

var (
	jsonOutput  bool
	noColor     bool
	configPath  string
	logLevel    string
	metricsFile string

	rootCmd = &cobra.Command{
		Use:   "rcopy",
		Short: "rcopy - retry-aware file copies over rsync",
		Long: `rcopy copies files and directory trees between local paths and remote
hosts by driving rsync over ssh. Every attempt ends in one of three outcomes:
success, a retriable error, or a fatal error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", config.DefaultFileName, "path to the configuration file")
	pf.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
	pf.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file on exit")
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// withCode attaches an exit code to err. A nil err reports no message.
func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitFatal
}

// Execute runs the root command and exits with its status.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			fmtErr("%v", err)
		}
	}
	os.Exit(exitCode(err))
}

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtErr(format string, args ...any) {
	prefix := "rcopy: "
	if color.Enabled() {
		prefix = color.Error("rcopy:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
