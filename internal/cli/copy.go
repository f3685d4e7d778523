package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jvs-project/rcopy/pkg/color"
	"github.com/jvs-project/rcopy/pkg/model"
)

var (
	copySrcHost   string
	copyDstHost   string
	copyContent   bool
	copyImmutable bool
	copyName      string
	copyModule    string
)

var copyCmd = &cobra.Command{
	Use:   "copy <source> <destination-dir>",
	Short: "Copy a file or directory tree with rsync",
	Long: `Copy a file or directory tree into a destination directory.

At most one side may be remote. Remote sides are reached through the
configured ssh executable in batch mode, so authentication must not prompt.
With --module the remote side is an rsync daemon module instead, and the
remote path is relative to it; password_file supplies its password.

Exit status:
  0   the copy succeeded
  75  the copy failed but may succeed if retried
  1   the copy failed and retrying will not help

SIGINT and SIGTERM kill the running rsync; the copy then reports a
retriable "terminated" outcome.

Examples:
  rcopy copy ./run1 /backup
  rcopy copy ./run1 incoming --dst-host store1
  rcopy copy data/run1 ./restore --src-host store1
  rcopy copy --content ./run1 /backup/run1
  rcopy copy ./run1 nightly --dst-host store1 --module incoming
  rcopy copy --immutable --name run1-frozen ./run1 /archive`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if copyImmutable && (copySrcHost != "" || copyDstHost != "" || copyContent || copyModule != "") {
			return errors.New("--immutable copies are local and cannot be combined with --src-host, --dst-host, --module or --content")
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.copier.Check(cmd.Context()); err != nil {
			return err
		}

		req := model.CopyRequest{
			SourcePath:      args[0],
			SourceHost:      copySrcHost,
			DestinationDir:  args[1],
			DestinationHost: copyDstHost,
			Content:         copyContent,
			Module:          copyModule,
		}

		stop := terminateOnSignal(s)
		var outcome model.Outcome
		if copyImmutable {
			outcome = s.copier.CopyImmutably(cmd.Context(), req.SourcePath, req.DestinationDir, copyName)
		} else {
			outcome = s.copier.Copy(cmd.Context(), req)
		}
		stop()

		return reportOutcome(req, outcome)
	},
}

// terminateOnSignal kills the copier's process on SIGINT or SIGTERM until
// the returned function is called.
func terminateOnSignal(s *session) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigCh:
			s.logger.Warn("signal received, terminating rsync", map[string]any{"signal": sig.String()})
			s.copier.Terminate()
		case <-ctx.Done():
		}
	}()
	return func() {
		signal.Stop(sigCh)
		cancel()
		<-done
	}
}

type outcomeReport struct {
	Kind        model.Kind `json:"kind"`
	Message     string     `json:"message,omitempty"`
	Source      string     `json:"source"`
	Destination string     `json:"destination"`
}

func reportOutcome(req model.CopyRequest, outcome model.Outcome) error {
	code := ExitOK
	switch outcome.Kind {
	case model.KindRetriableError:
		code = ExitRetriable
	case model.KindFatalError:
		code = ExitFatal
	}

	if jsonOutput {
		if err := outputJSON(outcomeReport{
			Kind:        outcome.Kind,
			Message:     outcome.Message,
			Source:      address(req.SourceHost, req.Module, req.SourcePath),
			Destination: address(req.DestinationHost, req.Module, req.DestinationDir),
		}); err != nil {
			return err
		}
	} else if outcome.IsSuccess() {
		fmt.Printf("Copied %s to %s\n",
			address(req.SourceHost, req.Module, req.SourcePath), address(req.DestinationHost, req.Module, req.DestinationDir))
	} else {
		fmt.Fprintf(os.Stderr, "%s: %s\n", color.Kind(outcome.Kind), outcome.Message)
	}

	if code == ExitOK {
		return nil
	}
	return withCode(code, nil)
}

func address(host, module, path string) string {
	switch {
	case host == "":
		return path
	case module != "":
		return host + "::" + module + "/" + path
	}
	return host + ":" + path
}

func init() {
	f := copyCmd.Flags()
	f.StringVar(&copySrcHost, "src-host", "", "remote host holding the source")
	f.StringVar(&copyDstHost, "dst-host", "", "remote host holding the destination directory")
	f.BoolVar(&copyContent, "content", false, "copy the entries of the source directory, not the directory itself")
	f.BoolVar(&copyImmutable, "immutable", false, "hard-link every file against the source instead of copying it")
	f.StringVar(&copyName, "name", "", "target directory name for --immutable (default: source name)")
	f.StringVar(&copyModule, "module", "", "rsync daemon module on the remote host; skips ssh")
	rootCmd.AddCommand(copyCmd)
}
