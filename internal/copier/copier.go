// Package copier is the public face of rcopy: it copies files and directory
// trees with rsync and reports each attempt as a retry-aware Outcome.
//
// A Copier runs one operation at a time. Terminate may be called from any
// goroutine while Copy or Exists is blocked. Run concurrent copies on
// separate Copier instances.
package copier

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jvs-project/rcopy/internal/command"
	"github.com/jvs-project/rcopy/internal/exitcode"
	"github.com/jvs-project/rcopy/internal/process"
	"github.com/jvs-project/rcopy/internal/version"
	"github.com/jvs-project/rcopy/pkg/config"
	"github.com/jvs-project/rcopy/pkg/errclass"
	"github.com/jvs-project/rcopy/pkg/fsutil"
	"github.com/jvs-project/rcopy/pkg/logging"
	"github.com/jvs-project/rcopy/pkg/metrics"
	"github.com/jvs-project/rcopy/pkg/model"
	"github.com/jvs-project/rcopy/pkg/pathutil"
)

// Options configures a Copier. Only Invocation.Executable is required.
type Options struct {
	Invocation     model.ToolInvocation
	ProbeDeadline  time.Duration
	VersionTimeout time.Duration
	MinimumVersion model.ToolVersion
	Translator     *pathutil.Translator
	Logger         *logging.Logger
	Metrics        *metrics.Registry

	// RemoteRsync maps host names to the rsync binary to use there.
	RemoteRsync map[string]string
}

// Copier drives rsync for copies, probes and version checks.
type Copier struct {
	builder       *command.Builder
	controller    *process.Controller
	negotiator    *version.Negotiator
	tr            pathutil.Translator
	probeDeadline time.Duration
	minimum       model.ToolVersion
	logger        *logging.Logger
	metrics       *metrics.Registry

	configured map[string]string

	mu      sync.RWMutex
	remotes map[string]version.RemoteTool
}

// New creates a Copier.
func New(opts Options) (*Copier, error) {
	if opts.Invocation.Executable == "" {
		return nil, errclass.ErrConfigInvalid.WithMessage("rsync executable must be set")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	tr := pathutil.NewTranslator()
	if opts.Translator != nil {
		tr = *opts.Translator
	}
	probeDeadline := opts.ProbeDeadline
	if probeDeadline <= 0 {
		probeDeadline = process.DefaultProbeDeadline
	}
	minimum := opts.MinimumVersion
	if minimum == (model.ToolVersion{}) {
		minimum = version.Minimum
	}

	negotiator := version.NewNegotiator(logger)
	if opts.VersionTimeout > 0 {
		negotiator.Timeout = opts.VersionTimeout
	}

	return &Copier{
		builder:       command.NewBuilder(opts.Invocation, tr),
		controller:    process.NewController(logger),
		negotiator:    negotiator,
		tr:            tr,
		probeDeadline: probeDeadline,
		minimum:       minimum,
		logger:        logger,
		metrics:       opts.Metrics,
		configured:    opts.RemoteRsync,
		remotes:       make(map[string]version.RemoteTool),
	}, nil
}

// FromConfig creates a Copier from a loaded configuration.
func FromConfig(cfg *config.Config, logger *logging.Logger, reg *metrics.Registry) (*Copier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	flags, err := cfg.Flags()
	if err != nil {
		return nil, err
	}
	probeDeadline, err := cfg.ProbeDeadline()
	if err != nil {
		return nil, err
	}
	versionTimeout, err := cfg.VersionDeadline()
	if err != nil {
		return nil, err
	}
	var minimum model.ToolVersion
	if cfg.MinimumVersion != "" {
		minimum, err = version.ParseVersion(cfg.MinimumVersion)
		if err != nil {
			return nil, errclass.ErrConfigInvalid.WithMessagef("minimum_version: %v", err)
		}
	}
	return New(Options{
		Invocation: model.ToolInvocation{
			Executable:            cfg.RsyncExecutable,
			SSHExecutable:         cfg.SSHExecutable,
			PasswordFile:          cfg.PasswordFile,
			ExtraFlags:            flags,
			DeleteBeforeOverwrite: cfg.DeleteBeforeOverwrite,
		},
		ProbeDeadline:  probeDeadline,
		VersionTimeout: versionTimeout,
		MinimumVersion: minimum,
		RemoteRsync:    cfg.RemoteRsync(),
		Logger:         logger,
		Metrics:        reg,
	})
}

// Copy copies req.SourcePath into req.DestinationDir. It never returns an
// error: every failure, including rsync not starting, becomes an Outcome.
func (c *Copier) Copy(ctx context.Context, req model.CopyRequest) model.Outcome {
	start := time.Now()
	log := c.logger.WithFields(map[string]any{
		"op":          string(model.OperationCopy),
		"op_id":       uuid.NewString(),
		"source":      joinHost(req.SourceHost, req.SourcePath),
		"destination": joinHost(req.DestinationHost, req.DestinationDir),
	})

	outcome := c.copy(ctx, req, log)
	c.finish(log, model.OperationCopy, outcome, start)
	return outcome
}

// CopyContent copies the entries of sourcePath rather than the directory.
func (c *Copier) CopyContent(ctx context.Context, req model.CopyRequest) model.Outcome {
	req.Content = true
	return c.Copy(ctx, req)
}

func (c *Copier) copy(ctx context.Context, req model.CopyRequest, log *logging.Logger) model.Outcome {
	argv, err := c.builder.BuildCopy(req, c.remoteRsync(req.RemoteHost()))
	if err != nil {
		log.ErrorErr("invalid copy request", err)
		return model.FatalError("invalid copy request: %v", err)
	}

	if c.builder.Invocation().DeleteBeforeOverwrite && !req.Content {
		if outcome := c.removeExisting(ctx, req, log); !outcome.IsSuccess() {
			return outcome
		}
	}

	return c.run(ctx, argv, 0, log)
}

// removeExisting deletes the entry a copy of req would overwrite. Nothing
// is removed when rsync copies into the destination directory itself.
func (c *Copier) removeExisting(ctx context.Context, req model.CopyRequest, log *logging.Logger) model.Outcome {
	src := req.SourcePath
	if req.SourceHost == "" {
		src = filepath.ToSlash(src)
	}
	name := command.EntryName(src)
	if name == "" {
		log.Debug("source is copied into the destination directory, nothing to remove")
		return model.Success
	}
	if req.DestinationHost != "" && req.Module != "" {
		// An rsync daemon offers no shell to remove through.
		log.Warn("cannot remove existing destination inside an rsync module, copying over it",
			map[string]any{"module": req.Module, "name": name})
		return model.Success
	}

	if req.DestinationHost == "" {
		dir := filepath.Clean(req.DestinationDir)
		target := filepath.Join(dir, name)
		if filepath.Dir(target) != dir {
			return model.FatalError("refusing to remove '%s': not inside '%s'", target, dir)
		}
		removed, err := fsutil.RemoveIfExists(target)
		if err != nil {
			log.ErrorErr("cannot remove existing destination", err, map[string]any{"path": target})
			return model.RetriableError("cannot remove existing destination '%s': %v", target, err)
		}
		if removed {
			log.Info("removed existing destination before copy", map[string]any{"path": target})
		}
		return model.Success
	}

	dir := filepath.ToSlash(req.DestinationDir)
	argv, err := c.builder.BuildRemoteRemove(req.DestinationHost, dir, name)
	if err != nil {
		log.ErrorErr("cannot build remote removal", err)
		return model.FatalError("cannot remove '%s' in '%s' on %s: %v", name, dir, req.DestinationHost, err)
	}
	target := path.Join(dir, name)
	res, err := c.controller.RunWithDeadline(ctx, argv, c.probeDeadline)
	switch {
	case err != nil:
		return model.FatalError("cannot run %s: %v", argv[0], err)
	case res.Terminated || res.Interrupted:
		return exitcode.ClassifyResult(res)
	case res.ExitCode != 0 || res.TimedOut:
		return model.RetriableError("cannot remove '%s' on %s (exit code %d)", target, req.DestinationHost, res.ExitCode)
	}
	log.Info("removed existing remote destination before copy", map[string]any{"path": target})
	return model.Success
}

// CopyImmutably copies sourceDir to destinationDir/targetName (the source
// name if targetName is empty), hard-linking every file against the source.
// The target must not exist yet.
func (c *Copier) CopyImmutably(ctx context.Context, sourceDir, destinationDir, targetName string) model.Outcome {
	start := time.Now()
	if targetName == "" {
		targetName = filepath.Base(sourceDir)
	}
	target := filepath.Join(destinationDir, targetName)
	log := c.logger.WithFields(map[string]any{
		"op":          string(model.OperationCopyImmutable),
		"op_id":       uuid.NewString(),
		"source":      sourceDir,
		"destination": target,
	})

	outcome := func() model.Outcome {
		if fileExists(target) {
			return model.FatalError("target directory '%s' already exists", target)
		}
		argv, err := c.builder.BuildImmutableCopy(sourceDir, target)
		if err != nil {
			return model.FatalError("invalid immutable copy request: %v", err)
		}
		return c.run(ctx, argv, 0, log)
	}()
	c.finish(log, model.OperationCopyImmutable, outcome, start)
	return outcome
}

// Exists reports whether destinationDir on host can be listed. It needs a
// host and an ssh executable. A probe that cannot start, fails or outlives
// the probe deadline counts as "does not exist".
func (c *Copier) Exists(ctx context.Context, destinationDir, host string) bool {
	start := time.Now()
	log := c.logger.WithFields(map[string]any{
		"op":          string(model.OperationExists),
		"op_id":       uuid.NewString(),
		"destination": joinHost(host, destinationDir),
	})

	outcome := func() model.Outcome {
		argv, err := c.builder.BuildProbe(destinationDir, host)
		if err != nil {
			log.ErrorErr("invalid probe request", err)
			return model.FatalError("invalid probe request: %v", err)
		}
		return c.run(ctx, argv, c.probeDeadline, log)
	}()
	c.finish(log, model.OperationExists, outcome, start)
	return outcome.IsSuccess()
}

// Check verifies that rsync can be run and is recent enough. It is meant
// to abort startup: failures are ErrConfigurationFailure errors.
func (c *Copier) Check(ctx context.Context) error {
	start := time.Now()
	exe := c.builder.Invocation().Executable
	log := c.logger.WithFields(map[string]any{"op": string(model.OperationCheck), "executable": exe})
	log.Debug("testing rsync executable")

	v, err := c.negotiator.RequireAtLeast(ctx, exe, c.minimum)
	if err != nil {
		c.finish(log, model.OperationCheck, model.FatalError("%v", err), start)
		return err
	}

	log.Info("using rsync executable", map[string]any{"version": v.String()})
	if v.PreRelease {
		log.Warn("rsync executable is a pre-release version; not recommended for production use",
			map[string]any{"version": v.String()})
	}
	c.metrics.RecordOperation(model.OperationCheck, model.KindSuccess, time.Since(start))
	return nil
}

// Version probes the local rsync version without enforcing the minimum.
func (c *Copier) Version(ctx context.Context) (model.ToolVersion, error) {
	return c.negotiator.Probe(ctx, c.builder.Invocation().Executable)
}

// Minimum returns the oldest accepted rsync version.
func (c *Copier) Minimum() model.ToolVersion {
	return c.minimum
}

// CheckRemote verifies over ssh that host has a recent enough rsync and
// remembers its path for later copies. rsyncOnHost may be empty.
func (c *Copier) CheckRemote(ctx context.Context, host, rsyncOnHost string) bool {
	if _, ok := c.remoteTool(host); ok {
		return true
	}
	if rsyncOnHost == "" {
		rsyncOnHost = c.configured[host]
	}
	start := time.Now()
	log := c.logger.WithFields(map[string]any{"op": string(model.OperationCheckRemote), "host": host})

	sshArgv, err := c.builder.SSHArgv()
	if err != nil {
		log.ErrorErr("cannot check remote rsync", err)
		c.finish(log, model.OperationCheckRemote, model.FatalError("%v", err), start)
		return false
	}
	tool, err := c.negotiator.ProbeRemote(ctx, sshArgv, host, rsyncOnHost)
	if err == nil {
		err = version.CheckMinimum(tool.Executable, tool.Version, c.minimum)
	}
	ok := c.acceptRemote(log, version.RemoteResult{Host: host, Tool: tool, Err: err})
	kind := model.KindSuccess
	if !ok {
		kind = model.KindFatalError
	}
	c.metrics.RecordOperation(model.OperationCheckRemote, kind, time.Since(start))
	return ok
}

// CheckRemotes checks several hosts concurrently. Hosts that pass are
// remembered as in CheckRemote; failures are reported in the results.
func (c *Copier) CheckRemotes(ctx context.Context, hosts []string, rsyncOnHost map[string]string) ([]version.RemoteResult, error) {
	sshArgv, err := c.builder.SSHArgv()
	if err != nil {
		return nil, err
	}
	results, err := c.negotiator.ProbeRemotes(ctx, sshArgv, hosts, rsyncOnHost)
	for i := range results {
		r := &results[i]
		if r.Err == nil {
			r.Err = version.CheckMinimum(r.Tool.Executable, r.Tool.Version, c.minimum)
		}
		c.acceptRemote(c.logger.WithFields(map[string]any{"op": string(model.OperationCheckRemote), "host": r.Host}), *r)
	}
	return results, err
}

func (c *Copier) acceptRemote(log *logging.Logger, r version.RemoteResult) bool {
	if r.Err != nil {
		log.ErrorErr("remote rsync unusable", r.Err)
		return false
	}
	c.mu.Lock()
	c.remotes[r.Host] = r.Tool
	c.mu.Unlock()
	log.Info("using remote rsync executable", map[string]any{
		"executable": r.Tool.Executable,
		"version":    r.Tool.Version.String(),
	})
	return true
}

func (c *Copier) remoteTool(host string) (version.RemoteTool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.remotes[host]
	return t, ok
}

func (c *Copier) remoteRsync(host string) string {
	if host == "" {
		return ""
	}
	if t, ok := c.remoteTool(host); ok {
		return t.Executable
	}
	if exe := c.configured[host]; exe != "" {
		return exe
	}
	return c.builder.Invocation().RemoteRsyncPath
}

// Terminate kills the rsync process in flight, if any. It returns false
// when no operation is running.
func (c *Copier) Terminate() bool {
	killed := c.controller.Terminate()
	c.metrics.RecordTermination(killed)
	return killed
}

// InFlight reports whether an operation's process is currently running.
func (c *Copier) InFlight() bool {
	return c.controller.Running()
}

// run executes argv and classifies the result. deadline > 0 arms the
// watchdog.
func (c *Copier) run(ctx context.Context, argv []string, deadline time.Duration, log *logging.Logger) model.Outcome {
	var (
		res *process.Result
		err error
	)
	if deadline > 0 {
		res, err = c.controller.RunWithDeadline(ctx, argv, deadline)
	} else {
		res, err = c.controller.Run(ctx, argv)
	}
	if err != nil {
		return model.FatalError("cannot run %s: %v", argv[0], err)
	}

	outcome := exitcode.ClassifyResult(res)
	if !outcome.IsSuccess() && len(res.Output) > 0 {
		log.Warn("process output", map[string]any{
			"exit_code": res.ExitCode,
			"output":    strings.Join(res.Output, "\n"),
		})
	}
	return outcome
}

func (c *Copier) finish(log *logging.Logger, op model.OperationType, outcome model.Outcome, start time.Time) {
	d := time.Since(start)
	c.metrics.RecordOperation(op, outcome.Kind, d)
	fields := map[string]any{"kind": string(outcome.Kind), "duration": d.String()}
	switch outcome.Kind {
	case model.KindSuccess:
		log.Info("operation finished", fields)
	case model.KindRetriableError:
		fields["message"] = outcome.Message
		log.Warn("operation failed, retriable", fields)
	default:
		fields["message"] = outcome.Message
		log.Error("operation failed", fields)
	}
}

func joinHost(host, p string) string {
	if host == "" {
		return p
	}
	return host + ":" + p
}

func fileExists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}
