// Package command assembles rsync and ssh argument vectors.
package command

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"github.com/jvs-project/rcopy/pkg/errclass"
	"github.com/jvs-project/rcopy/pkg/model"
	"github.com/jvs-project/rcopy/pkg/pathutil"
)

// BatchModeOption keeps ssh from ever prompting for credentials. A prompt
// would stall the subprocess in a way that looks like a dead link.
const BatchModeOption = "-oBatchMode=yes"

// Builder builds command lines for one ToolInvocation.
type Builder struct {
	inv model.ToolInvocation
	tr  pathutil.Translator
}

// NewBuilder creates a Builder. An invocation without StandardFlags uses
// model.DefaultStandardFlags.
func NewBuilder(inv model.ToolInvocation, tr pathutil.Translator) *Builder {
	if len(inv.StandardFlags) == 0 {
		inv.StandardFlags = model.DefaultStandardFlags
	}
	return &Builder{inv: inv, tr: tr}
}

// Invocation returns the invocation the builder was created with.
func (b *Builder) Invocation() model.ToolInvocation {
	return b.inv
}

// HasSSH reports whether an ssh executable is configured.
func (b *Builder) HasSSH() bool {
	return b.inv.SSHExecutable != ""
}

// SSHArgument is the value passed to rsync's --rsh option.
func (b *Builder) SSHArgument() string {
	return b.tr.ToToolPath(b.inv.SSHExecutable, false) + " " + BatchModeOption
}

// SSHArgv is the ssh command line for running commands on a remote host
// directly. The configured ssh executable may carry its own options.
func (b *Builder) SSHArgv() ([]string, error) {
	if !b.HasSSH() {
		return nil, errclass.ErrSSHRequired.WithMessage("no ssh executable configured")
	}
	var argv []string
	if b.tr.Family() == model.PlatformWindows {
		// shlex would treat the backslashes of a Windows path as escapes.
		argv = []string{b.inv.SSHExecutable}
	} else {
		parts, err := shlex.Split(b.inv.SSHExecutable)
		if err != nil || len(parts) == 0 {
			return nil, errclass.ErrConfigInvalid.WithMessagef("cannot parse ssh command %q", b.inv.SSHExecutable)
		}
		argv = parts
	}
	return append(argv, BatchModeOption), nil
}

// ValidateRequest enforces the request invariants before any process is
// started: rsync is run from one side and can address one remote peer.
func ValidateRequest(req model.CopyRequest) error {
	if req.SourceHost != "" && req.DestinationHost != "" {
		return errclass.ErrBothRemote.WithMessagef(
			"cannot copy from host %s to host %s in one call", req.SourceHost, req.DestinationHost)
	}
	if req.SourcePath == "" || req.DestinationDir == "" {
		return errclass.ErrConfigInvalid.WithMessage("source path and destination directory are required")
	}
	for _, h := range []string{req.SourceHost, req.DestinationHost} {
		if h == "" {
			continue
		}
		if err := pathutil.ValidateHost(h); err != nil {
			return err
		}
	}
	if req.Module != "" {
		if !req.IsRemote() {
			return errclass.ErrHostRequired.WithMessagef("module %q needs a remote host", req.Module)
		}
		if strings.ContainsAny(req.Module, "/: \t\n") {
			return errclass.ErrConfigInvalid.WithMessagef("invalid rsync module name %q", req.Module)
		}
	}
	return nil
}

// BuildCopy builds the mutable copy command for req. remoteRsyncPath, if
// not empty, is passed as --rsync-path for the remote side. A request
// naming a Module talks to the rsync daemon directly and skips ssh.
func (b *Builder) BuildCopy(req model.CopyRequest, remoteRsyncPath string) ([]string, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	argv := []string{b.inv.Executable}
	argv = append(argv, b.inv.StandardFlags...)
	switch {
	case req.Module != "":
		if b.inv.PasswordFile != "" {
			argv = append(argv, "--password-file="+b.tr.ToToolPath(b.inv.PasswordFile, false))
		}
	case req.IsRemote() && b.HasSSH():
		argv = append(argv, "--rsh", b.SSHArgument())
		if remoteRsyncPath != "" {
			argv = append(argv, "--rsync-path", remoteRsyncPath)
		}
	}
	argv = append(argv, b.inv.ExtraFlags...)
	return append(argv,
		b.address(req.SourceHost, req.Module, req.SourcePath, req.Content),
		b.address(req.DestinationHost, req.Module, req.DestinationDir, true),
	), nil
}

func (b *Builder) address(host, module, p string, isDir bool) string {
	if host != "" && module != "" {
		return b.tr.ModuleAddressOf(host, module, p, isDir)
	}
	return b.tr.AddressOf(host, p, isDir)
}

// BuildProbe builds a listing command for a remote directory. It transfers
// nothing; its exit status says whether the directory is reachable.
func (b *Builder) BuildProbe(destinationDir, host string) ([]string, error) {
	if host == "" {
		return nil, errclass.ErrHostRequired.WithMessage("probe needs a destination host")
	}
	if err := pathutil.ValidateHost(host); err != nil {
		return nil, err
	}
	if !b.HasSSH() {
		return nil, errclass.ErrSSHRequired.WithMessagef("cannot probe host %s without ssh", host)
	}
	return []string{
		b.inv.Executable,
		"--rsh", b.SSHArgument(),
		b.tr.AddressOf(host, destinationDir, true),
	}, nil
}

// BuildImmutableCopy builds a copy of sourceDir into targetDir that
// hard-links every file against the source tree instead of copying it.
func (b *Builder) BuildImmutableCopy(sourceDir, targetDir string) ([]string, error) {
	if sourceDir == "" || targetDir == "" {
		return nil, errclass.ErrConfigInvalid.WithMessage("source and target directories are required")
	}
	src, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, err
	}
	dst, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, err
	}
	return []string{
		b.inv.Executable,
		"--archive",
		"--link-dest=" + b.tr.ToToolPath(src, false),
		b.tr.ToToolPath(src, true),
		b.tr.ToToolPath(dst, false),
	}, nil
}

// BuildRemoteRemove builds an ssh command that recursively removes the
// entry name directly inside dir on host. name must be a single path
// component.
func (b *Builder) BuildRemoteRemove(host, dir, name string) ([]string, error) {
	if err := pathutil.ValidateHost(host); err != nil {
		return nil, err
	}
	if dir == "" || !validEntryName(name) {
		return nil, errclass.ErrConfigInvalid.WithMessagef("refusing to remove %q in %q on %s", name, dir, host)
	}
	target := path.Join(dir, name)
	if path.Dir(target) != path.Clean(dir) {
		return nil, errclass.ErrConfigInvalid.WithMessagef("refusing to remove %q: not inside %q", target, dir)
	}
	argv, err := b.SSHArgv()
	if err != nil {
		return nil, err
	}
	return append(argv, "-T", host, "rm -rf -- "+ShellQuote(target)), nil
}

// EntryName returns the name of the entry rsync creates inside the
// destination directory when copying sourcePath (in forward-slash form).
// It returns "" when rsync copies into the destination directory itself:
// a trailing slash, a "." or ".." last component, or the root.
func EntryName(sourcePath string) string {
	if sourcePath == "" || strings.HasSuffix(sourcePath, "/") {
		return ""
	}
	name := path.Base(sourcePath)
	if !validEntryName(name) {
		return ""
	}
	return name
}

func validEntryName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

// ShellQuote quotes s for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
