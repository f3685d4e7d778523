package version

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jvs-project/rcopy/pkg/errclass"
	"github.com/jvs-project/rcopy/pkg/model"
)

// maxParallelProbes bounds concurrent ssh sessions in ProbeRemotes.
const maxParallelProbes = 4

// RemoteTool is an rsync binary found on a remote host.
type RemoteTool struct {
	Host       string            `json:"host"`
	Executable string            `json:"executable"`
	Version    model.ToolVersion `json:"version"`
}

// RemoteResult pairs a remote probe with its failure, if any.
type RemoteResult struct {
	Host string
	Tool RemoteTool
	Err  error
}

// ProbeRemote asks host, over ssh, which rsync it has and which version it
// is. sshArgv is the ssh command line (executable plus options). When
// rsyncOnHost is empty the binary is located with `type -p rsync`.
func (n *Negotiator) ProbeRemote(ctx context.Context, sshArgv []string, host, rsyncOnHost string) (RemoteTool, error) {
	if len(sshArgv) == 0 {
		return RemoteTool{}, errclass.ErrSSHRequired.WithMessagef("cannot probe host %s without ssh", host)
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout())
	defer cancel()

	exe := rsyncOnHost
	if exe == "" {
		out, err := n.output(ctx, remoteArgv(sshArgv, host, "type -p rsync"))
		if err != nil {
			return RemoteTool{}, err
		}
		lines := nonEmptyLines(string(out))
		if len(lines) != 1 {
			n.logger.Warn("unexpected output locating remote rsync", map[string]any{"host": host, "output": string(out)})
			return RemoteTool{}, errclass.ErrToolNotFound.WithMessagef("no rsync found on host %s", host)
		}
		exe = lines[0]
	}

	out, err := n.output(ctx, remoteArgv(sshArgv, host, exe+" --version"))
	if err != nil {
		return RemoteTool{}, err
	}
	v, err := parseOutput(out)
	if err != nil {
		return RemoteTool{}, err
	}
	return RemoteTool{Host: host, Executable: exe, Version: v}, nil
}

// ProbeRemotes probes several hosts concurrently. Results are returned in
// the order of hosts; rsyncOnHost maps host names to known binaries.
func (n *Negotiator) ProbeRemotes(ctx context.Context, sshArgv []string, hosts []string, rsyncOnHost map[string]string) ([]RemoteResult, error) {
	results := make([]RemoteResult, len(hosts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelProbes)
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			tool, err := n.ProbeRemote(gctx, sshArgv, host, rsyncOnHost[host])
			results[i] = RemoteResult{Host: host, Tool: tool, Err: err}
			// Per-host failures are reported in results; only a cancelled
			// parent context aborts the whole batch.
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func remoteArgv(sshArgv []string, host, command string) []string {
	argv := make([]string, 0, len(sshArgv)+3)
	argv = append(argv, sshArgv...)
	return append(argv, "-T", host, command)
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
