// Package doctor runs preflight checks on an rcopy setup: the local rsync,
// the ssh client and, in strict mode, the rsync on every configured host.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jvs-project/rcopy/internal/version"
	"github.com/jvs-project/rcopy/pkg/config"
	"github.com/jvs-project/rcopy/pkg/model"
)

// Severity levels.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Version  string    `json:"rsync_version,omitempty"`
	Findings []Finding `json:"findings"`
}

// Prober is the part of the copier the doctor needs.
type Prober interface {
	Version(ctx context.Context) (model.ToolVersion, error)
	Minimum() model.ToolVersion
	CheckRemotes(ctx context.Context, hosts []string, rsyncOnHost map[string]string) ([]version.RemoteResult, error)
}

// Doctor performs setup health checks.
type Doctor struct {
	prober    Prober
	cfg       *config.Config
	configDir string
}

// NewDoctor creates a new doctor. configDir is scanned for leftovers of
// interrupted config writes; it may be empty.
func NewDoctor(prober Prober, cfg *config.Config, configDir string) *Doctor {
	return &Doctor{prober: prober, cfg: cfg, configDir: configDir}
}

// Check runs all diagnostic checks. strict also contacts every configured
// remote host.
func (d *Doctor) Check(ctx context.Context, strict bool) (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}

	d.checkRsync(ctx, result)
	d.checkSSH(result)
	if strict {
		if err := d.checkRemotes(ctx, result); err != nil {
			return nil, err
		}
	}
	d.checkOrphanTmp(result)

	return result, nil
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == SeverityCritical || f.Severity == SeverityError {
		r.Healthy = false
	}
}

func (d *Doctor) checkRsync(ctx context.Context, result *Result) {
	exe := d.cfg.RsyncExecutable
	v, err := d.prober.Version(ctx)
	if err != nil {
		desc := fmt.Sprintf("rsync executable '%s' is invalid: %v", exe, err)
		if !version.ExecutableExists(exe) {
			desc = fmt.Sprintf("rsync executable '%s' does not exist", exe)
		}
		result.add(Finding{Category: "rsync", Description: desc, Severity: SeverityCritical, Path: exe})
		return
	}
	result.Version = v.String()

	if err := version.CheckMinimum(exe, v, d.prober.Minimum()); err != nil {
		result.add(Finding{Category: "rsync", Description: err.Error(), Severity: SeverityCritical, Path: exe})
	}
	if v.PreRelease {
		result.add(Finding{
			Category:    "rsync",
			Description: fmt.Sprintf("rsync %s is a pre-release version; not recommended for production use", v),
			Severity:    SeverityWarning,
		})
	}
}

func (d *Doctor) checkSSH(result *Result) {
	fields := strings.Fields(d.cfg.SSHExecutable)
	if len(fields) == 0 {
		if len(d.cfg.RemoteHosts) > 0 {
			result.add(Finding{
				Category:    "ssh",
				Description: "remote hosts are configured but ssh_executable is empty",
				Severity:    SeverityError,
			})
		}
		return
	}
	// The configured command may carry options: check the program only.
	program := fields[0]
	if !version.ExecutableExists(program) {
		result.add(Finding{
			Category:    "ssh",
			Description: fmt.Sprintf("ssh executable '%s' does not exist", program),
			Severity:    SeverityError,
			Path:        program,
		})
	}
}

func (d *Doctor) checkRemotes(ctx context.Context, result *Result) error {
	hosts := d.cfg.Hosts()
	if len(hosts) == 0 || strings.TrimSpace(d.cfg.SSHExecutable) == "" {
		return nil
	}
	results, err := d.prober.CheckRemotes(ctx, hosts, d.cfg.RemoteRsync())
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			result.add(Finding{
				Category:    "remote",
				Description: fmt.Sprintf("host %s: %v", r.Host, r.Err),
				Severity:    SeverityError,
			})
		}
	}
	return nil
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	if d.configDir == "" {
		return
	}
	entries, err := os.ReadDir(d.configDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".rcopy-tmp-") {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", e.Name()),
				Severity:    SeverityInfo,
				Path:        filepath.Join(d.configDir, e.Name()),
			})
		}
	}
}
