// Package version queries rsync for its version and enforces a minimum.
package version

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jvs-project/rcopy/pkg/errclass"
	"github.com/jvs-project/rcopy/pkg/logging"
	"github.com/jvs-project/rcopy/pkg/model"
)

const (
	// DefaultTimeout bounds a single --version query.
	DefaultTimeout = 5 * time.Second

	productPrefix    = "rsync "
	preReleaseMarker = "pre"
)

// Minimum is the oldest rsync accepted by default.
var Minimum = model.ToolVersion{Major: 2, Minor: 6, Patch: 0, Raw: "2.6.0"}

// ParseVersion parses major.minor.patch with an optional "pre" suffix on patch.
func ParseVersion(s string) (model.ToolVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return model.ToolVersion{}, errclass.ErrVersionUnavailable.WithMessagef("version %q does not have three parts", s)
	}
	major, err := parseNumber(parts[0])
	if err != nil {
		return model.ToolVersion{}, errclass.ErrVersionUnavailable.WithMessagef("invalid major version in %q", s)
	}
	minor, err := parseNumber(parts[1])
	if err != nil {
		return model.ToolVersion{}, errclass.ErrVersionUnavailable.WithMessagef("invalid minor version in %q", s)
	}

	v := model.ToolVersion{Major: major, Minor: minor, Raw: s}
	patchPart := parts[2]
	if i := strings.Index(patchPart, preReleaseMarker); i > 0 {
		patchPart = patchPart[:i]
		v.PreRelease = true
	}
	v.Patch, err = parseNumber(patchPart)
	if err != nil {
		return model.ToolVersion{}, errclass.ErrVersionUnavailable.WithMessagef("invalid patch version in %q", s)
	}
	return v, nil
}

// parseNumber accepts only ASCII digits; strconv.Atoi alone would also
// take a leading sign.
func parseNumber(s string) (int, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(s)
}

// ParseVersionLine parses the first line of `rsync --version`, e.g.
// "rsync  version 3.2.7  protocol version 31".
func ParseVersionLine(line string) (model.ToolVersion, error) {
	if !strings.HasPrefix(line, productPrefix) {
		return model.ToolVersion{}, errclass.ErrVersionUnavailable.WithMessagef("not an rsync version line: %q", line)
	}
	tokens := strings.Fields(line)
	if len(tokens) < 3 {
		return model.ToolVersion{}, errclass.ErrVersionUnavailable.WithMessagef("truncated rsync version line: %q", line)
	}
	return ParseVersion(tokens[2])
}

// parseOutput parses the first line of a --version query.
func parseOutput(out []byte) (model.ToolVersion, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	if !sc.Scan() {
		return model.ToolVersion{}, errclass.ErrVersionUnavailable.WithMessage("no output from --version")
	}
	return ParseVersionLine(sc.Text())
}

// Negotiator probes rsync executables for their version.
type Negotiator struct {
	Timeout time.Duration
	logger  *logging.Logger
}

// NewNegotiator creates a Negotiator with the default timeout.
func NewNegotiator(logger *logging.Logger) *Negotiator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Negotiator{Timeout: DefaultTimeout, logger: logger}
}

func (n *Negotiator) timeout() time.Duration {
	if n.Timeout <= 0 {
		return DefaultTimeout
	}
	return n.Timeout
}

// Probe runs `<executable> --version`. It returns ErrToolNotFound if the
// executable cannot be run at all and ErrVersionUnavailable if it runs but
// does not report a parseable version in time.
func (n *Negotiator) Probe(ctx context.Context, executable string) (model.ToolVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout())
	defer cancel()

	out, err := n.output(ctx, []string{executable, "--version"})
	if err != nil {
		return model.ToolVersion{}, err
	}
	v, err := parseOutput(out)
	if err != nil {
		n.logger.Debug("unparseable version output", map[string]any{"executable": executable, "output": string(out)})
		return model.ToolVersion{}, err
	}
	return v, nil
}

func (n *Negotiator) output(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return nil, errclass.ErrVersionUnavailable.WithMessagef("%s timed out after %s", argv[0], n.timeout())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, errclass.ErrVersionUnavailable.WithMessagef("%s exited with code %d", argv[0], exitErr.ExitCode())
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return nil, errclass.ErrToolNotFound.WithMessagef("%s: %v", argv[0], err)
	}
	return nil, errclass.ErrVersionUnavailable.WithMessagef("%s: %v", argv[0], err)
}

// RequireAtLeast probes executable and fails with ErrConfigurationFailure if
// it is missing, reports no usable version, or is older than min.
func (n *Negotiator) RequireAtLeast(ctx context.Context, executable string, min model.ToolVersion) (model.ToolVersion, error) {
	v, err := n.Probe(ctx, executable)
	if err != nil {
		if !ExecutableExists(executable) {
			return model.ToolVersion{}, errclass.ErrConfigurationFailure.WithMessagef(
				"rsync executable '%s' does not exist", executable)
		}
		return model.ToolVersion{}, errclass.ErrConfigurationFailure.WithMessagef(
			"rsync executable '%s' is invalid: %v", executable, err)
	}
	if err := CheckMinimum(executable, v, min); err != nil {
		return v, err
	}
	return v, nil
}

// CheckMinimum fails with ErrConfigurationFailure when v orders below min.
func CheckMinimum(executable string, v, min model.ToolVersion) error {
	if !v.AtLeast(min.Major, min.Minor, min.Patch) {
		return errclass.ErrConfigurationFailure.WithMessagef(
			"rsync executable '%s' is too old (required: %s, found: %s)", executable, min, v)
	}
	return nil
}

// ExecutableExists reports whether path names an executable file, either
// directly or through PATH lookup for bare names.
func ExecutableExists(path string) bool {
	if path == "" {
		return false
	}
	if !strings.ContainsAny(path, `/\`) {
		_, err := exec.LookPath(path)
		return err == nil
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0 || strings.HasSuffix(strings.ToLower(path), ".exe")
}
