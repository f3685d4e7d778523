package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvs-project/rcopy/pkg/color"
	"github.com/jvs-project/rcopy/pkg/config"
	"github.com/jvs-project/rcopy/pkg/errclass"
)

func executeCommand(args ...string) (stdout string, err error) {
	// Capture os.Stdout since commands print with fmt.Printf directly.
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs(args)
	err = rootCmd.Execute()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), err
}

// resetFlags restores every package-level flag variable; cobra keeps flag
// values between Execute calls.
func resetFlags(t *testing.T) {
	t.Helper()
	jsonOutput, noColor, logLevel, metricsFile = false, false, "", ""
	configPath = config.DefaultFileName
	copySrcHost, copyDstHost, copyContent, copyImmutable, copyName, copyModule = "", "", false, false, "", ""
	existsHost = ""
	checkRemote, doctorStrict, configInitForce = false, false, false
	color.Disable()
}

// setup writes a config file pointing at a fake rsync that answers
// --version with version and otherwise runs body.
func setup(t *testing.T, version, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are POSIX shell scripts")
	}
	resetFlags(t)
	dir := t.TempDir()
	rsync := filepath.Join(dir, "rsync")
	script := fmt.Sprintf("#!/bin/sh\nif [ \"$1\" = \"--version\" ]; then echo \"rsync  version %s  protocol version 31\"; exit 0; fi\n%s\n", version, body)
	require.NoError(t, os.WriteFile(rsync, []byte(script), 0755))

	cfg := config.Default()
	cfg.RsyncExecutable = rsync
	cfg.SSHExecutable = "sh"
	cfg.Logging.Level = "error"
	configPath = filepath.Join(dir, "rcopy.yaml")
	require.NoError(t, config.Save(configPath, cfg))
	return dir
}

func TestRootCommand_Help(t *testing.T) {
	resetFlags(t)
	stdout, err := executeCommand("--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "retriable error")
}

func TestVersionCommand(t *testing.T) {
	resetFlags(t)
	stdout, err := executeCommand("version")
	require.NoError(t, err)
	assert.Equal(t, "rcopy dev\n", stdout)

	stdout, err = executeCommand("--json", "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"version": "dev"`)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, exitCode(nil))
	assert.Equal(t, ExitFatal, exitCode(errors.New("boom")))
	assert.Equal(t, ExitRetriable, exitCode(withCode(ExitRetriable, nil)))
	assert.Equal(t, ExitFatal, exitCode(fmt.Errorf("wrapped: %w", withCode(ExitFatal, nil))))
}

func TestCopyCommand_Success(t *testing.T) {
	dir := setup(t, "3.2.7", "exit 0")
	src := filepath.Join(dir, "run1")

	stdout, err := executeCommand("--config", configPath, "copy", src, filepath.Join(dir, "dst"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Copied "+src)
}

func TestCopyCommand_ExitCodes(t *testing.T) {
	tests := []struct {
		body string
		code int
		kind string
	}{
		{"exit 23", ExitRetriable, "retriable_error"},
		{"exit 255", ExitRetriable, "retriable_error"},
		{"exit 2", ExitFatal, "fatal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			dir := setup(t, "3.2.7", tt.body)

			stdout, err := executeCommand("--config", configPath, "--json", "copy", filepath.Join(dir, "run1"), "incoming", "--dst-host", "store1")
			assert.Equal(t, tt.code, exitCode(err))
			assert.Contains(t, stdout, `"kind": "`+tt.kind+`"`)
			assert.Contains(t, stdout, `"destination": "store1:incoming"`)
		})
	}
}

func TestCopyCommand_DaemonModule(t *testing.T) {
	dir := setup(t, "3.2.7", `printf '%s\n' "$@" > "$(dirname "$0")/args"`)
	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Set("password_file", "/etc/rcopy/rsync.secret"))
	require.NoError(t, config.Save(configPath, cfg))

	stdout, err := executeCommand("--config", configPath, "--json", "copy", filepath.Join(dir, "run1"), "nightly",
		"--dst-host", "store1", "--module", "incoming")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"destination": "store1::incoming/nightly"`)

	data, err := os.ReadFile(filepath.Join(dir, "args"))
	require.NoError(t, err)
	args := string(data)
	assert.Contains(t, args, "--password-file=/etc/rcopy/rsync.secret\n")
	assert.Contains(t, args, "store1::incoming/nightly/\n")
	assert.NotContains(t, args, "--rsh")
}

func TestCopyCommand_TooOldRsync(t *testing.T) {
	dir := setup(t, "2.5.9", "exit 0")

	_, err := executeCommand("--config", configPath, "copy", filepath.Join(dir, "run1"), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrConfigurationFailure))
	assert.Equal(t, ExitFatal, exitCode(err))
}

func TestCopyCommand_ImmutableRejectsHosts(t *testing.T) {
	dir := setup(t, "3.2.7", "exit 0")

	_, err := executeCommand("--config", configPath, "copy", "--immutable", "--dst-host", "store1", filepath.Join(dir, "run1"), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--immutable")
}

func TestCopyCommand_WritesMetrics(t *testing.T) {
	dir := setup(t, "3.2.7", "exit 0")
	metricsPath := filepath.Join(dir, "textfile", "rcopy.prom")

	_, err := executeCommand("--config", configPath, "--metrics-file", metricsPath, "copy", filepath.Join(dir, "run1"), dir)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `rcopy_operations_total{kind="success",op="copy"} 1`)
}

func TestExistsCommand(t *testing.T) {
	setup(t, "3.2.7", "exit 0")
	stdout, err := executeCommand("--config", configPath, "exists", "incoming", "--host", "store1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "store1:incoming exists")

	setup(t, "3.2.7", "exit 23")
	stdout, err = executeCommand("--config", configPath, "--json", "exists", "incoming", "--host", "store1")
	assert.Equal(t, ExitFatal, exitCode(err))
	assert.Contains(t, stdout, `"exists": false`)
}

func TestCheckCommand(t *testing.T) {
	setup(t, "3.2.7", "exit 0")
	stdout, err := executeCommand("--config", configPath, "check")
	require.NoError(t, err)
	assert.Contains(t, stdout, "rsync 3.2.7")
	assert.Contains(t, stdout, "minimum 2.6.0")
}

func TestDoctorCommand(t *testing.T) {
	setup(t, "3.2.7", "exit 0")
	stdout, err := executeCommand("--config", configPath, "doctor")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Setup is healthy (rsync 3.2.7)")

	setup(t, "2.5.9", "exit 0")
	stdout, err = executeCommand("--config", configPath, "doctor")
	assert.Equal(t, ExitFatal, exitCode(err))
	assert.Contains(t, stdout, "too old")
}

func TestCodesCommand(t *testing.T) {
	resetFlags(t)
	stdout, err := executeCommand("codes")
	require.NoError(t, err)
	assert.Contains(t, stdout, " 23  retriable_error  partial transfer due to error")
	assert.Contains(t, stdout, "  2  fatal_error  protocol incompatibility")

	resetFlags(t)
	stdout, err = executeCommand("--json", "codes", "255")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"code": 255`)
	assert.Contains(t, stdout, `"kind": "retriable_error"`)
	assert.NotContains(t, stdout, `"code": 23`)

	resetFlags(t)
	_, err = executeCommand("codes", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "treated as fatal")

	_, err = executeCommand("codes", "many")
	require.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	resetFlags(t)
	configPath = filepath.Join(t.TempDir(), "rcopy.yaml")

	stdout, err := executeCommand("--config", configPath, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote default configuration")

	_, err = executeCommand("--config", configPath, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = executeCommand("--config", configPath, "config", "set", "probe_timeout", "10s")
	require.NoError(t, err)

	stdout, err = executeCommand("--config", configPath, "config", "get", "probe_timeout")
	require.NoError(t, err)
	assert.Equal(t, "10s\n", stdout)

	stdout, err = executeCommand("--config", configPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "probe_timeout: 10s")

	_, err = executeCommand("--config", configPath, "config", "set", "probe_timeout", "soon")
	require.Error(t, err)
}

func TestConfigCommand_UnknownKeySuggests(t *testing.T) {
	resetFlags(t)
	configPath = filepath.Join(t.TempDir(), "rcopy.yaml")

	_, err := executeCommand("--config", configPath, "config", "get", "probe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Did you mean: probe_timeout?")

	_, err = executeCommand("--config", configPath, "config", "get", "nothing-like-it")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rcopy config --help")
}
