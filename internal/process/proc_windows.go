//go:build windows

package process

import "os/exec"

// setProcessGroup is a no-op on Windows.
func setProcessGroup(_ *exec.Cmd) {}

func killProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
