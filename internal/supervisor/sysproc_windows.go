//go:build windows

package supervisor

import (
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// Windows has no SIGTERM; the grace period is skipped.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
