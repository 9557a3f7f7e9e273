//go:build unix

package render

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts the command in its own process group and makes
// cancellation SIGKILL the group rather than only the direct child.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
