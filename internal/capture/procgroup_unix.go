//go:build unix

package capture

import (
	"os/exec"
	"syscall"
)

// killProcessGroup runs the child in its own process group and kills the
// whole group on cancellation, so compiler drivers do not leave cc1, as or
// ld behind.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
