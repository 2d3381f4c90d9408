//go:build !windows

package lifecycle

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in its own process group so
// termination signals can address the whole tree at once.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroupTerm requests cooperative shutdown of the child's process
// group.
func signalGroupTerm(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// signalGroupKill force-kills the child's process group.
func signalGroupKill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
