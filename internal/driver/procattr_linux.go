//go:build linux

package driver

import (
	"os/exec"
	"syscall"
)

// setProcAttr runs the driver in its own process group so the browsers it
// spawns can be killed together. Pdeathsig makes the kernel kill the driver
// if driverd dies without running its cleanup (SIGKILL, crash).
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// killProcessGroup sends SIGKILL to the entire process group for the given PID.
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// terminateProcessGroup sends SIGTERM to the entire process group for graceful shutdown.
func terminateProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
