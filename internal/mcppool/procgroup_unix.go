//go:build unix

package mcppool

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminateProcessGroup sends SIGTERM to the group led by cmd, then SIGKILL
// if members remain after grace.
func terminateProcessGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	if pgid <= 0 {
		return
	}

	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		// ESRCH: the group already exited.
		return
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if err := unix.Kill(-pgid, 0); errors.Is(err, unix.ESRCH) {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	unix.Kill(-pgid, unix.SIGKILL) //nolint:errcheck
}
