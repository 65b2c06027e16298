//go:build !unix

package mcppool

import (
	"os/exec"
	"time"
)

func setProcessGroup(*exec.Cmd) {}

func terminateProcessGroup(cmd *exec.Cmd, _ time.Duration) {
	if cmd == nil || cmd.Process == nil || cmd.ProcessState != nil {
		return
	}
	cmd.Process.Kill() //nolint:errcheck
}
