//go:build windows

package executor

import (
	"os/exec"
	"strconv"
)

func setProcGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the child and its descendants. taskkill /T
// walks the tree since windows has no unix-style process groups.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	_ = kill.Run()
	_ = cmd.Process.Kill()
}
