//go:build !windows

package executor

import (
	"os"
	"os/exec"
	"syscall"
)

// setupProcessGroup puts the child in its own process group so an
// interrupt reaches the remote client and anything it spawned.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// interruptProcess delivers SIGINT to the child's process group. An
// interrupt, not a kill, so the remote client gets a chance to clean up.
func interruptProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGINT); err != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}
}

// decodeWaitStatus unpacks the raw termination status: the exit code,
// the terminating signal if any, and whether a core was produced.
func decodeWaitStatus(ee *exec.ExitError) (code int, signal int, core bool) {
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			return -1, int(ws.Signal()), ws.CoreDump()
		}
		return ws.ExitStatus(), 0, false
	}
	return ee.ExitCode(), 0, false
}
