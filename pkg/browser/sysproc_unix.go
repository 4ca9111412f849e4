//go:build unix

package browser

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts the browser in its own process group so the whole
// group can be signalled on teardown.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
