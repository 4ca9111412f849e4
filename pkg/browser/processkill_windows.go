package browser

import (
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// terminateTree kills the browser and its children with taskkill. Windows
// has no stop/continue signals, so the graceful pass is skipped.
func terminateTree(inst *Instance, grace time.Duration, logger *slog.Logger) {
	if err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(inst.PID)).Run(); err != nil {
		logger.Debug("taskkill failed", "pid", inst.PID, "error", err)
	}
	if !waitExit(inst.done, grace) {
		_ = inst.cmd.Process.Kill()
		waitExit(inst.done, grace)
	}
}
