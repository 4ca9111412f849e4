//go:build unix

package browser

import (
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/warscan/warscan/pkg/duration"
)

// terminateTree stops the browser and everything it spawned.
//
// Descendants are suspended before they are asked to terminate and only
// resumed afterwards, so SIGTERM is the first thing each of them handles.
// Survivors of the grace period are killed. The parent follows the same
// terminate-then-kill pattern, and a final SIGKILL to the process group
// sweeps members that left the tree, such as orphans reparented to init.
func terminateTree(inst *Instance, grace time.Duration, logger *slog.Logger) {
	pid := inst.PID

	var children []int
	if table, err := listProcesses(); err != nil {
		logger.Warn("list browser processes", "pid", pid, "error", err)
	} else {
		children = descendants(table, pid)
	}

	if len(children) > 0 {
		signalAll(children, unix.SIGSTOP)
		signalAll(children, unix.SIGTERM)
		signalAll(children, unix.SIGCONT)
		if alive := waitGone(children, grace, duration.KillPoll, processAlive); len(alive) > 0 {
			logger.Debug("killing browser children", "pid", pid, "count", len(alive))
			signalAll(alive, unix.SIGKILL)
			waitGone(alive, grace, duration.KillPoll, processAlive)
		}
	}

	_ = unix.Kill(pid, unix.SIGTERM)
	if !waitExit(inst.done, grace) {
		logger.Debug("killing browser", "pid", pid)
		_ = unix.Kill(pid, unix.SIGKILL)
		waitExit(inst.done, grace)
	}

	// The browser led its own process group. A group id is not handed out
	// again while the group has members, so only a populated group is ours.
	if table, err := listProcesses(); err == nil && len(groupMembers(table, pid)) > 0 {
		logger.Debug("sweeping browser process group", "pgid", pid)
		_ = unix.Kill(-pid, unix.SIGKILL)
	}
}

func signalAll(pids []int, sig unix.Signal) {
	for _, pid := range pids {
		_ = unix.Kill(pid, sig)
	}
}
