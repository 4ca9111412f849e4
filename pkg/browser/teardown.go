package browser

import "time"

// procEntry is one row of the process table.
type procEntry struct {
	PID   int
	PPID  int
	PGID  int
	State byte
}

// descendants returns every process below root in table, parents before
// their children. root itself is not included.
func descendants(table []procEntry, root int) []int {
	children := make(map[int][]int, len(table))
	for _, p := range table {
		if p.PID == p.PPID {
			continue
		}
		children[p.PPID] = append(children[p.PPID], p.PID)
	}

	var out []int
	seen := map[int]bool{root: true}
	queue := []int{root}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		for _, c := range children[pid] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

// groupMembers returns the live processes of process group pgid.
func groupMembers(table []procEntry, pgid int) []int {
	var out []int
	for _, p := range table {
		if p.PGID == pgid && p.State != 'Z' && p.State != 'X' {
			out = append(out, p.PID)
		}
	}
	return out
}

// waitGone polls until none of pids is alive or grace elapses, and returns
// the survivors.
func waitGone(pids []int, grace, poll time.Duration, alive func(int) bool) []int {
	deadline := time.Now().Add(grace)
	for {
		var survivors []int
		for _, pid := range pids {
			if alive(pid) {
				survivors = append(survivors, pid)
			}
		}
		if len(survivors) == 0 || !time.Now().Before(deadline) {
			return survivors
		}
		pids = survivors
		time.Sleep(poll)
	}
}
