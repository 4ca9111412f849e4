package browser

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var errBadStat = errors.New("browser: malformed /proc stat line")

// listProcesses reads the process table from /proc.
func listProcesses() ([]procEntry, error) {
	dirs, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	table := make([]procEntry, 0, len(dirs))
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(d.Name()); err != nil {
			continue
		}
		data, err := os.ReadFile("/proc/" + d.Name() + "/stat")
		if err != nil {
			// Exited while we were looking.
			continue
		}
		e, err := parseStat(string(data))
		if err != nil {
			continue
		}
		table = append(table, e)
	}
	return table, nil
}

// parseStat parses the leading fields of /proc/<pid>/stat. The command
// name is parenthesised and may itself contain spaces and parentheses.
func parseStat(line string) (procEntry, error) {
	open := strings.IndexByte(line, '(')
	end := strings.LastIndexByte(line, ')')
	if open < 0 || end < open {
		return procEntry{}, errBadStat
	}
	pid, err := strconv.Atoi(strings.TrimSpace(line[:open]))
	if err != nil {
		return procEntry{}, fmt.Errorf("%w: %w", errBadStat, err)
	}
	fields := strings.Fields(line[end+1:])
	if len(fields) < 3 || fields[0] == "" {
		return procEntry{}, errBadStat
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return procEntry{}, fmt.Errorf("%w: %w", errBadStat, err)
	}
	pgid, err := strconv.Atoi(fields[2])
	if err != nil {
		return procEntry{}, fmt.Errorf("%w: %w", errBadStat, err)
	}
	return procEntry{PID: pid, PPID: ppid, PGID: pgid, State: fields[0][0]}, nil
}

// processAlive treats zombies as gone: they hold no resources and are
// reaped by whoever owns them.
func processAlive(pid int) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	e, err := parseStat(string(data))
	if err != nil {
		return false
	}
	return e.State != 'Z' && e.State != 'X'
}
