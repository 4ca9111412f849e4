package worklist

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrGroups is returned when a split is asked for fewer than one group or a
// chunk size below one.
var ErrGroups = errors.New("worklist: groups and chunk size must be positive")

// Split deals entries into n groups, chunkSize consecutive entries at a time,
// cycling through the groups. Concatenating the groups yields a permutation
// of entries. Groups that receive no chunk are omitted.
func Split(entries []string, n, chunkSize int) ([][]string, error) {
	if n < 1 || chunkSize < 1 {
		return nil, ErrGroups
	}
	groups := make([][]string, n)
	g := 0
	for i := 0; i < len(entries); i += chunkSize {
		end := min(i+chunkSize, len(entries))
		groups[g] = append(groups[g], entries[i:end]...)
		g = (g + 1) % n
	}
	for len(groups) > 0 && len(groups[len(groups)-1]) == 0 {
		groups = groups[:len(groups)-1]
	}
	return groups, nil
}

// ReadEntries reads the domain column of every non-blank line in path,
// without scheme or host normalization.
func ReadEntries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("worklist: %w", err)
	}
	defer f.Close()

	var entries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, Entry(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("worklist: %w", err)
	}
	return entries, nil
}

// WriteGroups writes group i to dir/<prefix><i+1>.csv, two digits wide, one
// entry per line. It returns the written paths in group order.
func WriteGroups(dir, prefix string, groups [][]string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("worklist: %w", err)
	}
	paths := make([]string, 0, len(groups))
	for i, group := range groups {
		path := filepath.Join(dir, fmt.Sprintf("%s%02d.csv", prefix, i+1))
		data := strings.Join(group, "\n") + "\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			return paths, fmt.Errorf("worklist: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
