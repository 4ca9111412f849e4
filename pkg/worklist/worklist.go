// Package worklist loads the ordered list of scan targets and partitions
// large lists into per-host group files.
//
// Input lines are either bare domains ("example.com") or ranked CSV rows
// ("1,example.com"). Hosts are normalized to their ASCII form and prefixed
// with a scheme before the orchestrator sees them.
package worklist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"golang.org/x/net/idna"

	"github.com/warscan/warscan/pkg/defaults"
)

// ErrEmptyEntry is returned for a CSV row without a domain column.
var ErrEmptyEntry = errors.New("worklist: empty entry")

// LineError reports the 1-based input line an entry failed to parse on.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("worklist: line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Options selects a window of the input.
type Options struct {
	// StartLine is the 1-based line the window begins at. Values below 1
	// start at the first line.
	StartLine int

	// Limit caps the number of targets returned. Zero means no cap.
	Limit int

	// Scheme is prefixed to bare domains. Defaults to "http://".
	Scheme string
}

// LoadFile opens path and calls Load.
func LoadFile(path string, opts Options) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("worklist: %w", err)
	}
	defer f.Close()
	return Load(f, opts)
}

// Load reads targets from r. Blank lines and lines starting with '#' still
// count towards StartLine but produce no target.
func Load(r io.Reader, opts Options) ([]string, error) {
	if opts.Scheme == "" {
		opts.Scheme = defaults.URLScheme
	}

	var targets []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if opts.Limit > 0 && len(targets) == opts.Limit {
			break
		}
		if line < opts.StartLine {
			continue
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		target, err := Target(Entry(raw), opts.Scheme)
		if err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		targets = append(targets, target)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("worklist: %w", err)
	}
	return targets, nil
}

// Entry returns the domain column of a line: the second field of a CSV row,
// or the whole line.
func Entry(line string) string {
	fields := strings.Split(line, ",")
	if len(fields) > 1 {
		return strings.TrimSpace(fields[1])
	}
	return strings.TrimSpace(line)
}

// Target turns a domain (or an absolute URL) into a scan target with an
// ASCII host.
func Target(entry, scheme string) (string, error) {
	if entry == "" {
		return "", ErrEmptyEntry
	}
	if !strings.Contains(entry, "://") {
		entry = scheme + entry
	}
	u, err := url.Parse(entry)
	if err != nil {
		return "", err
	}
	host, err := idna.Punycode.ToASCII(strings.ToLower(u.Hostname()))
	if err != nil {
		return "", fmt.Errorf("host %q: %w", u.Hostname(), err)
	}
	if host == "" {
		return "", ErrEmptyEntry
	}
	if port := u.Port(); port != "" {
		host += ":" + port
	}
	u.Host = host
	return u.String(), nil
}
