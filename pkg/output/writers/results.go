package writers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/warscan/warscan/pkg/finding"
	"github.com/warscan/warscan/pkg/jsonutil"
	"github.com/warscan/warscan/pkg/output/dispatcher"
	"github.com/warscan/warscan/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*ResultFileWriter)(nil)

// ErrNoDirectory is returned when a result writer is built without a directory.
var ErrNoDirectory = errors.New("writers: result directory required")

// ResultFileWriter writes the PageResult carried by each page event to
// <dir>/<index>.json. Pages without a result are skipped.
type ResultFileWriter struct {
	dir    string
	indent string
}

// NewResultFileWriter creates dir if needed and returns a writer into it.
func NewResultFileWriter(dir string) (*ResultFileWriter, error) {
	if dir == "" {
		return nil, ErrNoDirectory
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("writers: %w", err)
	}
	return &ResultFileWriter{dir: dir, indent: "    "}, nil
}

// Path returns the file a result at index is written to.
func (rw *ResultFileWriter) Path(index int) string {
	return filepath.Join(rw.dir, strconv.Itoa(index)+".json")
}

// Write writes the page's result file, replacing any earlier one.
func (rw *ResultFileWriter) Write(event events.Event) error {
	page, ok := event.(*events.PageEvent)
	if !ok || page.Result == nil {
		return nil
	}
	return rw.WriteResult(page.Index, page.Result)
}

// WriteResult writes r to the file for index.
func (rw *ResultFileWriter) WriteResult(index int, r *finding.PageResult) error {
	data, err := jsonutil.MarshalIndent(r, "", rw.indent)
	if err != nil {
		return fmt.Errorf("writers: encode result %d: %w", index, err)
	}
	if err := os.WriteFile(rw.Path(index), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writers: %w", err)
	}
	return nil
}

// Flush is a no-op: every result is written on Write.
func (rw *ResultFileWriter) Flush() error { return nil }

// Close is a no-op.
func (rw *ResultFileWriter) Close() error { return nil }

// SupportsEvent returns true for page events only.
func (rw *ResultFileWriter) SupportsEvent(t events.EventType) bool {
	return t == events.EventTypePage
}
