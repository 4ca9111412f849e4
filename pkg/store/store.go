package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/warscan/warscan/pkg/finding"
	"github.com/warscan/warscan/pkg/jsonutil"
)

// Options configures the database.
type Options struct {
	// EnableWAL switches the journal to write-ahead logging.
	EnableWAL bool

	// BusyTimeout is how long a write waits for a lock held by another
	// scanner sharing the file.
	BusyTimeout time.Duration
}

// DefaultOptions returns the options used by the scan command.
func DefaultOptions() Options {
	return Options{
		EnableWAL:   true,
		BusyTimeout: 5 * time.Second,
	}
}

// Store is an open results database. It is owned by the run that opened
// it and closed when the run ends.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and ensures the schema.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)",
		path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create tables: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes r and all of its findings in one transaction and returns the
// website row id. Either everything is stored or nothing is.
func (s *Store) Save(ctx context.Context, r *finding.PageResult) (int64, error) {
	if r == nil {
		return 0, ErrNilResult
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: begin: %w", ErrSave, r.URL, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO websites (url, scan_time) VALUES (?, ?)`,
		r.URL, r.ScanTime.Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: %s: insert website: %w", ErrSave, r.URL, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSave, r.URL, err)
	}

	if err := r.Walk(&rowWriter{ctx: ctx, tx: tx, websiteID: id}); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSave, r.URL, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %s: commit: %w", ErrSave, r.URL, err)
	}
	return id, nil
}

// rowWriter inserts one row per finding.
type rowWriter struct {
	ctx       context.Context
	tx        *sql.Tx
	websiteID int64
}

func (w *rowWriter) VisitCrossContextMessage(f *finding.CrossContextMessage) error {
	_, err := w.tx.ExecContext(w.ctx,
		`INSERT INTO post_messages (website_id, origin, data) VALUES (?, ?, ?)`,
		w.websiteID, f.Origin, string(finding.OrEmpty(f.Data)))
	return wrapInsert("post_messages", err)
}

func (w *rowWriter) VisitExtensionMessage(f *finding.ExtensionMessage) error {
	return w.message("send_messages", f.ExtensionID, f.Data, f.CallFrames)
}

func (w *rowWriter) VisitPortMessage(f *finding.PortMessage) error {
	return w.message("port_post_messages", f.ExtensionID, f.Data, f.CallFrames)
}

func (w *rowWriter) message(table, extensionID string, data jsontext.Value, frames []finding.CallFrame) error {
	callFrames, err := jsonutil.Marshal(frames)
	if err != nil {
		return wrapInsert(table, err)
	}
	_, err = w.tx.ExecContext(w.ctx,
		`INSERT INTO `+table+` (website_id, extension_id, data, call_frames, stack_hash) VALUES (?, ?, ?, ?, ?)`,
		w.websiteID, extensionID, string(finding.OrNull(data)), string(callFrames), int64(finding.StackHash(frames)))
	return wrapInsert(table, err)
}

func (w *rowWriter) VisitConnectAttempt(f *finding.ConnectAttempt) error {
	callFrames, err := jsonutil.Marshal(f.CallFrames)
	if err != nil {
		return wrapInsert("connects", err)
	}
	_, err = w.tx.ExecContext(w.ctx,
		`INSERT INTO connects (website_id, extension_id, connect_info, call_frames, stack_hash) VALUES (?, ?, ?, ?, ?)`,
		w.websiteID, f.ExtensionID, string(finding.OrNull(f.ConnectInfo)), string(callFrames), int64(finding.StackHash(f.CallFrames)))
	return wrapInsert("connects", err)
}

func (w *rowWriter) VisitProbeRequest(f *finding.ProbeRequest) error {
	obj, err := jsonutil.Marshal(f)
	if err != nil {
		return wrapInsert("war_requests", err)
	}
	_, err = w.tx.ExecContext(w.ctx,
		`INSERT INTO war_requests (website_id, requested_war, requested_extension_id, source, request_object) VALUES (?, ?, ?, ?, ?)`,
		w.websiteID, f.URL, ExtensionID(f.URL), string(f.Source), string(obj))
	return wrapInsert("war_requests", err)
}

// ExtensionID returns the host part of an extension URL, which for
// extension schemes is the extension identifier.
func ExtensionID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func wrapInsert(table string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("insert %s: %w", table, err)
}
