// Package hooks contains the live event consumers of a scan run: a
// structured log hook, a Prometheus metrics hook and an OpenTelemetry
// tracing hook.
package hooks

import (
	"context"
	"log/slog"

	"github.com/warscan/warscan/pkg/output/dispatcher"
	"github.com/warscan/warscan/pkg/output/events"
)

// orDefault returns l if non-nil, otherwise slog.Default().
func orDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

var _ dispatcher.Hook = (*LogHook)(nil)

// LogHook writes every run event as one structured log record.
type LogHook struct {
	logger *slog.Logger
}

// NewLogHook returns a hook logging to logger (slog.Default() if nil).
func NewLogHook(logger *slog.Logger) *LogHook {
	return &LogHook{logger: orDefault(logger)}
}

// OnEvent logs ev. Page timeouts and recoverable errors log at Warn, fatal
// errors at Error.
func (h *LogHook) OnEvent(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case *events.StartEvent:
		h.logger.InfoContext(ctx, "scan started",
			"scan_id", e.ScanID(),
			"host", e.Host,
			"input", e.Input,
			"targets", e.TotalTargets,
			"start_index", e.StartIndex,
		)
	case *events.PageEvent:
		level := slog.LevelInfo
		if e.Outcome == events.OutcomeTimeout || e.Outcome == events.OutcomeError {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "page "+string(e.Outcome),
			"index", e.Index,
			"url", e.URL,
			"findings", e.Total(),
			"duration_ms", e.DurationMs,
			"persisted", e.Persisted,
			"archived", e.Archived,
		)
	case *events.ErrorEvent:
		level := slog.LevelWarn
		if e.Fatal {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "scan error",
			"index", e.Index,
			"url", e.Target,
			"class", e.Class,
			"error", e.Message,
		)
	case *events.RestartEvent:
		h.logger.InfoContext(ctx, "browser started",
			"index", e.Index,
			"reason", e.Reason,
			"pid", e.PID,
			"endpoint", e.Endpoint,
			"product", e.Product,
			"attempts", e.Attempts,
		)
	case *events.CompleteEvent:
		level := slog.LevelInfo
		if !e.Success {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "scan finished",
			"reason", e.ExitReason,
			"exit_code", e.ExitCode,
			"processed", e.Processed,
			"persisted", e.Persisted,
			"errors", e.Errors,
			"restarts", e.Restarts,
			"duration_sec", e.DurationSec,
		)
	}
	return nil
}

// EventTypes returns nil: the hook receives every event.
func (h *LogHook) EventTypes() []events.EventType { return nil }
