package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/duration"
	"github.com/warscan/warscan/pkg/finding"
	"github.com/warscan/warscan/pkg/output/dispatcher"
	"github.com/warscan/warscan/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*OTelHook)(nil)

// OTelHook exports run telemetry to an OpenTelemetry collector. A run is
// one root span; every page visit is a child span.
type OTelHook struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	mu       sync.Mutex
	rootSpan trace.Span
	rootCtx  context.Context
	closed   bool
}

// OTelOptions configures the OpenTelemetry hook behavior.
type OTelOptions struct {
	// Endpoint is the OTLP endpoint (e.g., "localhost:4317").
	Endpoint string

	// ServiceName is the service name for traces (default: "warscan").
	ServiceName string

	// Insecure uses insecure connection (no TLS).
	Insecure bool

	// Headers contains additional headers for the OTLP exporter.
	Headers map[string]string

	// ShutdownTimeout is the timeout for graceful shutdown (default: 5s).
	ShutdownTimeout time.Duration

	// ConnectionTimeout is the timeout for establishing connection (default: 10s).
	ConnectionTimeout time.Duration
}

func (o OTelOptions) withDefaults() OTelOptions {
	if o.ServiceName == "" {
		o.ServiceName = defaults.ToolName
	}
	if o.Endpoint == "" {
		o.Endpoint = "localhost:4317"
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = duration.Shutdown
	}
	if o.ConnectionTimeout == 0 {
		o.ConnectionTimeout = duration.ExporterConnect
	}
	return o
}

// NewOTelHook creates a hook exporting over OTLP/gRPC. Connection failures
// surface in the exporter, never in the scan.
func NewOTelHook(opts OTelOptions) (*OTelHook, error) {
	opts = opts.withDefaults()

	grpcOpts := []grpc.DialOption{}
	if opts.Insecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithDialOption(grpcOpts...),
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectionTimeout)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(opts.ServiceName)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return newOTelHook(opts, tp), nil
}

func newResource(service string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "scanner"),
	)
}

func newOTelHook(opts OTelOptions, tp *sdktrace.TracerProvider) *OTelHook {
	return &OTelHook{
		opts:           opts.withDefaults(),
		tracerProvider: tp,
		tracer:         tp.Tracer(defaults.ToolName + "/runner"),
	}
}

// OnEvent processes events and exports telemetry to the collector.
func (h *OTelHook) OnEvent(ctx context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.StartEvent:
		h.handleStart(ctx, e)
	case *events.PageEvent:
		h.handlePage(e)
	case *events.ErrorEvent:
		h.handleError(e)
	case *events.RestartEvent:
		h.handleRestart(e)
	case *events.CompleteEvent:
		h.handleComplete(e)
	}
	return nil
}

// handleStart creates the root span for the run.
func (h *OTelHook) handleStart(ctx context.Context, start *events.StartEvent) {
	if h.rootSpan != nil {
		h.rootSpan.End()
	}
	h.rootCtx, h.rootSpan = h.tracer.Start(ctx, defaults.ToolName+".scan",
		trace.WithTimestamp(start.Timestamp()),
		trace.WithAttributes(
			attribute.String("scan_id", start.ScanID()),
			attribute.String("host", start.Host),
			attribute.String("input", start.Input),
			attribute.Int("total_targets", start.TotalTargets),
			attribute.Int("start_index", start.StartIndex),
			attribute.Int("restart_every", start.Config.RestartEvery),
			attribute.Float64("page_deadline_sec", start.Config.PageDeadline),
		),
	)
}

// handlePage records one visit as a child span covering its duration.
func (h *OTelHook) handlePage(page *events.PageEvent) {
	if h.rootSpan == nil {
		return
	}

	end := page.Timestamp()
	begin := end.Add(-time.Duration(page.DurationMs * float64(time.Millisecond)))

	attrs := []attribute.KeyValue{
		attribute.Int("index", page.Index),
		attribute.String("url", page.URL),
		attribute.String("outcome", string(page.Outcome)),
		attribute.Bool("persisted", page.Persisted),
		attribute.Bool("archived", page.Archived),
	}
	for _, kind := range finding.Kinds() {
		attrs = append(attrs, attribute.Int("findings."+string(kind), page.Findings[kind]))
	}

	_, span := h.tracer.Start(h.rootCtx, defaults.ToolName+".page",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(begin),
		trace.WithAttributes(attrs...),
	)
	switch page.Outcome {
	case events.OutcomeError:
		span.SetStatus(codes.Error, "page failed")
	case events.OutcomeTimeout:
		span.SetStatus(codes.Error, "navigation timeout")
	}
	span.End(trace.WithTimestamp(end))
}

func (h *OTelHook) handleError(e *events.ErrorEvent) {
	if h.rootSpan == nil {
		return
	}
	h.rootSpan.AddEvent("error", trace.WithTimestamp(e.Timestamp()), trace.WithAttributes(
		attribute.Int("index", e.Index),
		attribute.String("url", e.Target),
		attribute.String("class", string(e.Class)),
		attribute.String("message", e.Message),
		attribute.Bool("fatal", e.Fatal),
	))
}

func (h *OTelHook) handleRestart(e *events.RestartEvent) {
	if h.rootSpan == nil {
		return
	}
	h.rootSpan.AddEvent("browser_started", trace.WithTimestamp(e.Timestamp()), trace.WithAttributes(
		attribute.Int("index", e.Index),
		attribute.String("reason", e.Reason),
		attribute.Int("pid", e.PID),
		attribute.String("product", e.Product),
		attribute.Int("attempts", e.Attempts),
	))
}

// handleComplete finalizes the run span.
func (h *OTelHook) handleComplete(complete *events.CompleteEvent) {
	if h.rootSpan == nil {
		return
	}

	h.rootSpan.SetAttributes(
		attribute.Int("totals.processed", complete.Processed),
		attribute.Int("totals.persisted", complete.Persisted),
		attribute.Int("totals.errors", complete.Errors),
		attribute.Int("totals.restarts", complete.Restarts),
		attribute.Float64("duration_sec", complete.DurationSec),
		attribute.Int("exit_code", complete.ExitCode),
		attribute.String("exit_reason", complete.ExitReason),
	)
	if complete.Success {
		h.rootSpan.SetStatus(codes.Ok, "")
	} else {
		h.rootSpan.SetStatus(codes.Error, complete.ExitReason)
	}

	h.rootSpan.End(trace.WithTimestamp(complete.Timestamp()))
	h.rootSpan = nil
	h.rootCtx = nil
}

// EventTypes returns nil: the hook receives every event.
func (h *OTelHook) EventTypes() []events.EventType { return nil }

// Close ends any open span and flushes pending telemetry.
func (h *OTelHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if h.rootSpan != nil {
		h.rootSpan.End()
		h.rootSpan = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
	defer cancel()
	if err := h.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("otel: shutdown tracer provider: %w", err)
	}
	return nil
}

// Endpoint returns the OTLP endpoint being used.
func (h *OTelHook) Endpoint() string {
	return h.opts.Endpoint
}
