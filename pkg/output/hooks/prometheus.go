package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/duration"
	"github.com/warscan/warscan/pkg/finding"
	"github.com/warscan/warscan/pkg/output/dispatcher"
	"github.com/warscan/warscan/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*PrometheusHook)(nil)

// PrometheusHook exposes run metrics for Prometheus scraping.
// It starts an HTTP server that serves metrics at the configured path.
type PrometheusHook struct {
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry
	opts     PrometheusOptions

	// Counters
	pagesTotal    *prometheus.CounterVec
	findingsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	restartsTotal prometheus.Counter

	// Gauges
	worklistIndex prometheus.Gauge
	worklistSize  prometheus.Gauge

	// Histograms
	pageDuration prometheus.Histogram

	mu     sync.Mutex
	closed bool
}

// PrometheusOptions configures the Prometheus hook behavior.
type PrometheusOptions struct {
	// Addr is the listen address of the metrics server (default ":9464").
	Addr string

	// Path for the metrics endpoint (default: "/metrics").
	Path string

	// ReadTimeout for the HTTP server (default: 5s).
	ReadTimeout time.Duration

	// WriteTimeout for the HTTP server (default: 5s).
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// NewPrometheusHook creates a hook and starts its metrics server. The
// listener is bound before returning, so an address in use fails here.
func NewPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	if opts.Addr == "" {
		opts.Addr = defaults.MetricsAddr
	}
	if opts.Path == "" {
		opts.Path = "/metrics"
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = duration.Shutdown
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = duration.Shutdown
	}
	opts.Logger = orDefault(opts.Logger)

	hook := &PrometheusHook{
		registry: prometheus.NewRegistry(),
		opts:     opts,
	}
	if err := hook.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if err := hook.startServer(); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	return hook, nil
}

// initMetrics creates and registers all Prometheus metrics.
func (h *PrometheusHook) initMetrics() error {
	ns := defaults.ToolName

	h.pagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "pages_total",
			Help:      "Worklist targets processed, by outcome",
		},
		[]string{"outcome"},
	)
	h.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "findings_total",
			Help:      "Findings collected, by kind",
		},
		[]string{"kind"},
	)
	h.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "errors_total",
			Help:      "Errors during the run, by class",
		},
		[]string{"class"},
	)
	h.restartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "browser_restarts_total",
		Help:      "Browser instances started",
	})
	h.worklistIndex = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "worklist_index",
		Help:      "Index of the last processed worklist target",
	})
	h.worklistSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "worklist_size",
		Help:      "Number of targets in the worklist",
	})
	h.pageDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "page_duration_seconds",
		Help:      "Wall time of one page visit",
		Buckets:   []float64{1, 2.5, 5, 10, 15, 20, 30, 40, 60},
	})

	collectors := []prometheus.Collector{
		h.pagesTotal,
		h.findingsTotal,
		h.errorsTotal,
		h.restartsTotal,
		h.worklistIndex,
		h.worklistSize,
		h.pageDuration,
	}
	for _, c := range collectors {
		if err := h.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// startServer binds the listener and serves metrics in a goroutine.
func (h *PrometheusHook) startServer() error {
	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return err
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.Handle(h.opts.Path, promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	h.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  h.opts.ReadTimeout,
		WriteTimeout: h.opts.WriteTimeout,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.opts.Logger.Error("prometheus: metrics server error", "error", err)
		}
	}()
	return nil
}

// OnEvent processes events and updates Prometheus metrics.
func (h *PrometheusHook) OnEvent(ctx context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.StartEvent:
		h.worklistSize.Set(float64(e.TotalTargets))
	case *events.PageEvent:
		h.handlePage(e)
	case *events.ErrorEvent:
		h.errorsTotal.WithLabelValues(string(e.Class)).Inc()
	case *events.RestartEvent:
		h.restartsTotal.Inc()
	}
	return nil
}

func (h *PrometheusHook) handlePage(page *events.PageEvent) {
	h.pagesTotal.WithLabelValues(string(page.Outcome)).Inc()
	h.worklistIndex.Set(float64(page.Index))
	if page.DurationMs > 0 {
		h.pageDuration.Observe(page.DurationMs / 1000.0)
	}
	for _, kind := range finding.Kinds() {
		if n := page.Findings[kind]; n > 0 {
			h.findingsTotal.WithLabelValues(string(kind)).Add(float64(n))
		}
	}
}

// EventTypes returns the event types this hook handles.
func (h *PrometheusHook) EventTypes() []events.EventType {
	return []events.EventType{
		events.EventTypeStart,
		events.EventTypePage,
		events.EventTypeError,
		events.EventTypeRestart,
	}
}

// Close shuts down the metrics server and releases resources.
func (h *PrometheusHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), duration.Shutdown)
	defer cancel()
	return h.server.Shutdown(ctx)
}

// MetricsAddr returns the URL where metrics are served.
func (h *PrometheusHook) MetricsAddr() string {
	return "http://" + h.listener.Addr().String() + h.opts.Path
}
