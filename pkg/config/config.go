// Package config holds the scan command's settings. Values come from
// pkg/defaults, then an optional YAML file, then command-line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/duration"
)

// Config holds all scan configuration options.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Scan    ScanConfig    `yaml:"scan"`
	Scroll  ScrollConfig  `yaml:"scroll"`
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Archive ArchiveConfig `yaml:"archive"`
	Health  HealthConfig  `yaml:"health"`
	Log     LogConfig     `yaml:"log"`
}

// BrowserConfig controls the supervised browser process.
type BrowserConfig struct {
	Executable        string   `yaml:"executable"`
	Port              int      `yaml:"port"`
	LogFile           string   `yaml:"log_file"`
	ExtraFlags        []string `yaml:"extra_flags"`
	ConnectAttempts   int      `yaml:"connect_attempts"`
	HandshakeAttempts int      `yaml:"handshake_attempts"`
}

// ScanConfig controls page visits and the orchestrator cadences.
type ScanConfig struct {
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `yaml:"post_load_wait"`
	Deadline          time.Duration `yaml:"deadline"`
	AcceptLanguage    string        `yaml:"accept_language"`

	RestartEvery   int `yaml:"restart_every"`
	HeartbeatEvery int `yaml:"heartbeat_every"`
	ErrorThreshold int `yaml:"error_threshold"`
	StartAttempts  int `yaml:"start_attempts"`
}

// ScrollConfig shapes the simulated reader.
type ScrollConfig struct {
	Disabled        bool          `yaml:"disabled"`
	StepMin         int           `yaml:"step_min"`
	StepMax         int           `yaml:"step_max"`
	PauseMin        time.Duration `yaml:"pause_min"`
	PauseMax        time.Duration `yaml:"pause_max"`
	MaxSteps        int           `yaml:"max_steps"`
	ContinueOnStall bool          `yaml:"continue_on_stall"`

	// DepthMin and DepthMax bound how far down the page the reader goes,
	// as a share of the content height.
	DepthMin float64 `yaml:"depth_min"`
	DepthMax float64 `yaml:"depth_max"`
}

// InputConfig selects the worklist window.
type InputConfig struct {
	File      string `yaml:"file"`
	StartLine int    `yaml:"start_line"` // 1-based
	Limit     int    `yaml:"limit"`      // 0 = no limit
	Scheme    string `yaml:"scheme"`

	CheckpointFile string `yaml:"checkpoint_file"`
	Resume         bool   `yaml:"resume"`

	// Hosts maps a machine's host name to its worklist chunk, so one file
	// configures a whole fleet. It applies when File is empty.
	Hosts map[string]string `yaml:"hosts"`
}

// OutputConfig names where results and telemetry go.
type OutputConfig struct {
	Database   string `yaml:"database"`
	ResultsDir string `yaml:"results_dir"` // empty = no result files
	EventsFile string `yaml:"events_file"` // empty = no JSONL stream

	MetricsAddr  string `yaml:"metrics_addr"`  // empty = no metrics endpoint
	OTLPEndpoint string `yaml:"otlp_endpoint"` // empty = no tracing
	Host         string `yaml:"host"`          // reported host name (default: os.Hostname)
	NoSummary    bool   `yaml:"no_summary"`
}

// ArchiveConfig controls Wayback Machine submissions.
type ArchiveConfig struct {
	Enabled   bool    `yaml:"enabled"`
	PerMinute float64 `yaml:"per_minute"`
	Threshold int     `yaml:"threshold"`
}

// HealthConfig describes the health check to register. An empty URL
// disables it.
type HealthConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Name   string `yaml:"name"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Executable:        defaults.BrowserExecutable,
			Port:              defaults.DebugPort,
			LogFile:           defaults.ToolName + "-browser.log",
			ConnectAttempts:   defaults.ConnectAttempts,
			HandshakeAttempts: defaults.HandshakeAttempts,
		},
		Scan: ScanConfig{
			NavigationTimeout: duration.Navigation,
			PostLoadWait:      duration.PostLoadWait,
			Deadline:          duration.PageDeadline,
			AcceptLanguage:    defaults.AcceptLanguage,
			RestartEvery:      defaults.RestartEvery,
			HeartbeatEvery:    defaults.HeartbeatEvery,
			ErrorThreshold:    defaults.ErrorAlertThreshold,
			StartAttempts:     defaults.StartAttempts,
		},
		Scroll: ScrollConfig{
			StepMin:  defaults.ScrollStepMin,
			StepMax:  defaults.ScrollStepMax,
			PauseMin: duration.ScrollPauseMin,
			PauseMax: duration.ScrollPauseMax,
			MaxSteps: defaults.ScrollMaxSteps,
			DepthMin: defaults.ScrollDepthMin,
			DepthMax: defaults.ScrollDepthMax,
		},
		Input: InputConfig{
			StartLine:      1,
			Scheme:         defaults.URLScheme,
			CheckpointFile: defaults.CheckpointFile,
		},
		Output: OutputConfig{
			Database:    defaults.DatabaseFile,
			MetricsAddr: defaults.MetricsAddr,
		},
		Archive: ArchiveConfig{
			PerMinute: defaults.ArchivePerMinute,
			Threshold: defaults.ArchiveThreshold,
		},
		Health: HealthConfig{
			Name: defaults.ToolName,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Parse builds the configuration for args. A -config file replaces the
// defaults; flags set on the command line override both. The result is
// validated.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Default()
	configPath := cfg.bind(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		fileCfg, err := Load(*configPath)
		if err != nil {
			return nil, err
		}
		// Replay explicit flags onto the file values.
		replay := flag.NewFlagSet(fs.Name(), flag.ContinueOnError)
		replay.SetOutput(io.Discard)
		fileCfg.bind(replay)
		var setErr error
		fs.Visit(func(f *flag.Flag) {
			if err := replay.Set(f.Name, f.Value.String()); err != nil {
				setErr = errors.Join(setErr, err)
			}
		})
		if setErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, setErr)
		}
		cfg = fileCfg
	}

	if fs.NArg() > 0 && cfg.Input.File == "" {
		cfg.Input.File = fs.Arg(0)
	}
	if cfg.Input.File == "" {
		cfg.Input.File = cfg.Input.Hosts[cfg.HostName()]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// hostname is swapped in tests.
var hostname = os.Hostname

// HostName is the name this machine reports and looks up in Input.Hosts:
// Output.Host when set, else the operating system's host name.
func (c *Config) HostName() string {
	if c.Output.Host != "" {
		return c.Output.Host
	}
	name, _ := hostname()
	return name
}

// bind registers every flag on fs with c's current values as defaults and
// returns the -config destination.
func (c *Config) bind(fs *flag.FlagSet) *string {
	configPath := fs.String("config", "", "YAML config file")

	// === INPUT ===
	fs.StringVar(&c.Input.File, "in", c.Input.File, "Worklist file: one domain per line or rank,domain CSV")
	fs.StringVar(&c.Input.File, "i", c.Input.File, "Worklist file (alias)")
	fs.IntVar(&c.Input.StartLine, "start", c.Input.StartLine, "1-based worklist line to start at")
	fs.IntVar(&c.Input.Limit, "limit", c.Input.Limit, "Maximum number of targets (0 = all)")
	fs.StringVar(&c.Input.Scheme, "scheme", c.Input.Scheme, "Scheme prefixed to bare domains")
	fs.StringVar(&c.Input.CheckpointFile, "checkpoint", c.Input.CheckpointFile, "Checkpoint file")
	fs.BoolVar(&c.Input.Resume, "resume", c.Input.Resume, "Continue after the last checkpointed target")

	// === BROWSER ===
	fs.StringVar(&c.Browser.Executable, "chrome", c.Browser.Executable, "Browser executable")
	fs.IntVar(&c.Browser.Port, "port", c.Browser.Port, "Remote debugging port")
	fs.StringVar(&c.Browser.LogFile, "browser-log", c.Browser.LogFile, "File receiving the browser's stderr")
	fs.IntVar(&c.Browser.ConnectAttempts, "connect-attempts", c.Browser.ConnectAttempts, "Debug endpoint connection attempts")
	fs.IntVar(&c.Browser.HandshakeAttempts, "handshake-attempts", c.Browser.HandshakeAttempts, "Version handshake attempts")

	// === SCAN ===
	fs.DurationVar(&c.Scan.NavigationTimeout, "nav-timeout", c.Scan.NavigationTimeout, "Page navigation timeout")
	fs.DurationVar(&c.Scan.PostLoadWait, "wait", c.Scan.PostLoadWait, "Settle time after the page loaded")
	fs.DurationVar(&c.Scan.Deadline, "deadline", c.Scan.Deadline, "Hard per-page deadline")
	fs.StringVar(&c.Scan.AcceptLanguage, "accept-language", c.Scan.AcceptLanguage, "Accept-Language header")
	fs.IntVar(&c.Scan.RestartEvery, "restart-every", c.Scan.RestartEvery, "Replace the browser every N pages")
	fs.IntVar(&c.Scan.HeartbeatEvery, "heartbeat-every", c.Scan.HeartbeatEvery, "Send a health heartbeat every N pages")
	fs.IntVar(&c.Scan.ErrorThreshold, "error-threshold", c.Scan.ErrorThreshold, "Errors before a failure alert")
	fs.IntVar(&c.Scan.StartAttempts, "start-attempts", c.Scan.StartAttempts, "Browser launches per restart")

	// === SCROLL ===
	fs.BoolVar(&c.Scroll.Disabled, "no-scroll", c.Scroll.Disabled, "Do not scroll pages")
	fs.IntVar(&c.Scroll.MaxSteps, "scroll-steps", c.Scroll.MaxSteps, "Maximum wheel events per page")
	fs.BoolVar(&c.Scroll.ContinueOnStall, "scroll-continue", c.Scroll.ContinueOnStall, "Keep scrolling when the page stops moving")
	fs.Float64Var(&c.Scroll.DepthMin, "scroll-depth-min", c.Scroll.DepthMin, "Least share of the page to scroll through")
	fs.Float64Var(&c.Scroll.DepthMax, "scroll-depth-max", c.Scroll.DepthMax, "Greatest share of the page to scroll through")

	// === OUTPUT ===
	fs.StringVar(&c.Output.Database, "db", c.Output.Database, "SQLite results database")
	fs.StringVar(&c.Output.ResultsDir, "results", c.Output.ResultsDir, "Directory for per-page JSON results")
	fs.StringVar(&c.Output.EventsFile, "events", c.Output.EventsFile, "JSONL run event stream")
	fs.StringVar(&c.Output.MetricsAddr, "metrics", c.Output.MetricsAddr, "Prometheus listen address (empty = off)")
	fs.StringVar(&c.Output.OTLPEndpoint, "otlp", c.Output.OTLPEndpoint, "OTLP gRPC endpoint (empty = off)")
	fs.StringVar(&c.Output.Host, "host", c.Output.Host, "Host name reported in signals")
	fs.BoolVar(&c.Output.NoSummary, "no-summary", c.Output.NoSummary, "Do not print the run summary")

	// === ARCHIVE ===
	fs.BoolVar(&c.Archive.Enabled, "archive", c.Archive.Enabled, "Submit suspicious pages to the Wayback Machine")
	fs.Float64Var(&c.Archive.PerMinute, "archive-rate", c.Archive.PerMinute, "Archive requests per minute")

	// === HEALTH ===
	fs.StringVar(&c.Health.URL, "health-url", c.Health.URL, "Health check API URL (empty = off)")
	fs.StringVar(&c.Health.APIKey, "health-key", c.Health.APIKey, "Health check API key")
	fs.StringVar(&c.Health.Name, "health-name", c.Health.Name, "Health check name")

	// === LOGGING ===
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "Log level: debug, info, warn, error")
	fs.BoolVar(&c.Log.JSON, "log-json", c.Log.JSON, "Log as JSON")

	return configPath
}

// Validate reports every invalid field at once, in a fixed order.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Input.File == "" {
		if len(c.Input.Hosts) > 0 {
			errs = append(errs, fmt.Errorf("%w: input file (-in, or an input.hosts entry for %q)", ErrMissingRequired, c.HostName()))
		} else {
			errs = append(errs, fmt.Errorf("%w: input file (-in)", ErrMissingRequired))
		}
	}
	hosts := make([]string, 0, len(c.Input.Hosts))
	for h := range c.Input.Hosts {
		hosts = append(hosts, h)
	}
	slices.Sort(hosts)
	for _, h := range hosts {
		if h == "" {
			invalid("input.hosts has an empty host name")
		} else if c.Input.Hosts[h] == "" {
			invalid("input.hosts entry for %q has no file", h)
		}
	}
	if c.Output.Database == "" {
		errs = append(errs, fmt.Errorf("%w: database (-db)", ErrMissingRequired))
	}
	if c.Input.StartLine < 1 {
		invalid("start line %d must be at least 1", c.Input.StartLine)
	}
	if c.Input.Limit < 0 {
		invalid("limit %d must not be negative", c.Input.Limit)
	}
	if c.Browser.Port < 1 || c.Browser.Port > 65535 {
		invalid("port %d out of range", c.Browser.Port)
	}
	if c.Scan.NavigationTimeout <= 0 {
		invalid("navigation timeout must be positive")
	}
	if c.Scan.Deadline <= 0 {
		invalid("deadline must be positive")
	}
	if c.Scan.PostLoadWait < 0 {
		invalid("post-load wait must not be negative")
	}
	if c.Scan.Deadline > 0 && c.Scan.NavigationTimeout > c.Scan.Deadline {
		invalid("navigation timeout %s exceeds deadline %s", c.Scan.NavigationTimeout, c.Scan.Deadline)
	}
	for _, cadence := range []struct {
		name string
		n    int
	}{
		{"restart cadence", c.Scan.RestartEvery},
		{"heartbeat cadence", c.Scan.HeartbeatEvery},
		{"error threshold", c.Scan.ErrorThreshold},
		{"start attempts", c.Scan.StartAttempts},
	} {
		if cadence.n < 1 {
			invalid("%s %d must be at least 1", cadence.name, cadence.n)
		}
	}
	if c.Scroll.StepMin > c.Scroll.StepMax {
		invalid("scroll step range %d-%d", c.Scroll.StepMin, c.Scroll.StepMax)
	}
	if c.Scroll.PauseMin > c.Scroll.PauseMax {
		invalid("scroll pause range %s-%s", c.Scroll.PauseMin, c.Scroll.PauseMax)
	}
	if c.Scroll.DepthMin <= 0 || c.Scroll.DepthMin > c.Scroll.DepthMax || c.Scroll.DepthMax > 1 {
		invalid("scroll depth range %.2f-%.2f must lie within (0, 1]", c.Scroll.DepthMin, c.Scroll.DepthMax)
	}
	if c.Archive.Enabled && c.Archive.PerMinute <= 0 {
		invalid("archive rate must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		invalid("log level %q", c.Log.Level)
	}
	return errors.Join(errs...)
}
