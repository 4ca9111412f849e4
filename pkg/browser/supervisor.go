package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/warscan/warscan/pkg/defaults"
	"github.com/warscan/warscan/pkg/duration"
)

// Config controls how browser instances are launched and torn down.
type Config struct {
	// Executable is the browser binary (default: chromium from PATH).
	Executable string

	// Port is the remote-debugging port (default: 9222).
	Port int

	// Host is where the debugging endpoint listens (default: 127.0.0.1).
	Host string

	// LogFile receives the browser's standard error. Empty discards it.
	LogFile string

	// ExtraFlags are appended to the hardened flag set.
	ExtraFlags []string

	// ConnectAttempts and HandshakeAttempts bound the two readiness polls.
	ConnectAttempts   int
	HandshakeAttempts int

	// PollInterval is the pause between readiness attempts (default: 200ms).
	PollInterval time.Duration

	// KillGrace is how long terminated processes get before SIGKILL.
	KillGrace time.Duration

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Executable == "" {
		c.Executable = defaults.BrowserExecutable
	}
	if c.Port == 0 {
		c.Port = defaults.DebugPort
	}
	if c.Host == "" {
		c.Host = defaults.DebugHost
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = defaults.ConnectAttempts
	}
	if c.HandshakeAttempts <= 0 {
		c.HandshakeAttempts = defaults.HandshakeAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = duration.ReadinessPoll
	}
	if c.KillGrace <= 0 {
		c.KillGrace = duration.KillGrace
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Supervisor launches and terminates browser instances.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger
}

// NewSupervisor returns a Supervisor for cfg.
func NewSupervisor(cfg Config) *Supervisor {
	cfg = cfg.withDefaults()
	return &Supervisor{cfg: cfg, logger: cfg.Logger}
}

// Instance is one running browser process and its debugging endpoint. It
// is owned by the Supervisor that started it until Stop returns.
type Instance struct {
	PID          int
	Port         int
	Host         string
	ProfileDir   string
	WebSocketURL string
	Version      VersionInfo

	cmd      *exec.Cmd
	logFile  *os.File
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// Endpoint returns the base URL of the JSON debugging endpoint.
func (i *Instance) Endpoint() string {
	return "http://" + i.addr()
}

func (i *Instance) addr() string {
	return i.Host + ":" + strconv.Itoa(i.Port)
}

// Exited reports whether the browser process has exited.
func (i *Instance) Exited() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

// Start launches a browser with a fresh profile and waits until its
// debugging endpoint answers the version handshake. Failures are returned
// as *StartupError; nothing is left running or on disk.
func (s *Supervisor) Start(ctx context.Context) (*Instance, error) {
	root, userDataDir, err := makeProfile(defaults.ProfilePrefix)
	if err != nil {
		return nil, &StartupError{Phase: PhaseLaunch, Err: err}
	}

	var logFile *os.File
	if s.cfg.LogFile != "" {
		// Appended: every restart of one run shares the log.
		logFile, err = os.OpenFile(s.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			_ = os.RemoveAll(root)
			return nil, &StartupError{Phase: PhaseLaunch, Err: fmt.Errorf("open log file: %w", err)}
		}
	}

	args := Flags(s.cfg.Port, userDataDir, s.cfg.ExtraFlags)
	cmd := exec.Command(s.cfg.Executable, args...)
	cmd.Env = append(os.Environ(), "DBUS_SESSION_BUS_ADDRESS=/dev/null")
	if logFile != nil {
		cmd.Stderr = logFile
	}
	setProcAttr(cmd)

	s.logger.Debug("launching browser", "executable", s.cfg.Executable, "args", args)
	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		_ = os.RemoveAll(root)
		return nil, &StartupError{Phase: PhaseLaunch, Err: err}
	}

	inst := &Instance{
		PID:        cmd.Process.Pid,
		Port:       s.cfg.Port,
		Host:       s.cfg.Host,
		ProfileDir: root,
		cmd:        cmd,
		logFile:    logFile,
		done:       make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(inst.done)
	}()
	s.logger.Info("browser launched", "pid", inst.PID, "port", inst.Port, "profile", root)

	if err := s.awaitReady(ctx, inst); err != nil {
		if stopErr := s.Stop(inst); stopErr != nil {
			s.logger.Warn("cleanup after failed start", "pid", inst.PID, "error", stopErr)
		}
		return nil, err
	}
	s.logger.Info("browser ready", "pid", inst.PID, "version", inst.Version.Browser)
	return inst, nil
}

// Stop terminates the instance's process tree and removes its profile
// directory. The profile is removed however termination went. Stop is safe
// to call more than once and on a nil instance.
func (s *Supervisor) Stop(inst *Instance) error {
	if inst == nil {
		return nil
	}
	inst.stopOnce.Do(func() {
		inst.stopErr = s.stop(inst)
	})
	return inst.stopErr
}

func (s *Supervisor) stop(inst *Instance) error {
	start := time.Now()
	terminateTree(inst, s.cfg.KillGrace, s.logger)

	var errs []error
	if inst.logFile != nil {
		if err := inst.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	if err := os.RemoveAll(inst.ProfileDir); err != nil {
		errs = append(errs, fmt.Errorf("remove profile: %w", err))
	}
	s.logger.Info("browser stopped", "pid", inst.PID, "took", time.Since(start).Round(time.Millisecond))
	return errors.Join(errs...)
}

// waitExit waits up to d for the process to be reaped.
func waitExit(done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
