// Package target starts and stops the merchant service under test when
// conform is asked to manage it.
package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/Use-Tusk/checkout-conformance/internal/log"
)

const (
	defaultReadinessTimeout  = 30 * time.Second
	defaultReadinessInterval = 500 * time.Millisecond
	stopTimeout              = 3 * time.Second
)

// Options configure a managed service.
type Options struct {
	StartCommand string
	// StopCommand replaces killing the process group when set.
	StopCommand string
	// ReadinessCommand is polled until it exits 0. Without one, Probe is
	// polled until it returns nil.
	ReadinessCommand  string
	ReadinessTimeout  time.Duration
	ReadinessInterval time.Duration
	Probe             func(ctx context.Context) error
	// Port is checked before starting so an already running service is
	// not shadowed. Zero skips the check.
	Port int
	// LogsDir receives the service's stdout and stderr. Empty discards them.
	LogsDir string
	Env     []string
}

// Service is a merchant process started by conform.
type Service struct {
	opts    Options
	cmd     *exec.Cmd
	logFile *os.File
}

func NewService(opts Options) *Service {
	if opts.ReadinessTimeout <= 0 {
		opts.ReadinessTimeout = defaultReadinessTimeout
	}
	if opts.ReadinessInterval <= 0 {
		opts.ReadinessInterval = defaultReadinessInterval
	}
	return &Service{opts: opts}
}

// Start launches the service and blocks until it is ready.
func (s *Service) Start(ctx context.Context) error {
	if s.opts.StartCommand == "" {
		return errors.New("no start command defined in config")
	}
	if s.opts.Port > 0 && portInUse(s.opts.Port) {
		return fmt.Errorf("port %d is already in use, if your service is already running remove target.start.command from the config", s.opts.Port)
	}

	slog.Debug("Starting service", "command", s.opts.StartCommand)

	s.cmd = createServiceCommand(context.Background(), s.opts.StartCommand)
	setupProcessGroup(s.cmd)
	s.cmd.Env = append(os.Environ(), s.opts.Env...)

	if err := s.setupServiceLogging(); err != nil {
		slog.Debug("Service output discarded", "reason", err)
	} else {
		s.cmd.Stdout = s.logFile
		s.cmd.Stderr = s.logFile
	}

	if err := s.cmd.Start(); err != nil {
		s.cleanupLogFiles()
		s.cmd = nil
		return fmt.Errorf("failed to start service: %w", err)
	}

	if err := s.waitForReadiness(ctx); err != nil {
		_ = s.Stop()
		return fmt.Errorf("service readiness check failed: %w", err)
	}

	log.RunLog("Service is ready")
	slog.Debug("Service is ready", "pid", s.cmd.Process.Pid)
	return nil
}

// Stop runs the stop command, or terminates the process group.
func (s *Service) Stop() error {
	defer func() {
		s.cleanupLogFiles()
		log.RunLog("Service stopped")
	}()

	if s.opts.StopCommand != "" {
		slog.Debug("Using custom stop command", "command", s.opts.StopCommand)
		stopCmd := createServiceCommand(context.Background(), s.opts.StopCommand)
		if err := stopCmd.Run(); err != nil {
			slog.Warn("Stop command failed", "error", err)
		} else {
			return nil
		}
	}

	if s.cmd != nil && s.cmd.Process != nil {
		if err := killProcessGroup(s.cmd, stopTimeout); err != nil {
			slog.Debug("Process group kill completed with error", "error", err)
		}
		s.cmd = nil
	}
	return nil
}

// LogPath is the file receiving service output, if any.
func (s *Service) LogPath() string {
	if s.logFile != nil {
		return s.logFile.Name()
	}
	return ""
}

// portInUse reports whether something accepts connections on port.
func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	slog.Debug("Port is already in use", "port", port)
	return true
}

func (s *Service) waitForReadiness(ctx context.Context) error {
	check := s.opts.Probe
	if s.opts.ReadinessCommand != "" {
		check = func(ctx context.Context) error {
			return createReadinessCommand(ctx, s.opts.ReadinessCommand).Run()
		}
	}
	if check == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ReadinessTimeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.ReadinessInterval)
	defer ticker.Stop()

	for {
		err := check(ctx)
		if err == nil {
			return nil
		}
		slog.Debug("Service not ready yet", "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("service failed to become ready within %v. You can increase target.readiness.timeout in the config", s.opts.ReadinessTimeout)
		case <-ticker.C:
		}
	}
}

func (s *Service) setupServiceLogging() error {
	if s.opts.LogsDir == "" {
		return errors.New("no logs directory configured")
	}
	if err := os.MkdirAll(s.opts.LogsDir, 0o750); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	logPath := filepath.Join(s.opts.LogsDir, fmt.Sprintf("service-%s.log", timestamp))
	logFile, err := os.Create(logPath) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create service log file: %w", err)
	}
	s.logFile = logFile

	log.RunLog(fmt.Sprintf("Service logs will be written to: %s", logPath))
	return nil
}

func (s *Service) cleanupLogFiles() {
	if s.logFile != nil {
		_ = s.logFile.Close()
		s.logFile = nil
	}
}
