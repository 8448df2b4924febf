//go:build darwin || linux || freebsd

package target

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

func createServiceCommand(ctx context.Context, command string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", command) // #nosec G204
}

// createReadinessCommand creates a readiness probe command bounded by ctx
func createReadinessCommand(ctx context.Context, command string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", command) // #nosec G204
}

// setupProcessGroup puts the service in its own process group so children
// are stopped with it.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup signals the process group of cmd, or cmd alone when the group
// cannot be resolved.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	pid := cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil {
		if err := syscall.Kill(-pgid, sig); err == nil {
			return
		}
		slog.Debug("Failed to signal process group", "pgid", pgid, "signal", sig)
	}
	if err := cmd.Process.Signal(sig); err != nil {
		slog.Debug("Failed to signal process", "pid", pid, "signal", sig, "error", err)
	}
}

// killProcessGroup sends SIGTERM and escalates to SIGKILL after timeout.
func killProcessGroup(cmd *exec.Cmd, timeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	slog.Debug("Stopping service", "pid", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	signalGroup(cmd, syscall.SIGTERM)
	select {
	case <-done:
		slog.Debug("Service stopped gracefully")
		return nil
	case <-time.After(timeout):
	}

	slog.Debug("Service didn't stop gracefully, force killing")
	signalGroup(cmd, syscall.SIGKILL)
	<-done
	return errors.New("service was force killed after timeout")
}
