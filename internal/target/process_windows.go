//go:build windows

package target

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

func createServiceCommand(ctx context.Context, command string) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd.exe", "/c", command) // #nosec G204
}

// createReadinessCommand creates a readiness probe command bounded by ctx
func createReadinessCommand(ctx context.Context, command string) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd.exe", "/c", command) // #nosec G204
}

func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// killProcessGroup asks taskkill to end the process tree and forces it
// after timeout.
func killProcessGroup(cmd *exec.Cmd, timeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := strconv.Itoa(cmd.Process.Pid)
	slog.Debug("Stopping service", "pid", pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if err := exec.Command("taskkill", "/T", "/PID", pid).Run(); err != nil {
		slog.Debug("Failed to gracefully terminate process tree", "pid", pid, "error", err)
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
	}

	if err := exec.Command("taskkill", "/F", "/T", "/PID", pid).Run(); err != nil {
		slog.Debug("Failed to force kill process tree", "pid", pid, "error", err)
		_ = cmd.Process.Kill()
	}
	<-done
	return errors.New("service was force killed after timeout")
}
