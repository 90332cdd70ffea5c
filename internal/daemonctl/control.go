// Package daemonctl inspects and stops a running filerelay daemon from
// another process using the daemon's lock and pid files.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"filerelay/internal/config"
)

// ErrDaemonNotRunning reports that no daemon holds the instance lock.
var ErrDaemonNotRunning = errors.New("filerelay daemon is not running")

const pollInterval = 100 * time.Millisecond

// StopResult describes how a stop request was carried out.
type StopResult struct {
	PID        int
	Signalled  bool
	ForcedKill bool
}

// ProcessInfo reports whether a daemon holds the instance lock and, when the
// pid file is readable, which process it is.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	if cfg == nil {
		return false, 0, errors.New("config is required")
	}
	held, err := lockHeld(cfg.LockPath())
	if err != nil {
		return false, 0, err
	}
	if !held {
		return false, 0, nil
	}
	pid, err := readPID(cfg.PIDPath())
	if err != nil {
		return true, 0, nil
	}
	return true, pid, nil
}

// Stop asks the daemon to drain with SIGTERM and waits up to grace for it to
// release the instance lock. With force set, a daemon still holding the lock
// after grace receives SIGKILL.
func Stop(ctx context.Context, cfg *config.Config, grace time.Duration, force bool) (StopResult, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("daemon is running but pid file %s is unreadable", cfg.PIDPath())
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return result, cleanupPID(cfg.PIDPath())
		}
		return result, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	result.Signalled = true

	if err := waitForRelease(ctx, cfg.LockPath(), grace); err == nil {
		return result, cleanupPID(cfg.PIDPath())
	} else if !force {
		return result, fmt.Errorf("daemon %d still draining: %w", pid, err)
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon %d: %w", pid, err)
	}
	result.ForcedKill = true
	if err := waitForRelease(ctx, cfg.LockPath(), 5*time.Second); err != nil {
		return result, fmt.Errorf("daemon %d did not exit after SIGKILL: %w", pid, err)
	}
	return result, cleanupPID(cfg.PIDPath())
}

func waitForRelease(ctx context.Context, lockPath string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		held, err := lockHeld(lockPath)
		if err != nil {
			return err
		}
		if !held {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// lockHeld probes the instance lock without keeping it.
func lockHeld(lockPath string) (bool, error) {
	if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	value := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q in %s", value, path)
	}
	return pid, nil
}

func cleanupPID(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}
