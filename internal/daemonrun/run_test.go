package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"filerelay/internal/config"
	"filerelay/internal/logging"
	"filerelay/internal/testsupport"
)

func TestRunRelaysUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := filepath.Join(cfg.Paths.WatchDir, "report.txt")
	testsupport.WriteText(t, source, "abc")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, cfg, Options{LogLevel: "error"}) }()

	processed := filepath.Join(cfg.ProcessedDir(cfg.Paths.WatchDir), "report.txt")
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, movedErr := os.Stat(processed)
		_, pidErr := os.Stat(cfg.PIDPath())
		if movedErr == nil && pidErr == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("timed out waiting for %s (run error: %v)", processed, drain(errCh))
		}
		time.Sleep(10 * time.Millisecond)
	}

	pid, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(pid)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", pid)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, stat err = %v", err)
	}
	if _, err := os.Lstat(filepath.Join(cfg.Paths.LogDir, "filerelay.log")); err != nil {
		t.Fatalf("expected current log pointer: %v", err)
	}
}

func drain(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	default:
		return nil
	}
}

func TestSecondRunLeavesRunningInstanceState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, cfg, Options{LogLevel: "error"}) }()

	pointer := filepath.Join(cfg.Paths.LogDir, "filerelay.log")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Lstat(pointer); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("timed out waiting for log pointer (run error: %v)", drain(errCh))
		}
		time.Sleep(10 * time.Millisecond)
	}
	before, err := os.Readlink(pointer)
	if err != nil {
		t.Fatalf("read log pointer: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	err = Run(context.Background(), cfg, Options{LogLevel: "error"})
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected single-instance rejection, got %v", err)
	}

	if _, err := os.Stat(cfg.PIDPath()); err != nil {
		t.Fatalf("pid file of running instance removed: %v", err)
	}
	after, err := os.Readlink(pointer)
	if err != nil {
		t.Fatalf("read log pointer: %v", err)
	}
	if after != before {
		t.Fatalf("log pointer moved from %s to %s", before, after)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunFailsPreflightForMissingWatchDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.WatchDir = filepath.Join(testsupport.BaseDir(cfg), "missing")

	err := Run(context.Background(), cfg, Options{LogLevel: "error"})
	if err == nil || !strings.Contains(err.Error(), "preflight failed") {
		t.Fatalf("expected preflight failure, got %v", err)
	}
}

func TestBuildHonoursRole(t *testing.T) {
	for _, role := range []string{config.RoleAll, config.RoleProducer, config.RoleConsumer} {
		t.Run(role, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithRole(role))
			d, err := Build(context.Background(), cfg, logging.NewNop(), nil)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got := d.Status().Role; got != role {
				t.Fatalf("role = %q, want %q", got, role)
			}
			if err := d.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.Backend = "carrier-pigeon"
	if _, err := Build(context.Background(), cfg, logging.NewNop(), nil); err == nil {
		t.Fatal("expected unsupported backend error")
	}
}

func TestEnsureCurrentLogPointerReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "filerelay-1.log")
	second := filepath.Join(dir, "filerelay-2.log")
	testsupport.WriteText(t, first, "one")
	testsupport.WriteText(t, second, "two")

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "filerelay.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("pointer resolves to %q, want \"two\"", data)
	}
}
