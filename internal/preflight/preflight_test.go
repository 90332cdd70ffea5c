package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"filerelay/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
	if result := CheckDirectoryReadable("test", f); result.Passed {
		t.Fatal("expected readable check to fail for file path")
	}
}

func TestCheckProcessedDirectory_MissingPasses(t *testing.T) {
	result := CheckProcessedDirectory("processed", filepath.Join(t.TempDir(), "Processed"))
	if !result.Passed {
		t.Fatalf("expected missing processed dir to pass, got %s", result.Detail)
	}
}

func TestCheckEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	url := "amqp://guest:guest@" + ln.Addr().String() + "/"
	if result := CheckEndpoint(context.Background(), "broker", url, "5672"); !result.Passed {
		t.Fatalf("expected reachable endpoint, got %s", result.Detail)
	}

	addr := ln.Addr().String()
	ln.Close()
	if result := CheckEndpoint(context.Background(), "broker", addr, "5672"); result.Passed {
		t.Fatal("expected closed endpoint to fail")
	}
	if result := CheckEndpoint(context.Background(), "broker", "", "5672"); result.Passed {
		t.Fatal("expected empty endpoint to fail")
	}
}

func TestDialAddressDefaults(t *testing.T) {
	tests := []struct {
		endpoint, port, want string
	}{
		{"nats://localhost", "4222", "localhost:4222"},
		{"nats://a:4223,nats://b:4223", "4222", "a:4223"},
		{"nats://relay:secret@a:4223, nats://b:4223", "4222", "a:4223"},
		{"nats://a,nats://b:4223", "4222", "a:4222"},
		{"https://s3.amazonaws.com", "9000", "s3.amazonaws.com:443"},
		{"minio.local:9000", "80", "minio.local:9000"},
		{"minio.local", "80", "minio.local:80"},
	}
	for _, tc := range tests {
		got, err := dialAddress(tc.endpoint, tc.port)
		if err != nil {
			t.Fatalf("dialAddress(%q): %v", tc.endpoint, err)
		}
		if got != tc.want {
			t.Fatalf("dialAddress(%q) = %q, want %q", tc.endpoint, got, tc.want)
		}
	}
}

func TestRunAllFlagsMissingWatchDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WatchDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.StateDir = t.TempDir()

	results := RunAll(context.Background(), &cfg)
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Watch directory" {
		t.Fatalf("expected only watch directory to fail, got %+v", failed)
	}
}
