package objectstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filerelay/internal/objectstore"
	"filerelay/internal/services"
	"filerelay/internal/testsupport"
)

func TestObjectKeyUsesNFCBaseName(t *testing.T) {
	decomposed := "/watch/cafe\u0301.txt"
	if got, want := objectstore.ObjectKey(decomposed), "caf\u00e9.txt"; got != want {
		t.Fatalf("ObjectKey = %q, want %q", got, want)
	}
	if got := objectstore.ObjectKey("/watch/report.txt"); got != "report.txt" {
		t.Fatalf("ObjectKey = %q, want report.txt", got)
	}
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"", " ", ".", "..", "a/b", `a\b`} {
		if err := objectstore.ValidateKey(key); !errors.Is(err, services.ErrData) {
			t.Fatalf("ValidateKey(%q) = %v, want ErrData", key, err)
		}
	}
	if err := objectstore.ValidateKey("report.txt"); err != nil {
		t.Fatalf("ValidateKey(report.txt): %v", err)
	}
}

func TestFilesystemStoreUpsert(t *testing.T) {
	root := t.TempDir()
	store, err := objectstore.NewFilesystemStore(root, nil)
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	ctx := context.Background()

	if err := store.UpsertObject(ctx, "processed-files", "report.txt", strings.NewReader("abc"), 3, true); err == nil {
		t.Fatal("expected upload into a missing container to fail")
	}
	if err := store.EnsureContainer(ctx, "processed-files"); err != nil {
		t.Fatalf("EnsureContainer: %v", err)
	}

	for _, content := range []string{"abc", "abcdef"} {
		if err := store.UpsertObject(ctx, "processed-files", "report.txt", strings.NewReader(content), int64(len(content)), true); err != nil {
			t.Fatalf("UpsertObject: %v", err)
		}
		data, err := os.ReadFile(store.ObjectPath("processed-files", "report.txt"))
		if err != nil {
			t.Fatalf("read object: %v", err)
		}
		if string(data) != content {
			t.Fatalf("object content = %q, want %q", data, content)
		}
	}

	err = store.UpsertObject(ctx, "processed-files", "report.txt", strings.NewReader("x"), 1, false)
	if !errors.Is(err, services.ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "processed-files"))
	if err != nil {
		t.Fatalf("read container: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the object in the container, got %d entries", len(entries))
	}
}

func TestOpenFilesystemCreatesContainer(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	uploader, err := objectstore.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := uploader.(*objectstore.FilesystemStore); !ok {
		t.Fatalf("expected filesystem store, got %T", uploader)
	}
	info, err := os.Stat(filepath.Join(cfg.Storage.ConnectionString, cfg.Storage.Container))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected container directory, stat err = %v", err)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.Backend = "ftp"
	if _, err := objectstore.Open(context.Background(), cfg, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
