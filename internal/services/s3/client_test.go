package s3_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"filerelay/internal/services"
	"filerelay/internal/services/s3"
)

type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: map[string]bool{}, objects: map[string]string{}}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case len(parts) == 2 && r.Method == http.MethodPut:
		key := bucket + "/" + parts[1]
		if r.Header.Get("If-None-Match") == "*" {
			if _, exists := f.objects[key]; exists {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusPreconditionFailed)
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>PreconditionFailed</Code><Message>At least one of the pre-conditions you specified did not hold</Message></Error>`)
				return
			}
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = string(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) object(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[key]
	return v, ok
}

func newClient(t *testing.T, server *httptest.Server) *s3.Client {
	t.Helper()
	client, err := s3.New(context.Background(), s3.Options{
		Endpoint:  server.URL,
		Region:    "us-east-1",
		AccessKey: "test",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatalf("s3.New: %v", err)
	}
	return client
}

func TestEnsureContainerCreatesMissingBucket(t *testing.T) {
	fake := newFakeS3()
	server := httptest.NewServer(fake)
	defer server.Close()
	client := newClient(t, server)

	if err := client.EnsureContainer(context.Background(), "processed-files"); err != nil {
		t.Fatalf("EnsureContainer: %v", err)
	}
	if !fake.buckets["processed-files"] {
		t.Fatal("expected bucket to be created")
	}
	if err := client.EnsureContainer(context.Background(), "processed-files"); err != nil {
		t.Fatalf("EnsureContainer on existing bucket: %v", err)
	}
}

func TestUpsertObjectWritesAndOverwrites(t *testing.T) {
	fake := newFakeS3()
	server := httptest.NewServer(fake)
	defer server.Close()
	client := newClient(t, server)
	ctx := context.Background()

	for _, content := range []string{"abc", "abcd"} {
		if err := client.UpsertObject(ctx, "processed-files", "report.txt", bytes.NewReader([]byte(content)), int64(len(content)), true); err != nil {
			t.Fatalf("UpsertObject(%q): %v", content, err)
		}
		got, ok := fake.object("processed-files/report.txt")
		if !ok || !strings.Contains(got, content) {
			t.Fatalf("stored object = %q, want it to contain %q", got, content)
		}
	}
}

func TestUpsertObjectWithoutOverwriteReportsExisting(t *testing.T) {
	fake := newFakeS3()
	server := httptest.NewServer(fake)
	defer server.Close()
	client := newClient(t, server)
	ctx := context.Background()

	if err := client.UpsertObject(ctx, "processed-files", "a.txt", bytes.NewReader([]byte("1")), 1, false); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	err := client.UpsertObject(ctx, "processed-files", "a.txt", bytes.NewReader([]byte("2")), 1, false)
	if !errors.Is(err, services.ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}
}
