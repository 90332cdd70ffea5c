package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveScan(t *testing.T) {
	m := New()
	m.ObserveScan(3, 2, 1)
	m.ObserveScan(1, 1, 0)

	if got := testutil.ToFloat64(m.scans); got != 2 {
		t.Fatalf("scans = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.filesDiscovered); got != 4 {
		t.Fatalf("files discovered = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.messagesSent.WithLabelValues("sent")); got != 3 {
		t.Fatalf("sent = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.messagesSent.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed = %v, want 1", got)
	}
}

func TestHandlerLifecycle(t *testing.T) {
	m := New()
	m.HandlerStarted()
	m.HandlerStarted()
	if got := testutil.ToFloat64(m.inFlight); got != 2 {
		t.Fatalf("in flight = %v, want 2", got)
	}
	m.HandlerFinished("completed", 10*time.Millisecond)
	m.HandlerFinished("deferred", time.Millisecond)
	m.AddUploadedBytes(3)
	m.AddUploadedBytes(-1)
	m.ObserveException("UserCallback")

	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.handlerOutcomes.WithLabelValues("completed")); got != 1 {
		t.Fatalf("completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.uploadedBytes); got != 3 {
		t.Fatalf("uploaded bytes = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(m.handlerDuration); got != 2 {
		t.Fatalf("duration series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.brokerExceptions.WithLabelValues("UserCallback")); got != 1 {
		t.Fatalf("exceptions = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveScan(1, 1, 0)
	m.HandlerStarted()
	m.HandlerFinished("completed", time.Second)
	m.AddUploadedBytes(10)
	m.ObserveException("Receive")
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestServerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveScan(1, 1, 0)
	srv, err := Listen("127.0.0.1:0", m, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "filerelay_scans_total 1") {
		t.Fatalf("expected scans counter in exposition, got:\n%s", body)
	}
}
