package services_test

import (
	"errors"
	"strings"
	"testing"

	"filerelay/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "consumer", "upload", "put object failed", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"consumer", "upload", "put object failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestFailureDisposition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Disposition
	}{
		{"success", nil, services.DispositionComplete},
		{"already processed", services.Wrap(services.ErrAlreadyProcessed, "consumer", "probe", "gone", nil), services.DispositionComplete},
		{"locked", services.Wrap(services.ErrFileLocked, "consumer", "probe", "in use", nil), services.DispositionRedeliver},
		{"data", services.Wrap(services.ErrData, "consumer", "label", "empty", nil), services.DispositionRedeliver},
		{"transient", errors.New("network"), services.DispositionRedeliver},
	}
	for _, tc := range tests {
		if got := services.FailureDisposition(tc.err); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestReasonLabels(t *testing.T) {
	if got := services.Reason(services.Wrap(services.ErrFileLocked, "", "", "x", nil)); got != "file_locked" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := services.Reason(errors.New("io")); got != "transient" {
		t.Fatalf("unexpected reason %q", got)
	}
}
