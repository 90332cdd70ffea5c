package minio

import (
	"errors"
	"testing"

	"filerelay/internal/services"
)

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		endpoint   string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"localhost:9000", false, "localhost:9000", false},
		{"localhost:9000/", true, "localhost:9000", true},
		{"http://minio.local:9000", false, "minio.local:9000", false},
		{"https://minio.example.com", false, "minio.example.com", true},
	}
	for _, tc := range tests {
		host, secure, err := splitEndpoint(tc.endpoint, tc.useSSL)
		if err != nil {
			t.Fatalf("splitEndpoint(%q): %v", tc.endpoint, err)
		}
		if host != tc.wantHost || secure != tc.wantSecure {
			t.Fatalf("splitEndpoint(%q) = (%q, %v), want (%q, %v)", tc.endpoint, host, secure, tc.wantHost, tc.wantSecure)
		}
	}
}

func TestNewRejectsEmptyEndpoint(t *testing.T) {
	_, err := New(Options{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
