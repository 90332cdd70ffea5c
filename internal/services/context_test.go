package services_test

import (
	"context"
	"testing"

	"filerelay/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithMessageID(ctx, "msg-42")
	ctx = services.WithDeliveryCount(ctx, 3)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.MessageIDFromContext(ctx); !ok || id != "msg-42" {
		t.Fatalf("unexpected message id: %v %v", id, ok)
	}
	if count, ok := services.DeliveryCountFromContext(ctx); !ok || count != 3 {
		t.Fatalf("unexpected delivery count: %v %v", count, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithMessageID(ctx, "")
	ctx = services.WithDeliveryCount(ctx, 0)
	if _, ok := services.MessageIDFromContext(ctx); ok {
		t.Fatal("expected no message id")
	}
	if _, ok := services.DeliveryCountFromContext(ctx); ok {
		t.Fatal("expected no delivery count")
	}
}
