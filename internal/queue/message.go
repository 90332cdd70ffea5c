package queue

import (
	"context"
	"errors"
	"time"
)

// LockToken is the opaque handle a receiver uses to settle a delivered message.
type LockToken string

// Message is a queued unit of work. Label, ContentType, and Body are set by
// the sender; ID, LockToken, DeliveryCount, and EnqueuedAt are filled in by
// the broker.
type Message struct {
	ID            string
	Body          []byte
	ContentType   string
	Label         string
	LockToken     LockToken
	DeliveryCount int
	EnqueuedAt    time.Time
}

// Handler processes one delivered message. A returned error is reported to
// HandlerOptions.ExceptionReceived; it never stops the receiver.
type Handler func(ctx context.Context, msg *Message) error

// Exception actions reported to ExceptionReceived.
const (
	ActionUserCallback = "UserCallback"
	ActionReceive      = "Receive"
	ActionComplete     = "Complete"
	ActionAbandon      = "Abandon"
	ActionConnection   = "Connection"
)

// ExceptionContext identifies where a receive-side failure happened.
type ExceptionContext struct {
	Endpoint   string
	EntityPath string
	Action     string
}

// ExceptionEvent is delivered to the exception callback for handler and broker failures.
type ExceptionEvent struct {
	Err     error
	Context ExceptionContext
}

// HandlerOptions configures message pump behaviour.
type HandlerOptions struct {
	// MaxConcurrentCalls bounds in-flight handler invocations; values below 1 mean 1.
	MaxConcurrentCalls int
	// AutoComplete completes messages whose handler returned nil and abandons
	// the rest. When false the handler settles messages itself.
	AutoComplete      bool
	ExceptionReceived func(ExceptionEvent)
}

// Sender publishes messages to one queue.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Settler settles delivered messages by lock token.
type Settler interface {
	Complete(ctx context.Context, token LockToken) error
	Abandon(ctx context.Context, token LockToken) error
}

// Receiver delivers messages from one queue to a registered handler.
//
// Close stops intake, waits for in-flight handlers to return, and releases
// the connection. Settlement calls remain valid until Close returns.
type Receiver interface {
	Settler
	RegisterHandler(ctx context.Context, handler Handler, opts HandlerOptions) error
	DeadLetter(ctx context.Context, token LockToken, reason string) error
	Close() error
}

var (
	// ErrLockLost is returned when settling a message whose lock expired or was never issued.
	ErrLockLost = errors.New("message lock lost")
	// ErrClosed is returned by operations on a closed sender or receiver.
	ErrClosed = errors.New("queue handle closed")
	// ErrHandlerRegistered is returned when RegisterHandler is called twice.
	ErrHandlerRegistered = errors.New("message handler already registered")
)
