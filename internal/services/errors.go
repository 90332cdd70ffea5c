package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures expected to clear on redelivery (I/O, network, broker hiccups).
	ErrTransient = errors.New("transient failure")
	// ErrFileLocked marks a source file that another process still holds open.
	ErrFileLocked = errors.New("file locked")
	// ErrData marks a message whose contents cannot be acted on.
	ErrData = errors.New("invalid message data")
	// ErrAlreadyProcessed marks a message whose source file no longer exists.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrBrokerDelivery marks a failure reported by the queue service itself.
	ErrBrokerDelivery = errors.New("broker delivery failure")
	// ErrConfiguration marks an unusable configuration or missing collaborator.
	ErrConfiguration = errors.New("configuration error")
	// ErrObjectExists is returned by object stores asked not to overwrite an existing key.
	ErrObjectExists = errors.New("object already exists")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Disposition is what the consumer does with a message after handling it.
type Disposition string

const (
	// DispositionComplete acknowledges the message so it is never redelivered.
	DispositionComplete Disposition = "complete"
	// DispositionRedeliver leaves the message unsettled so the visibility
	// timeout returns it to the queue.
	DispositionRedeliver Disposition = "redeliver"
)

// FailureDisposition maps a handling error to a settlement decision. Only a
// missing source file is treated as done; every other failure is retried.
func FailureDisposition(err error) Disposition {
	switch {
	case err == nil, errors.Is(err, ErrAlreadyProcessed):
		return DispositionComplete
	default:
		return DispositionRedeliver
	}
}

// Reason returns a short machine-friendly label for the marker carried by err.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrFileLocked):
		return "file_locked"
	case errors.Is(err, ErrData):
		return "invalid_data"
	case errors.Is(err, ErrBrokerDelivery):
		return "broker"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "transient"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
