package producer

import (
	"encoding/json"
	"fmt"
	"time"

	"filerelay/internal/queue"
)

// ContentType is the content type of notification bodies.
const ContentType = "application/json"

// FileDescriptor describes one file found by a scan.
type FileDescriptor struct {
	Path       string
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// Notification is the JSON body of a file message. The label carries the
// same path; the rest is for operators and logs.
type Notification struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NewMessage builds the queue message announcing file.
func NewMessage(file FileDescriptor) (queue.Message, error) {
	body, err := json.Marshal(Notification{
		Path:       file.Path,
		Name:       file.Name,
		Size:       file.Size,
		ModifiedAt: file.ModifiedAt.UTC(),
	})
	if err != nil {
		return queue.Message{}, fmt.Errorf("encode notification: %w", err)
	}
	return queue.Message{
		Body:        body,
		ContentType: ContentType,
		Label:       file.Path,
	}, nil
}

// DecodeNotification parses a message body written by NewMessage.
func DecodeNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}
