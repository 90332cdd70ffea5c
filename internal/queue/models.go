package queue

import "time"

// Status is the storage state of a queued message.
type Status string

const (
	// StatusActive messages are deliverable (possibly locked by a receiver).
	StatusActive Status = "active"
	// StatusDead messages were dead-lettered and are never delivered.
	StatusDead Status = "dead"
)

// Record is a stored message plus broker bookkeeping, used by maintenance commands.
type Record struct {
	RowID            int64
	Queue            string
	Message          Message
	Status           Status
	LockedUntil      time.Time
	DeadLetterReason string
	UpdatedAt        time.Time
}

// Locked reports whether the record is held by a receiver at now.
func (r Record) Locked(now time.Time) bool {
	return r.Status == StatusActive && r.Message.LockToken != "" && r.LockedUntil.After(now)
}

// Stats summarizes one queue.
type Stats struct {
	Queue          string
	Visible        int
	Locked         int
	Dead           int
	Bytes          int64
	OldestEnqueued time.Time
}
