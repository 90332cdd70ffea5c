package queue

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const messageColumns = "id, queue_name, message_id, label, content_type, body, status, lock_token, locked_until, delivery_count, dead_letter_reason, enqueued_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec         Record
		status      string
		lockToken   sql.NullString
		lockedUntil sql.NullInt64
		reason      sql.NullString
		enqueuedRaw string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&rec.RowID,
		&rec.Queue,
		&rec.Message.ID,
		&rec.Message.Label,
		&rec.Message.ContentType,
		&rec.Message.Body,
		&status,
		&lockToken,
		&lockedUntil,
		&rec.Message.DeliveryCount,
		&reason,
		&enqueuedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.Message.LockToken = LockToken(lockToken.String)
	if lockedUntil.Valid {
		rec.LockedUntil = time.UnixMilli(lockedUntil.Int64)
	}
	rec.DeadLetterReason = reason.String
	if enqueued, err := parseTimeString(enqueuedRaw); err == nil {
		rec.Message.EnqueuedAt = enqueued
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// makePlaceholders returns "?,?,?" for count parameters.
func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
