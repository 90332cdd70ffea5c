package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enqueue appends msg to the named queue. A missing message ID is generated.
// The stored message, with ID and EnqueuedAt populated, is returned.
func (s *Store) Enqueue(ctx context.Context, queueName string, msg Message) (Message, error) {
	if queueName == "" {
		return Message{}, errors.New("queue name is required")
	}
	now := s.now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.LockToken = ""
	msg.DeliveryCount = 0
	msg.EnqueuedAt = now.UTC()

	_, err := s.execWithRetry(ctx,
		`INSERT INTO messages (queue_name, message_id, label, content_type, body, status, enqueued_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		queueName, msg.ID, msg.Label, msg.ContentType, msg.Body, string(StatusActive), formatTime(now), formatTime(now),
	)
	if err != nil {
		return Message{}, fmt.Errorf("enqueue message: %w", err)
	}
	return msg, nil
}

// Claim locks the oldest visible message of the named queue for visibility
// and returns it with a fresh lock token and incremented delivery count. It
// returns nil when no message is visible. Claims are atomic across processes
// sharing the database.
func (s *Store) Claim(ctx context.Context, queueName string, visibility time.Duration) (*Message, error) {
	if visibility <= 0 {
		return nil, errors.New("visibility timeout must be positive")
	}
	ctx = ensureContext(ctx)
	now := s.now()
	token := uuid.NewString()

	var msg *Message
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE messages
			 SET lock_token = ?, locked_until = ?, delivery_count = delivery_count + 1, updated_at = ?
			 WHERE id = (
			     SELECT id FROM messages
			     WHERE queue_name = ? AND status = ? AND (locked_until IS NULL OR locked_until <= ?)
			     ORDER BY id
			     LIMIT 1
			 )
			 RETURNING message_id, label, content_type, body, delivery_count, enqueued_at`,
			token, now.Add(visibility).UnixMilli(), formatTime(now),
			queueName, string(StatusActive), now.UnixMilli(),
		)
		var (
			claimed     Message
			enqueuedRaw string
		)
		if err := row.Scan(&claimed.ID, &claimed.Label, &claimed.ContentType, &claimed.Body, &claimed.DeliveryCount, &enqueuedRaw); err != nil {
			return err
		}
		claimed.LockToken = LockToken(token)
		if enqueued, err := parseTimeString(enqueuedRaw); err == nil {
			claimed.EnqueuedAt = enqueued
		}
		msg = &claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim message: %w", err)
	}
	return msg, nil
}

// Complete removes the message held under token. It fails with ErrLockLost
// when the lock expired, which means another receiver may already hold it.
func (s *Store) Complete(ctx context.Context, token LockToken) error {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM messages WHERE lock_token = ? AND status = ? AND locked_until > ?`,
		string(token), string(StatusActive), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("complete message: %w", err)
	}
	return requireOneRow(res, token)
}

// Abandon releases the lock so the message is immediately visible again.
func (s *Store) Abandon(ctx context.Context, token LockToken) error {
	now := s.now()
	res, err := s.execWithRetry(ctx,
		`UPDATE messages SET lock_token = NULL, locked_until = NULL, updated_at = ?
		 WHERE lock_token = ? AND status = ? AND locked_until > ?`,
		formatTime(now), string(token), string(StatusActive), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("abandon message: %w", err)
	}
	return requireOneRow(res, token)
}

// DeadLetter moves the message held under token out of delivery.
func (s *Store) DeadLetter(ctx context.Context, token LockToken, reason string) error {
	now := s.now()
	res, err := s.execWithRetry(ctx,
		`UPDATE messages SET status = ?, dead_letter_reason = ?, lock_token = NULL, locked_until = NULL, updated_at = ?
		 WHERE lock_token = ? AND status = ? AND locked_until > ?`,
		string(StatusDead), nullableString(reason), formatTime(now), string(token), string(StatusActive), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("dead-letter message: %w", err)
	}
	return requireOneRow(res, token)
}

// RenewLock extends the lock held under token by visibility from now.
func (s *Store) RenewLock(ctx context.Context, token LockToken, visibility time.Duration) error {
	now := s.now()
	res, err := s.execWithRetry(ctx,
		`UPDATE messages SET locked_until = ?, updated_at = ?
		 WHERE lock_token = ? AND status = ? AND locked_until > ?`,
		now.Add(visibility).UnixMilli(), formatTime(now), string(token), string(StatusActive), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("renew message lock: %w", err)
	}
	return requireOneRow(res, token)
}

func requireOneRow(res sql.Result, token LockToken) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: token %s", ErrLockLost, token)
	}
	return nil
}
