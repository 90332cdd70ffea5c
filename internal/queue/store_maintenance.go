package queue

import (
	"context"
	"database/sql"
	"fmt"
)

// Stats summarizes the named queue.
func (s *Store) Stats(ctx context.Context, queueName string) (Stats, error) {
	ctx = ensureContext(ctx)
	now := s.now().UnixMilli()
	stats := Stats{Queue: queueName}
	var (
		visible, locked, dead sql.NullInt64
		bytes                 sql.NullInt64
		oldest                sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT
		     SUM(CASE WHEN status = ? AND (locked_until IS NULL OR locked_until <= ?) THEN 1 ELSE 0 END),
		     SUM(CASE WHEN status = ? AND locked_until > ? THEN 1 ELSE 0 END),
		     SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
		     SUM(LENGTH(body)),
		     MIN(CASE WHEN status = ? THEN enqueued_at END)
		 FROM messages WHERE queue_name = ?`,
		string(StatusActive), now, string(StatusActive), now, string(StatusDead), string(StatusActive), queueName,
	).Scan(&visible, &locked, &dead, &bytes, &oldest)
	if err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}
	stats.Visible = int(visible.Int64)
	stats.Locked = int(locked.Int64)
	stats.Dead = int(dead.Int64)
	stats.Bytes = bytes.Int64
	if oldest.Valid {
		if t, err := parseTimeString(oldest.String); err == nil {
			stats.OldestEnqueued = t
		}
	}
	return stats, nil
}

// List returns up to limit records of the named queue in delivery order. An
// empty status lists every record.
func (s *Store) List(ctx context.Context, queueName string, status Status, limit int) ([]Record, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + messageColumns + " FROM messages WHERE queue_name = ?"
	args := []any{queueName}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Purge deletes messages of the named queue that are not currently locked.
// Dead-lettered messages are removed only when includeDead is set.
func (s *Store) Purge(ctx context.Context, queueName string, includeDead bool) (int64, error) {
	query := `DELETE FROM messages WHERE queue_name = ? AND (
	              (status = ? AND (locked_until IS NULL OR locked_until <= ?))`
	args := []any{queueName, string(StatusActive), s.now().UnixMilli()}
	if includeDead {
		query += " OR status = ?"
		args = append(args, string(StatusDead))
	}
	query += ")"
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge queue: %w", err)
	}
	return res.RowsAffected()
}

// RequeueDead returns dead-lettered messages to delivery with a reset delivery
// count. With no ids, every dead message of the queue is requeued.
func (s *Store) RequeueDead(ctx context.Context, queueName string, ids ...int64) (int64, error) {
	query := `UPDATE messages
	          SET status = ?, dead_letter_reason = NULL, delivery_count = 0, lock_token = NULL, locked_until = NULL, updated_at = ?
	          WHERE queue_name = ? AND status = ?`
	args := []any{string(StatusActive), formatTime(s.now()), queueName, string(StatusDead)}
	if len(ids) > 0 {
		query += " AND id IN (" + makePlaceholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue dead messages: %w", err)
	}
	return res.RowsAffected()
}
