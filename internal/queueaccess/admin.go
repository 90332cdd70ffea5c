package queueaccess

import (
	"context"
	"fmt"

	"filerelay/internal/config"
	"filerelay/internal/queue"
	"filerelay/internal/services"
)

// Admin exposes queue maintenance for one queue.
type Admin interface {
	Stats(ctx context.Context) (queue.Stats, error)
	List(ctx context.Context, status queue.Status, limit int) ([]queue.Record, error)
	Purge(ctx context.Context, includeDead bool) (int64, error)
	RequeueDead(ctx context.Context, ids ...int64) (int64, error)
}

// Session represents a queue admin handle and its cleanup function.
type Session struct {
	Admin Admin
	close func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenAdmin opens maintenance access. Only the SQLite backend keeps messages
// where filerelay can inspect them; brokers have their own tooling.
func OpenAdmin(cfg *config.Config) (Session, error) {
	if cfg.Queue.Backend != config.QueueBackendSQLite {
		return Session{}, services.Wrap(services.ErrConfiguration, "queueaccess", "open admin",
			fmt.Sprintf("queue maintenance is only available for the sqlite backend (configured: %s)", cfg.Queue.Backend), nil)
	}
	store, err := queue.Open(cfg.Queue.ConnectionString)
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Admin: &storeAdmin{store: store, queue: cfg.Queue.Name},
		close: store.Close,
	}, nil
}

type storeAdmin struct {
	store *queue.Store
	queue string
}

func (a *storeAdmin) Stats(ctx context.Context) (queue.Stats, error) {
	return a.store.Stats(ctx, a.queue)
}

func (a *storeAdmin) List(ctx context.Context, status queue.Status, limit int) ([]queue.Record, error) {
	return a.store.List(ctx, a.queue, status, limit)
}

func (a *storeAdmin) Purge(ctx context.Context, includeDead bool) (int64, error) {
	return a.store.Purge(ctx, a.queue, includeDead)
}

func (a *storeAdmin) RequeueDead(ctx context.Context, ids ...int64) (int64, error) {
	return a.store.RequeueDead(ctx, a.queue, ids...)
}
