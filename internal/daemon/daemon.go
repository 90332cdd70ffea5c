package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"filerelay/internal/config"
	"filerelay/internal/consumer"
	"filerelay/internal/logging"
	"filerelay/internal/producer"
)

// Daemon runs the producer and consumer for one role and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	producer *producer.Producer
	consumer *consumer.Consumer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	started atomic.Pointer[time.Time]
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Role         string
	PID          int
	LockFilePath string
	StartedAt    time.Time
	InFlight     int
	Scanned      bool
	LastScan     producer.ScanResult
	LastScanErr  error
}

// New constructs a daemon. The producer is required for roles that scan and
// the consumer for roles that upload; the daemon takes ownership of both.
func New(cfg *config.Config, p *producer.Producer, c *consumer.Consumer, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if cfg.RunsProducer() && p == nil {
		return nil, fmt.Errorf("role %q requires a producer", cfg.Daemon.Role)
	}
	if cfg.RunsConsumer() && c == nil {
		return nil, fmt.Errorf("role %q requires a consumer", cfg.Daemon.Role)
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		producer: p,
		consumer: c,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, subscribes the consumer, then starts the
// producer loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another filerelay daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.consumer != nil {
		if err := d.consumer.Start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start consumer: %w", err)
		}
	}
	if d.producer != nil {
		if err := d.producer.Start(runCtx); err != nil {
			cancel()
			if d.consumer != nil {
				_ = d.consumer.Close()
			}
			_ = d.lock.Unlock()
			return fmt.Errorf("start producer: %w", err)
		}
	}

	d.cancel = cancel
	now := time.Now()
	d.started.Store(&now)
	d.running.Store(true)
	d.logger.Info("filerelay daemon started",
		logging.String("role", d.cfg.Daemon.Role),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop cancels intake, waits for the producer's current scan and the
// consumer's in-flight handlers, then releases the lock. If ctx expires
// first, Stop returns its error while the drain continues in the background.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return nil
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	done := make(chan error, 1)
	go func() {
		var errs []error
		if d.producer != nil {
			d.producer.Stop()
			errs = append(errs, d.producer.Close())
		}
		if d.consumer != nil {
			errs = append(errs, d.consumer.Close())
		}
		done <- errors.Join(errs...)
	}()

	var drainErr error
	select {
	case drainErr = <-done:
	case <-ctx.Done():
		logging.WarnWithContext(d.logger, "shutdown deadline reached before handlers drained",
			"daemon_drain_timeout",
			logging.Int("in_flight", d.inFlight()),
			logging.String(logging.FieldErrorHint, "raise daemon.shutdown_timeout"),
			logging.String(logging.FieldImpact, "unsettled messages are redelivered after the visibility timeout"),
		)
		drainErr = fmt.Errorf("drain handlers: %w", ctx.Err())
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("filerelay daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return drainErr
}

// Close stops the daemon without a deadline and releases components that
// were never started.
func (d *Daemon) Close() error {
	errs := []error{d.Stop(context.Background())}
	if d.producer != nil {
		errs = append(errs, d.producer.Close())
	}
	if d.consumer != nil {
		errs = append(errs, d.consumer.Close())
	}
	return errors.Join(errs...)
}

func (d *Daemon) inFlight() int {
	if d.consumer == nil {
		return 0
	}
	return d.consumer.InFlight()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Role:         d.cfg.Daemon.Role,
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		InFlight:     d.inFlight(),
	}
	if started := d.started.Load(); started != nil {
		status.StartedAt = *started
	}
	if d.producer != nil {
		status.LastScan, status.Scanned = d.producer.LastScan()
		status.LastScanErr = d.producer.LastError()
	}
	return status
}
