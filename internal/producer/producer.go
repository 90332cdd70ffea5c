package producer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"filerelay/internal/config"
	"filerelay/internal/logging"
	"filerelay/internal/metrics"
	"filerelay/internal/queue"
	"filerelay/internal/services"
)

// ScanResult summarizes one scan.
type ScanResult struct {
	Discovered int
	Sent       int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Producer announces files in one directory on a fixed interval.
type Producer struct {
	dir         string
	interval    time.Duration
	sendTimeout time.Duration
	sender      queue.Sender
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastScan  ScanResult
	scanned   bool
	lastErr   error
	closeOnce sync.Once
	closeErr  error
}

// New builds a producer for cfg.Paths.WatchDir. The producer owns sender
// and closes it when its loop ends or Close is called.
func New(cfg *config.Config, sender queue.Sender, logger *slog.Logger, m *metrics.Metrics) *Producer {
	return &Producer{
		dir:         cfg.Paths.WatchDir,
		interval:    cfg.ScanInterval(),
		sendTimeout: cfg.SendTimeout(),
		sender:      sender,
		logger:      logging.NewComponentLogger(logger, "producer"),
		metrics:     m,
	}
}

// ScanOnce lists the directory and sends one message per regular file. The
// error is non-nil only when the directory itself cannot be listed. Sends
// already underway finish even if ctx is cancelled.
func (p *Producer) ScanOnce(ctx context.Context) (ScanResult, error) {
	result := ScanResult{StartedAt: time.Now()}
	files, err := p.list()
	if err != nil {
		result.FinishedAt = time.Now()
		p.record(result, err)
		logging.WarnWithContext(p.logger, "directory scan failed; no files announced",
			"scan_failed",
			logging.String(logging.FieldPath, p.dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the watch directory exists and is readable"),
			logging.String(logging.FieldImpact, "new files wait for the next successful scan"),
		)
		return result, err
	}

	result.Discovered = len(files)
	sendCtx := context.WithoutCancel(ctx)
	for _, file := range files {
		if err := p.send(sendCtx, file); err != nil {
			result.Failed++
			logging.WarnWithContext(p.logger, "message send failed; file will be announced on the next scan",
				"message_send_failed",
				logging.String(logging.FieldLabel, file.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue connectivity"),
				logging.String(logging.FieldImpact, "file processing is delayed by one scan interval"),
			)
			continue
		}
		result.Sent++
	}
	result.FinishedAt = time.Now()
	p.record(result, nil)

	level := slog.LevelDebug
	if result.Discovered > 0 {
		level = slog.LevelInfo
	}
	p.logger.Log(ctx, level, "directory scan complete",
		logging.String(logging.FieldPath, p.dir),
		logging.Int("discovered", result.Discovered),
		logging.Int("sent", result.Sent),
		logging.Int("failed", result.Failed),
		logging.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
		logging.String(logging.FieldEventType, "scan_complete"),
	)
	return result, nil
}

// list returns the regular files directly inside the directory. Entries that
// disappear between listing and stat are skipped.
func (p *Producer) list() ([]FileDescriptor, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "producer", "list", p.dir, err)
	}
	files := make([]FileDescriptor, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(p.dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				p.logger.Debug("skipping unreadable entry", logging.String(logging.FieldPath, path), logging.Error(err))
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		files = append(files, FileDescriptor{
			Path:       abs,
			Name:       entry.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	return files, nil
}

func (p *Producer) send(ctx context.Context, file FileDescriptor) error {
	msg, err := NewMessage(file)
	if err != nil {
		return err
	}
	msg.ID = uuid.NewString()

	if p.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.sendTimeout)
		defer cancel()
	}
	if err := p.sender.Send(ctx, msg); err != nil {
		return err
	}
	p.logger.Debug("message sent",
		logging.String(logging.FieldMessageID, msg.ID),
		logging.String(logging.FieldLabel, msg.Label),
		logging.Int64("size", file.Size),
		logging.String(logging.FieldEventType, "message_sent"),
	)
	return nil
}

func (p *Producer) record(result ScanResult, err error) {
	p.mu.Lock()
	p.lastScan = result
	p.scanned = true
	p.lastErr = err
	p.mu.Unlock()
	p.metrics.ObserveScan(result.Discovered, result.Sent, result.Failed)
}

// Run scans immediately and then on every interval until ctx is done. It
// closes the sender before returning.
func (p *Producer) Run(ctx context.Context) error {
	defer func() {
		if err := p.Close(); err != nil {
			p.logger.Warn("queue sender close failed", logging.Error(err))
		}
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, _ = p.ScanOnce(ctx)
		if !p.waitForNextScan(ctx) {
			return nil
		}
	}
}

func (p *Producer) waitForNextScan(ctx context.Context) bool {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Start runs the loop in the background.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("producer already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.Run(runCtx)
	}()
	p.logger.Info("producer started",
		logging.String(logging.FieldPath, p.dir),
		logging.Duration("scan_interval", p.interval),
		logging.String(logging.FieldEventType, "producer_started"),
	)
	return nil
}

// Stop cancels the loop and waits for the scan in progress to finish.
func (p *Producer) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("producer stopped", logging.String(logging.FieldEventType, "producer_stopped"))
}

// Close releases the sender. Repeated calls return the first result.
func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		if err := p.sender.Close(); err != nil {
			p.closeErr = fmt.Errorf("close queue sender: %w", err)
		}
	})
	return p.closeErr
}

// LastScan returns the most recent scan result; ok is false before the
// first scan.
func (p *Producer) LastScan() (ScanResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastScan, p.scanned
}

// LastError returns the listing error of the most recent scan.
func (p *Producer) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Running reports whether the loop is active.
func (p *Producer) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
