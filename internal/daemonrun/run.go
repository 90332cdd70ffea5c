package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/google/uuid"

	"filerelay/internal/config"
	"filerelay/internal/consumer"
	"filerelay/internal/daemon"
	"filerelay/internal/logging"
	"filerelay/internal/metrics"
	"filerelay/internal/notifications"
	"filerelay/internal/objectstore"
	"filerelay/internal/preflight"
	"filerelay/internal/producer"
	"filerelay/internal/queueaccess"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipPreflight disables the startup environment checks.
	SkipPreflight bool
}

// Run starts the filerelay daemon and blocks until SIGINT/SIGTERM or until
// cmdCtx is cancelled, then drains within the configured shutdown timeout.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := uuid.NewString()
	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("filerelay-%s.log", stamp))

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
		RunID:       runID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if !opts.SkipPreflight {
		if err := runPreflight(cmdCtx, cfg, logger); err != nil {
			return err
		}
	}

	m := metrics.New()
	d, err := Build(cmdCtx, cfg, logger, m)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon assembly failed", "daemon_build_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check [queue] and [storage] connection settings"),
		)
		return err
	}

	// Everything below touches state shared with a running instance, so it
	// waits until Start holds the instance lock.
	if err := d.Start(cmdCtx); err != nil {
		_ = d.Close()
		return fmt.Errorf("start daemon: %w", err)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		_ = d.Close()
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		logger.Warn("unable to update filerelay.log link", logging.Error(err))
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "filerelay-*.log", Exclude: []string{logPath}},
	)

	var metricsServer *metrics.Server
	if bind := strings.TrimSpace(cfg.Metrics.Bind); bind != "" {
		metricsServer, err = metrics.Listen(bind, m, logger)
		if err != nil {
			_ = d.Close()
			return err
		}
	}

	notifier := notifications.NewService(cfg)
	stop := func(ctx context.Context) error {
		logger.Info("filerelay daemon shutting down",
			logging.Duration("timeout", cfg.ShutdownTimeout()),
			logging.String(logging.FieldEventType, "daemon_shutdown"),
		)
		err := d.Stop(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			notifyCtx, cancel := context.WithTimeout(context.Background(), cfg.NotificationTimeout())
			if nerr := notifier.Publish(notifyCtx, notifications.EventDrainTimedOut, notifications.Payload{
				"in_flight": d.Status().InFlight,
			}); nerr != nil {
				logger.Warn("drain timeout notification failed", logging.Error(nerr))
			}
			cancel()
		}
		if metricsServer != nil {
			err = errors.Join(err, metricsServer.Shutdown(ctx))
		}
		return err
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout(), map[string]gfshutdown.Operation{
		"filerelay-daemon": stop,
	})

	select {
	case code := <-wait:
		if code != 0 {
			return fmt.Errorf("shutdown did not complete cleanly (exit code %d)", code)
		}
		return nil
	case <-cmdCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return stop(ctx)
	}
}

// Build opens the queue and object store handles the configured role needs
// and assembles the daemon. The daemon owns every handle it is given.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*daemon.Daemon, error) {
	var (
		p *producer.Producer
		c *consumer.Consumer
	)
	if cfg.RunsProducer() {
		sender, err := queueaccess.OpenSender(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("open queue sender: %w", err)
		}
		p = producer.New(cfg, sender, logger, m)
	}
	if cfg.RunsConsumer() {
		uploader, err := objectstore.Open(ctx, cfg, logger)
		if err != nil {
			closeProducer(p)
			return nil, fmt.Errorf("open object store: %w", err)
		}
		receiver, err := queueaccess.OpenReceiver(ctx, cfg, logger)
		if err != nil {
			closeProducer(p)
			return nil, fmt.Errorf("open queue receiver: %w", err)
		}
		c = consumer.New(cfg, receiver, uploader, logger, m)
	}
	d, err := daemon.New(cfg, p, c, logger)
	if err != nil {
		closeProducer(p)
		if c != nil {
			_ = c.Close()
		}
		return nil, err
	}
	return d, nil
}

func closeProducer(p *producer.Producer) {
	if p != nil {
		_ = p.Close()
	}
}

func runPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg)
	for _, result := range results {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
	if failed := preflight.Failed(results); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, f := range failed {
			names = append(names, f.Name)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}
	return nil
}

func shutdownMetrics(s *metrics.Server) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Shutdown(ctx)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "filerelay.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
