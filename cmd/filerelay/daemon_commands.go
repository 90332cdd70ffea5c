package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filerelay/internal/config"
	"filerelay/internal/daemonctl"
	"filerelay/internal/logging"
	"filerelay/internal/logs"
	"filerelay/internal/queueaccess"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p := newStatusPrinter(cmd.OutOrStdout())

			running, pid, err := daemonctl.ProcessInfo(cfg)
			if err != nil {
				return err
			}
			p.section("Daemon")
			switch {
			case running && pid > 0:
				p.line("Daemon", levelOK, "running (pid "+strconv.Itoa(pid)+")")
			case running:
				p.line("Daemon", levelWarn, "running (pid unknown)")
			default:
				p.line("Daemon", levelInfo, "not running")
			}
			p.line("Role", levelInfo, cfg.Daemon.Role)
			p.line("Watch dir", levelInfo, cfg.Paths.WatchDir)
			p.line("Queue", levelInfo, cfg.Queue.Backend+" / "+cfg.Queue.Name)
			p.line("Storage", levelInfo, cfg.Storage.Backend+" / "+cfg.Storage.Container)

			if cfg.Queue.Backend != config.QueueBackendSQLite {
				return nil
			}
			session, err := queueaccess.OpenAdmin(cfg)
			if err != nil {
				p.line("Backlog", levelError, err.Error())
				return nil
			}
			defer session.Close()
			stats, err := session.Admin.Stats(cmd.Context())
			if err != nil {
				p.line("Backlog", levelError, err.Error())
				return nil
			}
			backlog := levelOK
			if stats.Dead > 0 {
				backlog = levelWarn
			}
			p.line("Backlog", backlog, fmt.Sprintf("%s visible, %s locked, %s dead-lettered",
				humanize.Comma(int64(stats.Visible)),
				humanize.Comma(int64(stats.Locked)),
				humanize.Comma(int64(stats.Dead)),
			))
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var (
		force   bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Send SIGTERM to the running daemon and wait for it to finish draining
in-flight messages. With --force, a daemon that has not exited when the
timeout elapses is killed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = cfg.ShutdownTimeout() + 5*time.Second
			}
			result, err := daemonctl.Stop(cmd.Context(), cfg, timeout, force)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon (pid %d) killed after %s\n", result.PID, timeout)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon (pid %d) stopped\n", result.PID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Kill the daemon if it does not stop in time")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "How long to wait for a graceful stop (defaults to the shutdown timeout plus 5s)")
	return cmd
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		messageID string
		label     string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the current daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var matchers []logs.Matcher
			if id := strings.TrimSpace(messageID); id != "" {
				matchers = append(matchers, logs.FieldMatcher(logging.FieldMessageID, id))
			}
			if l := strings.TrimSpace(label); l != "" {
				matchers = append(matchers, logs.FieldMatcher(logging.FieldLabel, l))
			}
			opts := logs.Options{Lines: lines, Follow: follow}
			if len(matchers) > 0 {
				opts.Match = logs.All(matchers...)
			}

			runCtx := cmd.Context()
			if follow {
				var stop func()
				runCtx, stop = signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
			}
			path := filepath.Join(cfg.Paths.LogDir, "filerelay.log")
			return logs.Stream(runCtx, path, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show (0 for the whole file)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new log lines")
	cmd.Flags().StringVar(&messageID, "message", "", "Only show lines for this message ID")
	cmd.Flags().StringVar(&label, "label", "", "Only show lines for this file label")
	return cmd
}
