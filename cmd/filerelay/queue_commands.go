package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filerelay/internal/producer"
	"filerelay/internal/queue"
	"filerelay/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the SQLite message queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))
	queueCmd.AddCommand(newQueueRequeueCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue backlog summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(func(admin queueaccess.Admin) error {
				stats, err := admin.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable("Queue "+stats.Queue,
					[]column{left("Metric"), right("Value")},
					buildQueueStatusRows(stats, time.Now()),
				))
				return nil
			})
		},
	}
}

func buildQueueStatusRows(stats queue.Stats, now time.Time) [][]string {
	oldest := "-"
	if !stats.OldestEnqueued.IsZero() {
		oldest = humanize.RelTime(stats.OldestEnqueued, now, "ago", "from now")
	}
	return [][]string{
		{"Visible", humanize.Comma(int64(stats.Visible))},
		{"Locked", humanize.Comma(int64(stats.Locked))},
		{"Dead-lettered", humanize.Comma(int64(stats.Dead))},
		{"Payload", humanize.IBytes(uint64(max(stats.Bytes, 0)))},
		{"Oldest message", oldest},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		dead  bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := queue.StatusActive
			if dead {
				status = queue.StatusDead
			}
			return ctx.withAdmin(func(admin queueaccess.Admin) error {
				records, err := admin.List(cmd.Context(), status, limit)
				if err != nil {
					return err
				}
				printQueueList(cmd.OutOrStdout(), records, time.Now())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dead, "dead", false, "List dead-lettered messages instead of active ones")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum messages to show (0 for all)")
	return cmd
}

func printQueueList(out io.Writer, records []queue.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	fmt.Fprint(out, renderTable("",
		[]column{right("ID"), left("Label").wrapAt(60), right("Size"), right("Deliveries"), left("Enqueued"), left("State").wrapAt(40)},
		buildQueueListRows(records, now),
	))
}

func buildQueueListRows(records []queue.Record, now time.Time) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		state := "visible"
		switch {
		case r.Status == queue.StatusDead:
			state = "dead: " + r.DeadLetterReason
		case r.Locked(now):
			state = "locked until " + r.LockedUntil.Local().Format(time.TimeOnly)
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.RowID, 10),
			r.Message.Label,
			notificationSize(r.Message),
			strconv.Itoa(r.Message.DeliveryCount),
			humanize.RelTime(r.Message.EnqueuedAt, now, "ago", "from now"),
			state,
		})
	}
	return rows
}

// notificationSize reports the file size announced in a producer message
// body, or "-" for bodies written by something else.
func notificationSize(msg queue.Message) string {
	if msg.ContentType != producer.ContentType {
		return "-"
	}
	n, err := producer.DecodeNotification(msg.Body)
	if err != nil {
		return "-"
	}
	return humanize.IBytes(uint64(max(n.Size, 0)))
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	var (
		includeDead bool
		yes         bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete queued messages not currently held by a consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("purge discards undelivered notifications; rerun with --yes to confirm")
			}
			return ctx.withAdmin(func(admin queueaccess.Admin) error {
				removed, err := admin.Purge(cmd.Context(), includeDead)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s message(s)\n", humanize.Comma(removed))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&includeDead, "dead", false, "Also delete dead-lettered messages")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the purge")
	return cmd
}

func newQueueRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue [id...]",
		Short: "Return dead-lettered messages to delivery (all when no IDs are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withAdmin(func(admin queueaccess.Admin) error {
				count, err := admin.RequeueDead(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				if count == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No dead-lettered messages matched")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s message(s)\n", humanize.Comma(count))
				return nil
			})
		},
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid message id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
