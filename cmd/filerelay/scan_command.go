package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filerelay/internal/logging"
	"filerelay/internal/producer"
	"filerelay/internal/queueaccess"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the watch directory once and announce every file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := logging.NewNop()
			if verbose {
				logger, err = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPaths: []string{"stderr"}})
				if err != nil {
					return err
				}
			}

			sender, err := queueaccess.OpenSender(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			p := producer.New(cfg, sender, logger, nil)
			defer p.Close()

			result, err := p.ScanOnce(cmd.Context())
			if err != nil {
				return err
			}
			printScanResult(newStatusPrinter(cmd.OutOrStdout()), cfg.Paths.WatchDir, result)
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d files could not be announced", result.Failed, result.Discovered)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log each send to stderr")
	return cmd
}

func printScanResult(p *statusPrinter, dir string, result producer.ScanResult) {
	p.section("Scan")
	p.line("Directory", levelInfo, dir)
	p.line("Discovered", levelInfo, humanize.Comma(int64(result.Discovered)))
	p.line("Sent", levelOK, humanize.Comma(int64(result.Sent)))
	failed := levelOK
	if result.Failed > 0 {
		failed = levelError
	}
	p.line("Failed", failed, humanize.Comma(int64(result.Failed)))
	elapsed := result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)
	p.line("Duration", levelInfo, elapsed.String()+" ("+humanize.Time(result.StartedAt)+")")
}
