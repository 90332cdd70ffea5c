package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"filerelay/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		role          string
		logLevel      string
		development   bool
		skipPreflight bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the producer and/or consumer in the foreground",
		Long: "Run scans the watch directory and relays announced files to object storage " +
			"until interrupted. --role limits the process to the producer or consumer half.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if role = strings.TrimSpace(role); role != "" {
				cfg.Daemon.Role = strings.ToLower(role)
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("--role: %w", err)
				}
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:      logLevel,
				Development:   development,
				SkipPreflight: skipPreflight,
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Override daemon.role (all, producer, consumer)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without checking directories and endpoints")
	return cmd
}
