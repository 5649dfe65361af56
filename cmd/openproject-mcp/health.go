package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/server"
	"github.com/HendryAvila/openproject-mcp/internal/tools"
)

// Exit statuses of the health command. Healthy exits 0.
const (
	exitDegraded  = 1
	exitUnhealthy = 2
)

func (a *app) healthCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the connection to OpenProject",
		Long: `Ping OpenProject with the current configuration and print the report
as JSON. Exits 0 when healthy, 1 when OpenProject is unreachable and 2 on
any other failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				fmt.Fprintf(a.stderr, "Error: %v\n", err)
				return exitCode(exitUnhealthy)
			}
			log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: a.stderr})
			client, err := server.NewClient(cfg, openproject.WithLogger(log))
			if err != nil {
				fmt.Fprintf(a.stderr, "Error: %v\n", err)
				return exitCode(exitUnhealthy)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report := tools.CheckHealth(ctx, client)
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}

			switch report.Status {
			case tools.StatusHealthy:
				return nil
			case tools.StatusDegraded:
				return exitCode(exitDegraded)
			default:
				return exitCode(exitUnhealthy)
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "overall deadline for the check")
	return cmd
}
