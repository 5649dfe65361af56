package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/openproject-mcp/internal/config"
	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/server"
	"github.com/HendryAvila/openproject-mcp/internal/validate"
)

type serveFlags struct {
	transport     string
	host          string
	port          int
	noUpdateCheck bool
}

func (a *app) serveCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server. The stdio transport is what desktop MCP clients
launch; the http transport serves streamable HTTP on /mcp and a /healthz
endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.serveConfig(cmd, f)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), cfg, f.noUpdateCheck)
		},
	}
	cmd.Flags().StringVar(&f.transport, "transport", "", `"stdio" or "http" (overrides config)`)
	cmd.Flags().StringVar(&f.host, "host", "", "HTTP listen host (overrides config)")
	cmd.Flags().IntVar(&f.port, "port", 0, "HTTP listen port (overrides config)")
	cmd.Flags().BoolVar(&f.noUpdateCheck, "no-update-check", false, "skip the background release check")
	return cmd
}

// serveConfig loads the configuration and applies explicit flags on top.
func (a *app) serveConfig(cmd *cobra.Command, f serveFlags) (config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport = f.transport
	}
	if flags.Changed("host") {
		cfg.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Port = f.port
	}
	if err := validate.Struct(cfg).Err(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (a *app) serve(ctx context.Context, cfg config.Config, noUpdateCheck bool) error {
	// stdout carries the protocol on stdio; logs always go to stderr.
	logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: a.stderr})
	log := logger.Get()

	srv, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !noUpdateCheck {
		go a.checkForUpdates(ctx)
	}

	if cfg.Source != "" {
		log.Info().Str("path", cfg.Source).Msg("loaded config file")
	}

	switch cfg.Transport {
	case config.TransportHTTP:
		return srv.ServeHTTP(ctx)
	default:
		return srv.ServeStdio(ctx)
	}
}
