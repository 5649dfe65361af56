package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/openproject-mcp/internal/config"
	"github.com/HendryAvila/openproject-mcp/internal/server"
	"github.com/HendryAvila/openproject-mcp/internal/updater"
)

func (a *app) updateCmd() *cobra.Command {
	var checkOnly bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update to the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(a.stderr, "Checking for updates...\n")
			if checkOnly {
				res := a.updates.Check(cmd.Context(), server.Version)
				if !res.UpdateAvailable {
					fmt.Fprintf(a.stderr, "Already at the latest version (v%s)\n", res.CurrentVersion)
					return nil
				}
				fmt.Fprintf(a.stderr, "New version available: v%s -> v%s\n  Release: %s\n",
					res.CurrentVersion, res.LatestVersion, res.ReleaseURL)
				return nil
			}

			res, err := a.updates.Update(cmd.Context(), server.Version)
			switch {
			case errors.Is(err, updater.ErrUpToDate):
				fmt.Fprintf(a.stderr, "Already at the latest version (v%s)\n", res.CurrentVersion)
				return nil
			case err != nil:
				if res.ReleaseURL != "" {
					fmt.Fprintf(a.stderr, "You can download it manually from:\n  %s\n", res.ReleaseURL)
				}
				return fmt.Errorf("update failed: %w", err)
			}
			fmt.Fprintf(a.stderr, "Updated to v%s. Restart %s to use the new version.\n",
				res.LatestVersion, config.AppName)
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check", false, "only report whether an update exists")
	return cmd
}

// checkForUpdates prints a notice to stderr when a newer release exists.
// Failures are ignored.
func (a *app) checkForUpdates(ctx context.Context) {
	res := a.updates.Check(ctx, server.Version)
	if res.UpdateAvailable {
		fmt.Fprintf(a.stderr,
			"\n  Update available: v%s -> v%s\n"+
				"     Run: %s update\n"+
				"     Release: %s\n\n",
			res.CurrentVersion, res.LatestVersion, config.AppName, res.ReleaseURL,
		)
	}
}
