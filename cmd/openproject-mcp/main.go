// openproject-mcp: OpenProject MCP Server
//
// Exposes an OpenProject instance (projects, work packages, relations,
// users and reference data) to any MCP client as tools, prompts and
// resources.
//
// Usage:
//
//	openproject-mcp serve          # Start the MCP server (stdio or http)
//	openproject-mcp health         # Check the OpenProject connection
//	openproject-mcp config init    # Write a starter config file
//	openproject-mcp update         # Update to the latest version
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/openproject-mcp/internal/config"
	"github.com/HendryAvila/openproject-mcp/internal/server"
	"github.com/HendryAvila/openproject-mcp/internal/updater"
)

func main() {
	os.Exit(newApp(os.Stdout, os.Stderr, config.Environ()).run(os.Args[1:]))
}

// exitCode makes a command end the process with a specific status.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

// run executes the command line and returns the process exit status.
func (a *app) run(args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			return int(code)
		}
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app carries what every command needs. Tests swap the writers, the
// environment and the update checker.
type app struct {
	stdout, stderr io.Writer
	env            map[string]string
	updates        *updater.Checker

	configPath string
}

func newApp(stdout, stderr io.Writer, env map[string]string) *app {
	return &app{stdout: stdout, stderr: stderr, env: env, updates: updater.New()}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "OpenProject MCP server",
		Long:          usage(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "",
		"config file (default $XDG_CONFIG_HOME/"+config.AppName+"/config.json)")

	root.AddCommand(
		a.serveCmd(),
		a.healthCmd(),
		a.configCmd(),
		a.updateCmd(),
		a.versionCmd(),
	)
	return root
}

// loadConfig reads the config file and the environment.
func (a *app) loadConfig() (config.Config, error) {
	return config.Load(config.LoadInput{Path: a.configPath, Env: a.env})
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "%s v%s\n", config.AppName, server.Version)
		},
	}
}

func usage() string {
	return fmt.Sprintf(`%[1]s v%[2]s: OpenProject MCP Server

Configuration:
  Set OPENPROJECT_URL and OPENPROJECT_API_KEY, or run "%[1]s config init".
  Then add the server to your AI tool's MCP config:

  {
    "mcpServers": {
      "openproject": {
        "command": "%[1]s",
        "args": ["serve"],
        "env": {
          "OPENPROJECT_URL": "https://openproject.example.com",
          "OPENPROJECT_API_KEY": "your-api-key"
        }
      }
    }
  }

Learn more: https://github.com/%[3]s`, config.AppName, server.Version, updater.Repo)
}
