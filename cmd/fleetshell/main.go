// Package main is the fleetshell CLI entry point: an interactive ops shell
// over a fleet of managed systems, built around a cobra root command with
// persistent --config/--verbose flags, SilenceUsage/SilenceErrors so
// command bodies own their own error reporting, and one subcommand per
// mode of use.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dr-natetorious/fleetshell/internal/config"
	"github.com/dr-natetorious/fleetshell/internal/shellhost"
)

var (
	flagConfigPath string
	flagVerbose    bool
)

func main() {
	os.Exit(run())
}

func run() int {
	exitCode := 0

	root := &cobra.Command{
		Use:   "fleetshell",
		Short: "Interactive operations shell for a fleet of managed systems",
		Long: `fleetshell is a scripted, interactive shell for operating a fleet of
managed systems: connect to them, dispatch built-in or remote commands,
run .fsh scripts with loops/conditionals/try-catch, and run dependency-
ordered discovery plugins across the fleet.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to the persisted config store JSON document (default ~/.fleetshell/config.json)")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable verbose diagnostics, including tracebacks on error")

	shellCmd := newShellCmd(&exitCode)
	root.AddCommand(
		shellCmd,
		newRunCmd(&exitCode),
		newDiscoverCmd(),
	)
	// Running fleetshell with no subcommand starts the interactive shell,
	// same as `fleetshell shell`.
	root.RunE = shellCmd.RunE

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return exitCode
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newHost() (*shellhost.Host, error) {
	opts, err := config.Load(flagConfigPath, flagVerbose)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return shellhost.New(opts, newLogger())
}

func newShellCmd(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run the interactive read-eval-print loop (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := newHost()
			if err != nil {
				return err
			}
			*exitCode = host.Run()
			return nil
		},
	}
}

func newRunCmd(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "run [script.fsh]",
		Short: "Execute a .fsh script file non-interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := newHost()
			if err != nil {
				return err
			}
			code, runErr := host.RunScriptFile(args[0])
			*exitCode = code
			return runErr
		},
	}
}

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Run every discovery plugin once against the config store and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := newHost()
			if err != nil {
				return err
			}
			if err := host.RunDiscovery(context.Background()); err != nil {
				return err
			}
			host.Println("Discovery complete")
			return nil
		},
	}
}
