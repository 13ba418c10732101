package main

import (
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/devrunner/internal/config"
)

// runOptions are the flags of the run command, shared with the root command
// so that `devrunner` alone starts supervising.
type runOptions struct {
	configPath   string
	delayMs      int
	dev          bool
	name         string
	color        bool
	errorDetails bool
	env          []string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}

	root := &cobra.Command{
		Use:   "devrunner",
		Short: "Restart a dev server whenever its build completes",
		Long: `devrunner watches a build pipeline, classifies every completed build and
(re)starts the built artifact as a worker process once a clean or warnings-only
build is available. Stale or invalidated builds never reach the worker.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Version:      currentVersionInfo().Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd, opts)
		},
	}
	root.SetVersionTemplate(`{{printf "devrunner version %s\n" .Version}}`)
	addRunFlags(root, opts)

	run := &cobra.Command{
		Use:   "run",
		Short: "Supervise the configured build and worker (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd, opts)
		},
	}
	addRunFlags(run, opts)

	root.AddCommand(run)
	root.AddCommand(newCheckCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", config.DefaultFileName, "Path to the config file or its directory")
	f.IntVar(&opts.delayMs, "delay", 0, "Milliseconds to wait after a build before restarting the worker (overrides delay_ms)")
	f.BoolVar(&opts.dev, "dev", false, "Run the worker with APP_ENV=development")
	f.StringVar(&opts.name, "name", "", "Runner name shown in output and used for the instance lock")
	f.BoolVar(&opts.color, "color", defaultColor(), "Colorize console output")
	f.BoolVar(&opts.errorDetails, "display-error-details", false, "Print the full compiler output for build errors")
	f.StringArrayVarP(&opts.env, "env", "e", nil, "Extra worker environment as KEY=VALUE (repeatable)")
	f.StringVar(&opts.logLevel, "log-level", "", "Diagnostic log level: debug, info, warn or error (overrides log.level)")
}

func defaultColor() bool {
	return termenv.NewOutput(os.Stdout).EnvColorProfile() != termenv.Ascii
}
