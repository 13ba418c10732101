package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/devrunner/internal/config"
	"github.com/mattjoyce/devrunner/internal/doctor"
)

func newCheckCmd() *cobra.Command {
	var (
		configPath string
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config against this machine",
		Long: `check loads the config file and verifies that the build tool resolves,
watch roots exist, patterns compile and the API listen address parses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			result := doctor.New(cfg).Validate()
			if jsonOut {
				out, err := doctor.FormatJSON(result)
				if err != nil {
					return fmt.Errorf("render check result: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			} else {
				fmt.Fprint(cmd.OutOrStdout(), doctor.FormatHuman(result))
			}

			if !result.Valid {
				return &config.Error{Path: cfg.SourcePath, Err: fmt.Errorf("%d problem(s) found", len(result.Errors))}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultFileName, "Path to the config file or its directory")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the result as JSON")
	return cmd
}
