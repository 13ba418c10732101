package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/devrunner/internal/build"
	"github.com/mattjoyce/devrunner/internal/config"
	"github.com/mattjoyce/devrunner/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		all        bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent builds from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return &config.Error{Path: cfg.SourcePath, Field: "history.path", Err: errors.New("build history is disabled")}
			}

			db, err := storage.OpenSQLite(cmd.Context(), cfg.History.Path)
			if err != nil {
				return &config.Error{Path: cfg.SourcePath, Field: "history.path", Err: err}
			}
			defer db.Close()

			runner := config.DisplayName(cfg)
			if all {
				runner = ""
			}
			recs, err := storage.NewHistory(db).Recent(cmd.Context(), runner, limit)
			if err != nil {
				return err
			}

			if jsonOut {
				if recs == nil {
					recs = []storage.BuildRecord{}
				}
				data, err := json.MarshalIndent(recs, "", "  ")
				if err != nil {
					return fmt.Errorf("render history JSON: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			renderHistory(cmd.OutOrStdout(), recs, all)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultFileName, "Path to the config file or its directory")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of builds to show")
	cmd.Flags().BoolVar(&all, "all", false, "Show builds of every runner sharing the database")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderHistory(w io.Writer, recs []storage.BuildRecord, withRunner bool) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No builds recorded yet.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)

	header := table.Row{"#", "OUTCOME", "ISSUES", "DIGEST", "TOOK", "SKIPPED", "COMPLETED"}
	if withRunner {
		header = append(table.Row{"RUNNER"}, header...)
	}
	t.AppendHeader(header)

	for _, r := range recs {
		num := "-"
		if r.Build != 0 {
			num = fmt.Sprintf("%d", r.Build)
		}
		issues := fmt.Sprintf("%dE %dW", r.Errors, r.Warnings)
		if r.Error != "" {
			issues = truncate(r.Error, 40)
		}
		row := table.Row{
			num,
			outcomeColor(r.Outcome).Sprint(r.Outcome),
			issues,
			build.ShortDigest(r.Digest),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			r.SkipReason,
			r.CompletedAt.Local().Format(time.DateTime),
		}
		if withRunner {
			row = append(table.Row{r.Runner}, row...)
		}
		t.AppendRow(row)
	}
	if !withRunner && len(recs) > 0 && recs[0].Artifact != "" {
		t.SetCaption("artifact: %s", filepath.Clean(recs[0].Artifact))
	}
	t.Render()
}

func outcomeColor(outcome string) text.Colors {
	switch outcome {
	case "clean":
		return text.Colors{text.FgGreen}
	case "warnings":
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgRed}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
