package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/devrunner/internal/config"
	"github.com/mattjoyce/devrunner/internal/tui/watch"
)

const defaultAPIURL = "http://127.0.0.1:8787"

func newWatchCmd() *cobra.Command {
	var (
		apiURL     string
		token      string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard for a running devrunner",
		Long: `watch connects to the status API of a running supervisor and shows the
build state, the worker and the event stream. Without --url the address and
token are taken from the config file when its API is enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, tok := resolveWatchTarget(configPath, apiURL, token, cmd.Flags().Changed("url"))
			return watch.Run(url, tok)
		},
	}

	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "Base URL of the devrunner status API")
	cmd.Flags().StringVar(&token, "token", os.Getenv("DEVRUNNER_TOKEN"), "Bearer token for the status API")
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultFileName, "Config file to read api.listen and api.token from")
	return cmd
}

// resolveWatchTarget prefers explicit flags, then the config file's API
// settings, then the defaults.
func resolveWatchTarget(configPath, url, token string, urlSet bool) (string, string) {
	if urlSet {
		return url, token
	}
	cfg, err := config.Load(configPath)
	if err != nil || !cfg.API.Enabled {
		return url, token
	}
	if token == "" {
		token = cfg.API.Token
	}
	return "http://" + cfg.API.Listen, token
}
