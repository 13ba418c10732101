package main

import (
	"errors"
	"os"

	"github.com/mattjoyce/devrunner/internal/config"
	"github.com/mattjoyce/devrunner/internal/dispatch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes.
const (
	ExitCodeSuccess     = 0
	ExitCodeError       = 1
	ExitCodeConfigError = 2
	ExitCodeSpawnError  = 3
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return getExitCode(err)
	}
	return ExitCodeSuccess
}

// getExitCode maps an error to the process exit status.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return ExitCodeConfigError
	}

	var spawnErr *dispatch.SpawnError
	if errors.As(err, &spawnErr) {
		return ExitCodeSpawnError
	}

	return ExitCodeError
}
