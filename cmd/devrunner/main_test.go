package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/devrunner/internal/config"
	"github.com/mattjoyce/devrunner/internal/dispatch"
	"github.com/mattjoyce/devrunner/internal/storage"
)

func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

// writeProject lays out a runnable project: a build script that produces
// bin/app, a src/ watch root and a config file. The worker touches marker
// when it starts.
func writeProject(t *testing.T, marker string, extra string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.txt"), []byte("v1"), 0o644))

	build := fmt.Sprintf(`#!/bin/sh
mkdir -p bin
cat > bin/app <<'APP'
#!/bin/sh
echo started > %s
exec sleep 30
APP
chmod +x bin/app
`, marker)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.sh"), []byte(build), 0o755))

	cfg := fmt.Sprintf(`name: smoke
lock_path: %s
pipeline:
  command: ["sh", "build.sh"]
  artifact: bin/app
  watch: ["src"]
  aggregate_timeout: 50ms
worker:
  stop_grace: 1s
log:
  level: error
%s`, filepath.Join(dir, "smoke.lock"), extra)
	path := filepath.Join(dir, "devrunner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitCodeSuccess},
		{name: "config", err: &config.Error{Err: errors.New("bad")}, want: ExitCodeConfigError},
		{name: "wrapped config", err: fmt.Errorf("load: %w", &config.Error{Err: errors.New("bad")}), want: ExitCodeConfigError},
		{name: "spawn", err: fmt.Errorf("execute build 1: %w", &dispatch.SpawnError{Artifact: "a", Err: errors.New("no exec")}), want: ExitCodeSpawnError},
		{name: "other", err: errors.New("boom"), want: ExitCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-01-02T03:04:05.123+02:00")

	out, _, err := execute(t, context.Background(), "version")
	require.NoError(t, err)
	assert.Equal(t, "devrunner 1.2.3\ncommit: 0123456789ab\nbuilt_at: 2026-01-02T01:04:05Z\n", out)

	out, _, err = execute(t, context.Background(), "version", "--json")
	require.NoError(t, err)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, versionInfo{Version: "1.2.3", Commit: "0123456789ab", BuildTime: "2026-01-02T01:04:05Z"}, info)
}

func TestCheckCommand(t *testing.T) {
	path := writeProject(t, filepath.Join(t.TempDir(), "marker"), "")

	out, _, err := execute(t, context.Background(), "check", "--config", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Configuration valid"), out)
	assert.Contains(t, out, "does not exist yet")
}

func TestCheckCommandInvalid(t *testing.T) {
	path := writeProject(t, filepath.Join(t.TempDir(), "marker"), "")
	require.NoError(t, os.RemoveAll(filepath.Join(filepath.Dir(path), "src")))

	out, _, err := execute(t, context.Background(), "check", "--config", path, "--json")
	require.Error(t, err)
	assert.Equal(t, ExitCodeConfigError, getExitCode(err))

	var result struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "pipeline.watch[0]", result.Errors[0].Field)
}

func TestRunConfigErrors(t *testing.T) {
	path := writeProject(t, filepath.Join(t.TempDir(), "marker"), "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing file", args: []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, want: "not found"},
		{name: "negative delay", args: []string{"--config", path, "--delay", "-5"}, want: "--delay"},
		{name: "bad env", args: []string{"run", "--config", path, "--env", "NOEQUALS"}, want: "--env"},
		{name: "bad log level", args: []string{"--config", path, "--log-level", "loud"}, want: "--log-level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, context.Background(), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ExitCodeConfigError, getExitCode(err))
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Defaults()
	cfg.DelayMs = 100

	require.NoError(t, applyOverrides(cfg, &runOptions{delayMs: 0, name: "web", logLevel: "debug"}, true))
	assert.Equal(t, 0, cfg.DelayMs)
	assert.Equal(t, "web", cfg.Name)
	assert.Equal(t, "debug", cfg.Log.Level)

	cfg.DelayMs = 100
	require.NoError(t, applyOverrides(cfg, &runOptions{delayMs: 0}, false))
	assert.Equal(t, 100, cfg.DelayMs, "unset --delay keeps the config value")
}

func TestRunStartsWorkerAndStopsOnCancel(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "started")
	path := writeProject(t, marker, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		stdout string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		out, _, err := execute(t, ctx, "--config", path, "--color=false")
		done <- result{stdout: out, err: err}
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 10*time.Second, 50*time.Millisecond, "worker never started")

	cancel()
	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "[devRunner:smoke]")
		assert.Contains(t, res.stdout, "Build #1 complete")
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRunSecondInstanceIsLocked(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "started")
	path := writeProject(t, marker, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, _, err := execute(t, ctx, "--config", path)
		done <- err
	}()
	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	_, _, err := execute(t, context.Background(), "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCodeConfigError, getExitCode(err))
	assert.Contains(t, err.Error(), "another devrunner instance")

	cancel()
	require.NoError(t, <-done)
}

func TestResolveWatchTarget(t *testing.T) {
	path := writeProject(t, filepath.Join(t.TempDir(), "marker"), `api:
  enabled: true
  listen: 127.0.0.1:9911
  token: s3cret
`)

	url, tok := resolveWatchTarget(path, defaultAPIURL, "", false)
	assert.Equal(t, "http://127.0.0.1:9911", url)
	assert.Equal(t, "s3cret", tok)

	url, tok = resolveWatchTarget(path, "http://other:1", "mine", true)
	assert.Equal(t, "http://other:1", url)
	assert.Equal(t, "mine", tok)

	url, _ = resolveWatchTarget(filepath.Join(t.TempDir(), "missing.yaml"), defaultAPIURL, "", false)
	assert.Equal(t, defaultAPIURL, url)
}

func TestHistoryCommand(t *testing.T) {
	path := writeProject(t, filepath.Join(t.TempDir(), "marker"), `history:
  path: .devrunner/history.db
`)
	dbPath := filepath.Join(filepath.Dir(path), ".devrunner", "history.db")

	db, err := storage.OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	h := storage.NewHistory(db)
	_, err = h.Insert(context.Background(), storage.BuildRecord{Runner: "smoke", Build: 1, Outcome: "clean", Digest: "0123456789abcdef", DurationMs: 1500})
	require.NoError(t, err)
	_, err = h.Insert(context.Background(), storage.BuildRecord{Runner: "other", Build: 7, Outcome: "errors", Errors: 2})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, _, err := execute(t, context.Background(), "history", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "clean")
	assert.Contains(t, out, "0123456789ab")
	assert.Contains(t, out, "1.5s")
	assert.NotContains(t, out, "other")

	out, _, err = execute(t, context.Background(), "history", "--config", path, "--all", "--json")
	require.NoError(t, err)
	var recs []storage.BuildRecord
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "other", recs[0].Runner)
	assert.Equal(t, 2, recs[0].Errors)
}

func TestHistoryCommandDisabled(t *testing.T) {
	path := writeProject(t, filepath.Join(t.TempDir(), "marker"), "")
	_, _, err := execute(t, context.Background(), "history", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCodeConfigError, getExitCode(err))
	assert.Contains(t, err.Error(), "disabled")
}
