package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/devrunner/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

type recordingObserver struct {
	mu       sync.Mutex
	starting []string
	prev     []*Worker
	started  []Worker
	exited   chan Worker
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{exited: make(chan Worker, 4)}
}

func (o *recordingObserver) ProcessStarting(artifact string, prev *Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starting = append(o.starting, artifact)
	o.prev = append(o.prev, prev)
}

func (o *recordingObserver) ProcessStarted(w Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, w)
}

func (o *recordingObserver) ProcessExited(w Worker, _ error) {
	o.exited <- w
}

func waitExited(t *testing.T, pid int) {
	t.Helper()
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
		if err != nil {
			return true
		}
		// Zombie processes are reaped by the manager's wait goroutine.
		fields := strings.Fields(string(data))
		return len(fields) > 2 && fields[2] == "Z"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestExecuteStartsWorker(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "app", "exec sleep 30")

	obs := newRecordingObserver()
	hub := events.NewHub(16)
	m := New(Config{StopGrace: time.Second}, obs, hub, testLogger())
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	require.NoError(t, m.Execute(script))

	w := m.Current()
	require.NotNil(t, w)
	assert.Equal(t, script, w.Artifact)
	assert.NotZero(t, w.PID)
	assert.Len(t, w.ID, 36)

	require.Len(t, obs.started, 1)
	assert.Nil(t, obs.prev[0])

	var types []string
	for _, ev := range hub.SnapshotSince(0) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{events.ProcessStarting, events.ProcessStarted}, types)
}

func TestExecuteReplacesWorker(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "app", "exec sleep 30")

	obs := newRecordingObserver()
	m := New(Config{StopGrace: time.Second}, obs, nil, testLogger())
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	require.NoError(t, m.Execute(script))
	first := m.Current()
	require.NoError(t, m.Execute(script))
	second := m.Current()

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	require.Len(t, obs.prev, 2)
	require.NotNil(t, obs.prev[1])
	assert.Equal(t, first.ID, obs.prev[1].ID)

	// The old worker is terminated; its exit is not reported as unexpected.
	waitExited(t, first.PID)
	select {
	case w := <-obs.exited:
		t.Fatalf("unexpected exit reported for %s", w.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestExecuteEscalatesToSIGKILL(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "stubborn", "trap '' TERM\nwhile true; do sleep 1; done")

	m := New(Config{StopGrace: 200 * time.Millisecond}, nil, nil, testLogger())
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	require.NoError(t, m.Execute(script))
	first := m.Current()
	require.NoError(t, m.Execute(writeScript(t, dir, "app", "exec sleep 30")))

	waitExited(t, first.PID)
}

func TestExecutePassesEnvAndArgs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	script := writeScript(t, dir, "app", `echo "$APP_ENV $PORT $1" > "`+out+`"`)

	obs := newRecordingObserver()
	m := New(Config{
		Args: []string{"serve"},
		Env:  map[string]string{"PORT": "8080", "APP_ENV": "development"},
	}, obs, nil, testLogger())

	require.NoError(t, m.Execute(script))

	select {
	case w := <-obs.exited:
		assert.Equal(t, []string{"APP_ENV=development", "PORT=8080"}, w.Env)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "development 8080 serve\n", string(data))
}

func TestExecuteSpawnFailure(t *testing.T) {
	m := New(Config{}, nil, nil, testLogger())

	err := m.Execute(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	var spawnErr *SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.Contains(t, spawnErr.Artifact, "missing")
	assert.Nil(t, m.Current())
}

func TestStopWaitsForWorker(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "app", "exec sleep 30")

	m := New(Config{StopGrace: time.Second}, nil, nil, testLogger())
	require.NoError(t, m.Execute(script))
	pid := m.Current().PID

	require.NoError(t, m.Stop(context.Background()))
	assert.Nil(t, m.Current())
	waitExited(t, pid)

	// Stopping again is a no-op.
	require.NoError(t, m.Stop(context.Background()))
}

func TestSpawnErrorUnwrap(t *testing.T) {
	inner := errors.New("permission denied")
	err := &SpawnError{Artifact: "/bin/app", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "spawn worker /bin/app: permission denied", err.Error())
}
