package scheduler

import (
	"time"

	"github.com/mattjoyce/devrunner/internal/build"
)

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/mattjoyce/devrunner/internal/scheduler Executor,Reporter

// Executor runs a build artifact as the worker process. Implemented by the
// process lifecycle manager.
type Executor interface {
	Execute(artifactPath string) error
}

// Reporter receives classified build outcomes for display. Implemented by the
// console output.
type Reporter interface {
	BuildFailed(err error)
	BuildCompleted(build int, res build.Result)
}

// Turns lets the scheduler suspend work until a later turn of the single
// supervisor loop.
type Turns interface {
	// Defer runs task in a later turn, after every event already waiting
	// to be handled.
	Defer(task func() error)
	// AfterFunc runs task in a turn no earlier than d from now.
	AfterFunc(d time.Duration, task func() error)
}
