// Package state holds the supervisor's build validity state.
package state

// Tracker is the single BuildState of a supervisor run: a validity flag and a
// monotonically increasing build counter.
//
// Tracker is not safe for concurrent use. It is owned by the supervisor loop
// and every read and write happens inside a loop turn.
type Tracker struct {
	valid   bool
	current int
	cycle   int
}

// Snapshot is a copy of the tracker state for status reporting.
type Snapshot struct {
	Valid bool `json:"valid"`
	Build int  `json:"build"`
	Cycle int  `json:"cycle"`
}

// NewTracker returns a tracker with no usable build.
func NewTracker() *Tracker {
	return &Tracker{}
}

// MarkInvalid records that the source changed and the last known output can no
// longer be trusted. Idempotent.
func (t *Tracker) MarkInvalid() {
	t.valid = false
}

// MarkBuildStarted records the pipeline cycle now in flight. Validity is left
// untouched.
func (t *Tracker) MarkBuildStarted(cycle int) {
	if cycle > t.cycle {
		t.cycle = cycle
	}
}

// MarkFinished restores validity as the default assumption for a build that
// just finished. An invalidation handled before the deferred re-check revokes
// it again.
func (t *Tracker) MarkFinished() {
	t.valid = true
}

// CompleteBuild accepts a finished build: validity is set and the build
// counter is incremented and returned.
func (t *Tracker) CompleteBuild() int {
	t.valid = true
	t.current++
	return t.current
}

// IsStale reports whether build n has been superseded by a later completed
// build.
func (t *Tracker) IsStale(n int) bool {
	return n != t.current
}

// IsValid reports the current validity flag.
func (t *Tracker) IsValid() bool {
	return t.valid
}

// Current returns the highest completed build number.
func (t *Tracker) Current() int {
	return t.current
}

// Snapshot copies the tracker state.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{Valid: t.valid, Build: t.current, Cycle: t.cycle}
}
