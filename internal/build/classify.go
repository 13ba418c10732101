package build

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStats is reported when a pipeline finishes a cycle without an error
	// and without stats.
	ErrNoStats = errors.New("build finished without stats")

	// ErrNoArtifact is reported when an otherwise successful build names no
	// artifact to run.
	ErrNoArtifact = errors.New("build finished without an artifact path")
)

// FatalError wraps a pipeline-level failure: the pipeline could not complete
// the cycle, so nothing it produced is usable.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal build error: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Classify turns a raw pipeline result into a Result. The three-way split is
// decided from explicit fields only:
//   - fatal: the pipeline reported an error, gave no stats, or gave a clean
//     build with no artifact
//   - errors: stats carry compilation errors
//   - warnings: stats carry warnings only
func Classify(raw RawResult) Result {
	if raw.Err != nil {
		return Result{FatalError: &FatalError{Err: raw.Err}}
	}
	if raw.Stats == nil {
		return Result{FatalError: &FatalError{Err: ErrNoStats}}
	}

	s := raw.Stats
	res := Result{
		Errors:       append([]ErrorInfo(nil), s.Errors...),
		Warnings:     append([]WarningInfo(nil), s.Warnings...),
		ArtifactPath: s.ArtifactPath,
		Digest:       s.Digest,
		Duration:     s.Duration,
	}
	if len(res.Errors) == 0 && res.ArtifactPath == "" {
		res.FatalError = &FatalError{Err: ErrNoArtifact}
	}
	return res
}
