// Package build models the results a build pipeline reports and classifies
// them into the outcomes the scheduler acts on.
package build

import "time"

// ErrorInfo is a single compilation error reported by the pipeline.
type ErrorInfo struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Details string `json:"details,omitempty"`
}

// WarningInfo is a single compilation warning reported by the pipeline.
type WarningInfo struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Stats is what a pipeline hands over when a build cycle finishes without a
// pipeline-level failure. It may still carry compilation errors.
type Stats struct {
	Errors       []ErrorInfo
	Warnings     []WarningInfo
	ArtifactPath string
	Digest       string
	Duration     time.Duration
	Output       string
}

// RawResult is the (error, stats) pair delivered by a pipeline's completion
// callback.
type RawResult struct {
	Err   error
	Stats *Stats
}

// Result is the classified, immutable outcome of one build cycle.
type Result struct {
	FatalError   error
	Errors       []ErrorInfo
	Warnings     []WarningInfo
	ArtifactPath string
	Digest       string
	Duration     time.Duration
}

// Outcome is the explicit classification of a Result.
type Outcome int

const (
	OutcomeClean Outcome = iota
	OutcomeWarnings
	OutcomeErrors
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeWarnings:
		return "warnings"
	case OutcomeErrors:
		return "errors"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome reports which of the four classes the result falls into. Fatal wins
// over errors, errors over warnings.
func (r Result) Outcome() Outcome {
	switch {
	case r.FatalError != nil:
		return OutcomeFatal
	case len(r.Errors) > 0:
		return OutcomeErrors
	case len(r.Warnings) > 0:
		return OutcomeWarnings
	default:
		return OutcomeClean
	}
}

// Runnable reports whether the artifact of this result may be executed.
func (r Result) Runnable() bool {
	o := r.Outcome()
	return o == OutcomeClean || o == OutcomeWarnings
}
