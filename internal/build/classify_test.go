package build

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	pipelineErr := errors.New("missing output target")

	tests := []struct {
		name    string
		raw     RawResult
		want    Outcome
		wantErr error
	}{
		{
			name:    "pipeline error is fatal",
			raw:     RawResult{Err: pipelineErr, Stats: &Stats{ArtifactPath: "/bin/app"}},
			want:    OutcomeFatal,
			wantErr: pipelineErr,
		},
		{
			name:    "missing stats is fatal",
			raw:     RawResult{},
			want:    OutcomeFatal,
			wantErr: ErrNoStats,
		},
		{
			name:    "clean build without artifact is fatal",
			raw:     RawResult{Stats: &Stats{}},
			want:    OutcomeFatal,
			wantErr: ErrNoArtifact,
		},
		{
			name: "compilation errors",
			raw: RawResult{Stats: &Stats{
				Errors:   []ErrorInfo{{Message: "undefined: foo"}},
				Warnings: []WarningInfo{{Message: "unused"}},
			}},
			want: OutcomeErrors,
		},
		{
			name: "warnings only",
			raw: RawResult{Stats: &Stats{
				ArtifactPath: "/bin/app",
				Warnings:     []WarningInfo{{Message: "deprecated"}},
			}},
			want: OutcomeWarnings,
		},
		{
			name: "clean",
			raw:  RawResult{Stats: &Stats{ArtifactPath: "/bin/app", Digest: "abc"}},
			want: OutcomeClean,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(tt.raw)
			assert.Equal(t, tt.want, res.Outcome())
			if tt.wantErr != nil {
				require.Error(t, res.FatalError)
				assert.ErrorIs(t, res.FatalError, tt.wantErr)
				var fatal *FatalError
				assert.ErrorAs(t, res.FatalError, &fatal)
			} else {
				assert.NoError(t, res.FatalError)
			}
		})
	}
}

func TestClassifyCopiesStats(t *testing.T) {
	stats := &Stats{
		ArtifactPath: "/bin/app",
		Warnings:     []WarningInfo{{Message: "one"}},
	}
	res := Classify(RawResult{Stats: stats})
	stats.Warnings[0].Message = "mutated"

	assert.Equal(t, "one", res.Warnings[0].Message)
	assert.Equal(t, "/bin/app", res.ArtifactPath)
}

func TestResultRunnable(t *testing.T) {
	assert.True(t, Result{ArtifactPath: "x"}.Runnable())
	assert.True(t, Result{ArtifactPath: "x", Warnings: []WarningInfo{{Message: "w"}}}.Runnable())
	assert.False(t, Result{Errors: []ErrorInfo{{Message: "e"}}}.Runnable())
	assert.False(t, Result{FatalError: errors.New("boom")}.Runnable())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "clean", OutcomeClean.String())
	assert.Equal(t, "warnings", OutcomeWarnings.String())
	assert.Equal(t, "errors", OutcomeErrors.String())
	assert.Equal(t, "fatal", OutcomeFatal.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
