// Package protocol defines the newline-delimited JSON messages a watch-mode
// build tool writes to stdout for the stream pipeline.
package protocol

// Message types.
const (
	TypeInvalid = "invalid"
	TypeStart   = "start"
	TypeDone    = "done"
)

// Message is one line of build tool output.
type Message struct {
	Type       string  `json:"type"`                  // invalid | start | done
	Cycle      int     `json:"cycle,omitempty"`       // start only
	Error      string  `json:"error,omitempty"`       // done: pipeline-level failure
	Errors     []Issue `json:"errors,omitempty"`      // done: compilation errors
	Warnings   []Issue `json:"warnings,omitempty"`    // done: compilation warnings
	Artifact   string  `json:"artifact,omitempty"`    // done: path of the built artifact
	DurationMs int64   `json:"duration_ms,omitempty"` // done
}

// Issue is a single compilation error or warning.
type Issue struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Details string `json:"details,omitempty"`
}
