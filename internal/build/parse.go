package build

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// maxIssues caps how many errors or warnings are kept from one build's output.
const maxIssues = 50

// locationPattern matches compiler-style "file:line[:col]: message" lines.
var locationPattern = regexp.MustCompile(`^(.+?\.[A-Za-z0-9]+):(\d+)(?::\d+)?:\s*(.*)$`)

// ErrorsFromOutput extracts compilation errors from the output of a failed
// build command. Package header lines ("# pkg") are skipped. When nothing
// usable is found a single error naming the exit code is returned.
// With details set, the full output is attached to the first error.
func ErrorsFromOutput(output string, exitCode int, details bool) []ErrorInfo {
	var errs []ErrorInfo
	for _, line := range splitLines(output) {
		if strings.HasPrefix(line, "#") {
			continue
		}
		if len(errs) == maxIssues {
			break
		}
		file, lineNo, msg := parseLocation(line)
		errs = append(errs, ErrorInfo{Message: msg, File: file, Line: lineNo})
	}
	if len(errs) == 0 {
		errs = append(errs, ErrorInfo{Message: fmt.Sprintf("build command exited with status %d", exitCode)})
	}
	if details {
		errs[0].Details = strings.TrimSpace(output)
	}
	return errs
}

// WarningsFromOutput extracts the lines of a successful build's output that
// match pattern. A nil pattern yields no warnings.
func WarningsFromOutput(output string, pattern *regexp.Regexp) []WarningInfo {
	if pattern == nil {
		return nil
	}
	var warns []WarningInfo
	for _, line := range splitLines(output) {
		if !pattern.MatchString(line) {
			continue
		}
		if len(warns) == maxIssues {
			break
		}
		file, lineNo, msg := parseLocation(line)
		warns = append(warns, WarningInfo{Message: msg, File: file, Line: lineNo})
	}
	return warns
}

// String renders an error as "file:line: message" when a location is known.
func (e ErrorInfo) String() string {
	return formatIssue(e.File, e.Line, e.Message)
}

// String renders a warning as "file:line: message" when a location is known.
func (w WarningInfo) String() string {
	return formatIssue(w.File, w.Line, w.Message)
}

func formatIssue(file string, line int, msg string) string {
	switch {
	case file != "" && line > 0:
		return fmt.Sprintf("%s:%d: %s", file, line, msg)
	case file != "":
		return fmt.Sprintf("%s: %s", file, msg)
	default:
		return msg
	}
}

func parseLocation(line string) (string, int, string) {
	m := locationPattern.FindStringSubmatch(line)
	if m == nil {
		return "", 0, line
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, line
	}
	return m[1], n, m[3]
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
