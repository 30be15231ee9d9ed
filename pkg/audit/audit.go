package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Transcript is an ordered, append-only record of acknowledgement and
// result lines. It exists to produce deterministic output for conformance
// comparison, so lines are never mutated or reordered once pushed.
//
// A nil *Transcript is a valid no-op sink; every method tolerates it so
// callers can thread an optional transcript without nil checks.
type Transcript struct {
	lines []string
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{}
}

// PushAck appends an acknowledgement line: "OK <VERB> [detail]" or
// "ERR <VERB> [detail]".
func (t *Transcript) PushAck(status, verb, detail string) {
	if t == nil {
		return
	}
	if detail == "" {
		t.lines = append(t.lines, fmt.Sprintf("%s %s", status, verb))
		return
	}
	t.lines = append(t.lines, fmt.Sprintf("%s %s %s", status, verb, detail))
}

// PushLine appends a free-form result line.
func (t *Transcript) PushLine(line string) {
	if t == nil {
		return
	}
	t.lines = append(t.lines, line)
}

// Lines returns a copy of the transcript in push order.
func (t *Transcript) Lines() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

// Len reports the number of recorded lines.
func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	return len(t.lines)
}

// Render joins the transcript with newlines, ending in a trailing newline
// when non-empty.
func (t *Transcript) Render() string {
	if t == nil || len(t.lines) == 0 {
		return ""
	}
	return strings.Join(t.lines, "\n") + "\n"
}

// WriteFile writes the rendered transcript to path, creating parent
// directories as needed.
func (t *Transcript) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(t.Render()), 0o644); err != nil {
		return fmt.Errorf("failed to write audit transcript: %w", err)
	}
	return nil
}

// StripAuth returns lines with AUTH acknowledgements removed. Conformance
// fixtures are compared after stripping AUTH, since auth detail varies by
// deployment.
func StripAuth(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "OK AUTH") || strings.HasPrefix(line, "ERR AUTH") {
			continue
		}
		out = append(out, line)
	}
	return out
}
