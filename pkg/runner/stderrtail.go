package runner

import "strings"

// stderrTail keeps the last n lines written to it, so process failures can
// carry the useful end of stderr without buffering the whole stream.
type stderrTail struct {
	lines []string
	max   int
}

func newStderrTail(max int) *stderrTail {
	return &stderrTail{max: max}
}

func (t *stderrTail) Add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *stderrTail) String() string {
	return strings.Join(t.lines, "\n")
}
