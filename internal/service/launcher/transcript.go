package launcher

import (
	"strings"
	"sync"
)

// Transcript is the bounded startup output of one launch. Lines are appended
// whole, so readers never observe a partial line. When the limit is exceeded
// the oldest lines are dropped.
type Transcript struct {
	// mu guards every field below.
	mu sync.Mutex
	// lines holds the recorded output.
	lines []string
	// size is the byte length of lines including separators.
	size int
	// limit caps size; zero means unbounded.
	limit int
	// stopped discards further appends.
	stopped bool
}

// NewTranscript creates a Transcript holding at most limit bytes.
func NewTranscript(limit int) *Transcript {
	return &Transcript{limit: limit}
}

// Append records one line and reports whether it was kept.
func (t *Transcript) Append(line string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}

	t.lines = append(t.lines, line)
	t.size += len(line) + 1

	for t.limit > 0 && t.size > t.limit && len(t.lines) > 1 {
		t.size -= len(t.lines[0]) + 1
		t.lines = t.lines[1:]
	}

	return true
}

// StopRecording makes every later Append a no-op.
func (t *Transcript) StopRecording() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Contains reports whether any recorded line contains one of markers.
func (t *Transcript) Contains(markers []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, line := range t.lines {
		for _, marker := range markers {
			if marker != "" && strings.Contains(line, marker) {
				return true
			}
		}
	}

	return false
}

// String returns the recorded output, one line per row.
func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.lines) == 0 {
		return ""
	}

	return strings.Join(t.lines, "\n") + "\n"
}
