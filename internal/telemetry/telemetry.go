// Package telemetry appends run events to a JSON-lines file. Emission
// is best-effort: a broken sink never fails the caller.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Event is one telemetry record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	Issue     int            `json:"issue,omitempty"`
	Workflow  string         `json:"workflow,omitempty"`
	Status    string         `json:"status,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Sink appends events to a JSONL file.
type Sink struct {
	path   string
	logger io.Writer

	mu sync.Mutex
}

// NewSink creates a sink writing to the given path. The file is created
// on first emit.
func NewSink(path string, logger io.Writer) *Sink {
	return &Sink{path: path, logger: logger}
}

// Emit appends one event. Failures are logged and swallowed.
func (s *Sink) Emit(ev Event) {
	if s == nil || s.path == "" {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(ev)
	if err != nil {
		s.logf("telemetry: encode event: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		s.logf("telemetry: open sink: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		s.logf("telemetry: write event: %v", err)
	}
}

func (s *Sink) logf(format string, args ...any) {
	if s.logger != nil {
		fmt.Fprintf(s.logger, format+"\n", args...)
	}
}
