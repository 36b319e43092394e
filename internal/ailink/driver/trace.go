package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// TraceEntry records one upstream attempt. Credentials and message content
// are never part of an entry.
type TraceEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Driver     string    `json:"driver"`
	Endpoint   string    `json:"endpoint"`
	Method     string    `json:"method"`
	Model      string    `json:"model,omitempty"`
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code,omitempty"`
	Retrying   bool      `json:"retrying,omitempty"`
	WaitMs     int64     `json:"wait_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Tracer writes trace entries as NDJSON.
type Tracer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

var (
	globalTracer *Tracer
	tracerMu     sync.Mutex
)

// NewTracer returns a tracer writing to w. If w is an io.Closer, Close closes it.
func NewTracer(w io.Writer) *Tracer {
	t := &Tracer{w: w, now: time.Now}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// EnableTracing starts tracing to the specified file path.
// Returns a cleanup function that should be called to close the file.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	SetTracer(NewTracer(f))
	return DisableTracing, nil
}

// SetTracer installs t as the process tracer, closing any previous one.
func SetTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	if globalTracer != nil && globalTracer != t {
		_ = globalTracer.Close()
	}
	globalTracer = t
}

// DisableTracing stops tracing and closes the trace file.
func DisableTracing() {
	SetTracer(nil)
}

// IsTracingEnabled returns true if tracing is active.
func IsTracingEnabled() bool {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	return globalTracer != nil
}

// Trace records a trace entry if tracing is enabled.
func Trace(entry TraceEntry) {
	tracerMu.Lock()
	t := globalTracer
	tracerMu.Unlock()

	t.Write(entry)
}

// Write records a trace entry.
func (t *Tracer) Write(entry TraceEntry) {
	if t == nil || t.w == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = t.w.Write(data)
}

// Close closes the underlying writer when it is closable.
func (t *Tracer) Close() error {
	if t == nil || t.closer == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.closer.Close()
	t.w = nil
	t.closer = nil
	return err
}
