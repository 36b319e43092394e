package driver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracerWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewTracer(&buf)

	tracer.Write(TraceEntry{Driver: "openai", Attempt: 0, StatusCode: 503, Retrying: true, WaitMs: 120})
	tracer.Write(TraceEntry{Driver: "openai", Attempt: 1, StatusCode: 200})

	scanner := bufio.NewScanner(&buf)
	var entries []TraceEntry
	for scanner.Scan() {
		var entry TraceEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.Len(t, entries, 2)
	require.True(t, entries[0].Retrying)
	require.Equal(t, int64(120), entries[0].WaitMs)
	require.Equal(t, 200, entries[1].StatusCode)
	require.False(t, entries[1].Timestamp.IsZero())
}

func TestEnableTracingAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.ndjson")

	cleanup, err := EnableTracing(path)
	require.NoError(t, err)
	require.True(t, IsTracingEnabled())

	Trace(TraceEntry{Driver: "openai", Endpoint: "https://example.test/chat/completions", Method: "POST"})
	cleanup()
	require.False(t, IsTracingEnabled())

	// No-op once disabled.
	Trace(TraceEntry{Driver: "openai"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, bytes.Count(data, []byte("\n")))
	require.Contains(t, string(data), `"method":"POST"`)
}

func TestNilTracerIsSafe(t *testing.T) {
	var tracer *Tracer
	tracer.Write(TraceEntry{})
	require.NoError(t, tracer.Close())
}
