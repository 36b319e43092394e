// Package metrics names and emits application metrics through the gofulmen
// telemetry system installed by observability.InitMetrics.
package metrics

import (
	"time"

	"github.com/namelens/chatgate/internal/observability"
)

// Emitter is the sink metrics are written to. Tests swap it with SetEmitter.
type Emitter interface {
	Count(name string, tags map[string]string)
	Observe(name string, d time.Duration, tags map[string]string)
}

type telemetryEmitter struct{}

func (telemetryEmitter) Count(name string, tags map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, tags)
	}
}

func (telemetryEmitter) Observe(name string, d time.Duration, tags map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, tags)
	}
}

var emitter Emitter = telemetryEmitter{}

// SetEmitter replaces the package emitter and returns a restore func.
func SetEmitter(e Emitter) func() {
	prev := emitter
	if e == nil {
		e = telemetryEmitter{}
	}
	emitter = e
	return func() { emitter = prev }
}
