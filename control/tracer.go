// control/tracer.go
// Author: momentics <momentics@gmail.com>
//
// A minimal Tracer that logs span lifecycle instead of shipping spans to a
// collector, for embedders that want the loop's iteration timings without
// pulling in a real tracing backend.

package control

import (
	"log"
	"time"

	"github.com/momentics/pploop/api"
)

// LogTracer implements api.Tracer by logging span start/finish instead of
// shipping spans to a collector.
type LogTracer struct{}

// NewLogTracer constructs a LogTracer.
func NewLogTracer() *LogTracer { return &LogTracer{} }

// StartSpan begins a logged span.
func (t *LogTracer) StartSpan(name string, opts ...api.SpanOption) api.Span {
	return &LogSpan{name: name, start: time.Now(), tags: make(map[string]any)}
}

// Inject is a no-op: LogTracer never crosses a process boundary.
func (t *LogTracer) Inject(span api.Span, carrier map[string]any) {}

// Extract always returns a fresh root span: LogTracer never crosses a
// process boundary.
func (t *LogTracer) Extract(carrier map[string]any) (api.Span, error) {
	return &LogSpan{name: "extracted", start: time.Now(), tags: make(map[string]any)}, nil
}

var _ api.Tracer = (*LogTracer)(nil)
var _ api.Span = (*LogSpan)(nil)

// LogSpan is a single traced unit of work.
type LogSpan struct {
	name  string
	start time.Time
	tags  map[string]any
}

// Finish logs the span's name, tags, and elapsed duration.
func (s *LogSpan) Finish() {
	log.Printf("[trace] %s took %s tags=%v", s.name, time.Since(s.start), s.tags)
}

// SetTag attaches metadata to the span.
func (s *LogSpan) SetTag(key string, value any) { s.tags[key] = value }

// Log records a structured event; LogSpan folds it straight into tags
// since it has no timeline of its own.
func (s *LogSpan) Log(fields map[string]any) {
	for k, v := range fields {
		s.tags[k] = v
	}
}

// Context returns the span's tag map for propagation.
func (s *LogSpan) Context() map[string]any { return s.tags }
