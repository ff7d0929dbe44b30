package relay

import (
	"fmt"
	"strings"
	"time"
)

// tracer collects a human-readable protocol step log for the diagnostic
// send path. A nil tracer discards everything, so the pooled send path can
// share the same code without branching.
type tracer struct {
	start time.Time
	b     strings.Builder
}

func newTracer() *tracer {
	return &tracer{start: time.Now()}
}

func (t *tracer) printf(format string, args ...interface{}) {
	if t == nil {
		return
	}
	fmt.Fprintf(&t.b, "[%7.1fms] ", float64(time.Since(t.start).Microseconds())/1000)
	fmt.Fprintf(&t.b, format, args...)
	t.b.WriteString("\n")
}

func (t *tracer) String() string {
	if t == nil {
		return ""
	}
	return t.b.String()
}
