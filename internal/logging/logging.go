// Package logging wraps logrus with the field conventions this module's
// subsystems share, matching how the teacher repo's CLI entry points use
// structured fields per component rather than ad hoc fmt.Printf calls.
package logging

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	base *logrus.Logger
)

func root() *logrus.Logger {
	once.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		base.SetLevel(logrus.InfoLevel)
	})
	return base
}

// SetLevel parses a level name ("debug", "info", "warn", "error") and
// applies it to the shared root logger. Unknown names fall back to info.
func SetLevel(name string) {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	root().SetLevel(lvl)
}

// For returns a logger scoped to a named component (e.g. "orchestrator",
// "audiogen", "framesink").
func For(component string) *logrus.Entry {
	return root().WithField("component", component)
}

// RateLimited wraps a logger so repeated calls to Log within the same
// window are dropped; used by the frame sink for output-FIFO underruns and
// by the orchestrator's tick loop for skipped ticks, so repeated conditions
// don't flood stderr (spec §4.9).
type RateLimited struct {
	entry    *logrus.Entry
	window   time.Duration
	mu       sync.Mutex
	lastLog  time.Time
	suppress uint64
}

func NewRateLimited(entry *logrus.Entry, window time.Duration) *RateLimited {
	return &RateLimited{entry: entry, window: window}
}

// Log emits msg at Debug level at most once per window; calls made inside
// the window are silently counted and folded into the next emitted message.
func (r *RateLimited) Log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.lastLog) < r.window {
		r.suppress++
		return
	}
	fields := logrus.Fields{}
	if r.suppress > 0 {
		fields["suppressed"] = r.suppress
	}
	r.entry.WithFields(fields).Debug(msg)
	r.lastLog = now
	r.suppress = 0
}
