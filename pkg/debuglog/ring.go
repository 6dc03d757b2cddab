// Package debuglog keeps the most recent log lines in memory so operators can
// read them from the admin API without shell access to the host.
package debuglog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultSize = 200

// Ring is a fixed-size buffer of formatted log lines. It implements logrus.Hook.
type Ring struct {
	mu      sync.RWMutex
	entries []string
	next    int
	full    bool
	levels  []logrus.Level
}

// NewRing returns a ring holding up to size lines of Info level and above.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ring{
		entries: make([]string, size),
		levels: []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
			logrus.WarnLevel,
			logrus.InfoLevel,
		},
	}
}

func (r *Ring) Levels() []logrus.Level {
	return r.levels
}

func (r *Ring) Fire(entry *logrus.Entry) error {
	level := strings.ToUpper(entry.Level.String())
	if level == "WARNING" {
		level = "WARN"
	}
	line := fmt.Sprintf("[%s] [%s] %s", entry.Time.UTC().Format(time.RFC3339), level, entry.Message)
	if err, ok := entry.Data[logrus.ErrorKey]; ok {
		line += fmt.Sprintf(" error=%v", err)
	}
	r.Add(line)
	return nil
}

// Add appends a line, evicting the oldest when full.
func (r *Ring) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = line
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the buffered lines oldest first.
func (r *Ring) Lines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]string, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]string, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}
