// Package idgen produces entity identifiers and ordered timestamps.
package idgen

import (
	"encoding/binary"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimeFormat is the fixed-width ISO-8601 layout used for every stored
// timestamp. Fixed width keeps lexical and chronological order identical.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// suffixLen is the length of the random part of an identifier.
const suffixLen = 9

// Generator issues identifiers of the form <prefix>_<unix-millis>_<random>
// and strictly increasing timestamps.
type Generator struct {
	// now returns the current time; replaced in tests.
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// New returns a Generator backed by the wall clock.
func New() *Generator {
	return &Generator{now: time.Now}
}

// NewWithClock returns a Generator that reads time from now.
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// NewID returns a practically unique identifier namespaced by prefix.
// Uniqueness is probabilistic; callers never check for collisions.
func (g *Generator) NewID(prefix string) string {
	if prefix == "" {
		prefix = "item"
	}
	ts := g.now().UnixMilli()
	return prefix + "_" + strconv.FormatInt(ts, 10) + "_" + randomSuffix()
}

// Time returns the next timestamp, at least one microsecond after the
// previous one handed out by this generator.
func (g *Generator) Time() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now().UTC().Truncate(time.Microsecond)
	if !t.After(g.last) {
		t = g.last.Add(time.Microsecond)
	}
	g.last = t
	return t
}

// Stamp is Time formatted with TimeFormat.
func (g *Generator) Stamp() string {
	return Format(g.Time())
}

// Format renders t with TimeFormat in UTC.
func Format(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// Parse reads a timestamp written by Format, falling back to RFC 3339
// for values produced elsewhere (for example browser exports).
func Parse(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func randomSuffix() string {
	u := uuid.New()
	s := strconv.FormatUint(binary.BigEndian.Uint64(u[:8]), 36)
	if len(s) < suffixLen {
		s = strings.Repeat("0", suffixLen-len(s)) + s
	}
	return s[:suffixLen]
}
