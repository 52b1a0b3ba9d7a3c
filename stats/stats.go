// Package stats tracks per-callsign extraction counters for the
// monitor dashboard. It is the one place in this repository with
// genuine concurrency: spec.md's "no concurrency within the
// extractor" is about the state machine itself, not this optional,
// host-side instrumentation, which a dashboard goroutine reads while
// host.Run's loop writes.
//
// Grounded on sliding.SlidingWindow's haxmap-backed per-key state.
package stats

import (
	"time"

	"github.com/alphadose/haxmap"
)

// Counters tracks one callsign's extraction history.
type Counters struct {
	Extracted int
	Failed    int
	LastSeen  time.Time
}

// Callsigns is a concurrent map of callsign -> Counters, safe to read
// from a dashboard goroutine while host.Run updates it on every
// completed sentence.
type Callsigns struct {
	m *haxmap.Map[string, *Counters]
}

// New builds an empty callsign counter map.
func New() *Callsigns {
	return &Callsigns{m: haxmap.New[string, *Counters]()}
}

// RecordExtracted increments callsign's extracted count and updates
// its last-seen time.
func (c *Callsigns) RecordExtracted(callsign string, at time.Time) {
	c.update(callsign, at, func(counters *Counters) { counters.Extracted++ })
}

// RecordFailed increments callsign's failed count and updates its
// last-seen time. callsign may be empty when the sentence failed
// before a callsign could be recovered.
func (c *Callsigns) RecordFailed(callsign string, at time.Time) {
	c.update(callsign, at, func(counters *Counters) { counters.Failed++ })
}

func (c *Callsigns) update(callsign string, at time.Time, mutate func(*Counters)) {
	// Build a fresh Counters value rather than mutating the stored one,
	// so a concurrent Snapshot never reads a struct being written.
	var next Counters
	if current, ok := c.m.Get(callsign); ok {
		next = *current
	}
	mutate(&next)
	next.LastSeen = at
	c.m.Set(callsign, &next)
}

// Snapshot returns a point-in-time copy of every tracked callsign's
// counters, safe for the dashboard to render without holding any lock.
func (c *Callsigns) Snapshot() map[string]Counters {
	out := make(map[string]Counters)
	c.m.ForEach(func(callsign string, counters *Counters) bool {
		out[callsign] = *counters
		return true
	})
	return out
}
