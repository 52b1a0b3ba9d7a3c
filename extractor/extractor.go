// Package extractor implements the telemetry sentence framing engine:
// a byte-oriented state machine that resynchronises on a noisy stream,
// captures one "$$...\n" sentence at a time, and hands each completed
// sentence to the ukhas parser, emitting status/upload/data events.
//
// Shaped as an explicit state enum plus a method per transition
// (spec.md §9's "avoid hidden state across calls" design note), the
// way jail.Fill drives Jail through explicit, named state transitions
// rather than a generic dispatch loop.
package extractor

import (
	"fmt"

	"github.com/hab-telemetry/ukhasx/payload"
	"github.com/hab-telemetry/ukhasx/ukhas"
)

// State is the framing engine's state.
type State int

const (
	Idle State = iota
	Capturing
)

func (s State) String() string {
	if s == Capturing {
		return "Capturing"
	}
	return "Idle"
}

const (
	maxBufferBytes    = 1024
	maxGarbageRun     = 32
	maxSkipsPerCapture = 50
)

// Event is one item the host must be told about: a status line, an
// upload (the raw captured sentence), or a data record.
type Event struct {
	Status string
	Upload string
	Data   ukhas.Record // nil means ["data"] with no record
	HasData bool
}

func statusEvent(s string) Event { return Event{Status: s} }

// isSentenceAlphabet reports whether b resets garbage_count: ASCII
// letters, digits, and the structural punctuation a sentence
// body/checksum is built from. Space is deliberately excluded even
// though ordinary field values may contain it: spec.md §9's own
// required test ("\t " repeated 33 times triggers the 32-garbage
// abort") only holds if neither byte of that alternating pair resets
// the counter. Bytes outside this set count toward garbage_count
// (spec.md §4.5).
func isSentenceAlphabet(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == ',', b == '.', b == '*', b == '+', b == '-', b == '_':
		return true
	default:
		return false
	}
}

// Machine is the extractor state machine. It is not safe for
// concurrent use; spec.md's concurrency model serialises all calls
// through a single host loop.
type Machine struct {
	state    State
	buf      []byte
	skipped  int
	garbage  int
	enabled  bool
	parser   *ukhas.Parser
	lastErr  error
}

// New builds an idle Machine that hands completed sentences to parser.
// No extractor is enabled until Add is called.
func New(parser *ukhas.Parser) *Machine {
	return &Machine{state: Idle, parser: parser}
}

// Add enables a named extractor. Only "UKHASExtractor" is recognised,
// per spec.md §6.
func (m *Machine) Add(name string) error {
	if name != "UKHASExtractor" {
		return fmt.Errorf("extractor: unknown extractor %q", name)
	}
	m.enabled = true
	return nil
}

// SetPayload installs doc as the active payload document. A compile
// failure (e.g. an unknown sensor key) is recorded and retrievable via
// LastPayloadError; the previously installed document, if any, remains
// active, and with none installed parsing stays crude-only.
func (m *Machine) SetPayload(doc *payload.Document) {
	m.lastErr = m.parser.SetDocument(doc)
}

// LastPayloadError returns the error (if any) from the most recent
// SetPayload call.
func (m *Machine) LastPayloadError() error {
	return m.lastErr
}

func (m *Machine) reset() {
	m.state = Idle
	m.buf = nil
	m.skipped = 0
	m.garbage = 0
}

// totalLen is the buffer length plus any reported skipped bytes, the
// quantity the 1024-byte cap applies to (spec.md invariant).
func (m *Machine) totalLen() int {
	return len(m.buf) + m.skipped
}

// Push feeds one byte from the serial stream into the state machine,
// returning the events it produces (zero, one, or several).
func (m *Machine) Push(b byte) []Event {
	if !m.enabled {
		return nil
	}

	switch m.state {
	case Idle:
		return m.pushIdle(b)
	default:
		return m.pushCapturing(b)
	}
}

func (m *Machine) pushIdle(b byte) []Event {
	m.buf = append(m.buf, b)
	if len(m.buf) > 2 {
		m.buf = m.buf[len(m.buf)-2:]
	}
	if len(m.buf) == 2 && m.buf[0] == '$' && m.buf[1] == '$' {
		m.startCapture()
		return []Event{statusEvent("start delim")}
	}
	return nil
}

func (m *Machine) startCapture() {
	m.state = Capturing
	m.buf = []byte{'$', '$'}
	m.skipped = 0
	m.garbage = 0
}

func (m *Machine) pushCapturing(b byte) []Event {
	// A second "$$" inside Capturing is a restart, not ordinary content.
	if b == '$' && len(m.buf) > 0 && m.buf[len(m.buf)-1] == '$' {
		m.startCapture()
		return []Event{statusEvent("start delim")}
	}

	m.buf = append(m.buf, b)

	if b == '\n' {
		events := []Event{
			{Upload: string(m.buf)},
			statusEvent("extracted"),
		}
		events = append(events, m.runParser(m.buf)...)
		m.reset()
		return events
	}

	if isSentenceAlphabet(b) {
		m.garbage = 0
	} else {
		m.garbage++
		if m.garbage > maxGarbageRun {
			m.reset()
			return []Event{statusEvent("giving up")}
		}
	}

	if m.totalLen() >= maxBufferBytes {
		m.reset()
		return []Event{statusEvent("giving up")}
	}

	return nil
}

// Skipped reports that n bytes were lost before/within the current
// capture.
func (m *Machine) Skipped(n int) []Event {
	if !m.enabled || m.state != Capturing {
		return nil
	}

	m.skipped += n
	if m.skipped > maxSkipsPerCapture {
		m.reset()
		return []Event{statusEvent("giving up")}
	}
	if m.totalLen() >= maxBufferBytes {
		m.reset()
		return []Event{statusEvent("giving up")}
	}
	return nil
}

// runParser invokes the ukhas parser over a completed sentence and
// converts its Outcome into the status/data event sequence, per
// spec.md §4.4's precedence order.
func (m *Machine) runParser(sentence []byte) []Event {
	out := m.parser.Parse(sentence)

	events := make([]Event, 0, len(out.Statuses)+1)
	for _, s := range out.Statuses {
		events = append(events, statusEvent(s))
	}
	events = append(events, Event{Data: out.Record, HasData: true})
	return events
}
