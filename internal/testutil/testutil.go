// Package testutil provides test fixtures and a small in-process
// protocol harness for exercising host.Run without a real subprocess,
// equivalent in spirit to the Python reference test suite's Proxy
// class. Grounded on testutil.go's "one helper builds realistic
// fixtures" shape used throughout the teacher pack's own tests.
package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hab-telemetry/ukhasx/checksum"
	"github.com/hab-telemetry/ukhasx/extractor"
	"github.com/hab-telemetry/ukhasx/filter"
	"github.com/hab-telemetry/ukhasx/host"
	"github.com/hab-telemetry/ukhasx/payload"
	"github.com/hab-telemetry/ukhasx/sensor"
	"github.com/hab-telemetry/ukhasx/ukhas"
)

// BuildSentence assembles a UKHAS sentence string from a sentence
// configuration and its body field values, computing and appending
// the correct checksum so tests can construct well-formed input
// without hand-computing CRCs.
func BuildSentence(cfg payload.SentenceConfig, fields ...string) string {
	body := cfg.Callsign + "," + strings.Join(fields, ",")
	suffix := checksum.Compute(cfg.Checksum, []byte(body))
	return "$$" + body + "*" + suffix + "\n"
}

// Proxy drives host.Run over an in-process io.Pipe pair, the way the
// Python test harness's Proxy drives a real extractor subprocess over
// stdin/stdout.
type Proxy struct {
	cmdW   *io.PipeWriter
	events chan []any
	done   chan error
}

// NewProxy starts host.Run in a background goroutine, wired to a
// fresh extractor.Machine.
func NewProxy() *Proxy {
	cmdR, cmdW := io.Pipe()
	evR, evW := io.Pipe()

	m := extractor.New(ukhas.NewParser(sensor.NewRegistry(), filter.NewRegistry()))

	p := &Proxy{
		cmdW:   cmdW,
		events: make(chan []any, 256),
		done:   make(chan error, 1),
	}

	go func() {
		err := host.Run(cmdR, evW, m, nil)
		evW.Close()
		p.done <- err
	}()

	go func() {
		scanner := bufio.NewScanner(evR)
		for scanner.Scan() {
			var v []any
			if err := json.Unmarshal(scanner.Bytes(), &v); err == nil {
				p.events <- v
			}
		}
		close(p.events)
	}()

	return p
}

// Send encodes cmd as a JSON array command line and writes it.
func (p *Proxy) Send(cmd ...any) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("testutil: encoding command: %w", err)
	}
	data = append(data, '\n')
	_, err = p.cmdW.Write(data)
	return err
}

// PushString sends one "push" command per byte of s, in order.
func (p *Proxy) PushString(s string) error {
	for i := 0; i < len(s); i++ {
		if err := p.Send("push", string(s[i])); err != nil {
			return err
		}
	}
	return nil
}

// Close ends the command stream, causing host.Run to observe EOF.
func (p *Proxy) Close() {
	p.cmdW.Close()
}

// Drain collects every event available within timeout of the last
// received event, without blocking indefinitely once the stream goes
// quiet.
func (p *Proxy) Drain(timeout time.Duration) [][]any {
	var out [][]any
	for {
		select {
		case e, ok := <-p.events:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-time.After(timeout):
			return out
		}
	}
}

// Statuses extracts the status strings from a batch of drained events.
func Statuses(events [][]any) []string {
	var out []string
	for _, e := range events {
		if len(e) >= 2 {
			if kind, ok := e[0].(string); ok && kind == "status" {
				if s, ok := e[1].(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// ContainsStatusSubstring reports whether any status in events
// contains sub, case-insensitively, matching the host protocol's
// documented substring-matching contract (spec.md §6).
func ContainsStatusSubstring(events [][]any, sub string) bool {
	sub = strings.ToLower(sub)
	for _, s := range Statuses(events) {
		if strings.Contains(strings.ToLower(s), sub) {
			return true
		}
	}
	return false
}
