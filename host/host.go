// Package host adapts the extractor state machine to the external
// line-delimited JSON command/event protocol (spec.md §6): one
// bufio.Scanner line in, one JSON array per emitted event out.
//
// Grounded on ingestor.ParseLogFile's bufio.NewScanner-over-io.Reader
// loop, replacing its per-line log-record decode with per-line
// protocol-command decode.
package host

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hab-telemetry/ukhasx/extractor"
	"github.com/hab-telemetry/ukhasx/payload"
	"github.com/hab-telemetry/ukhasx/stats"
)

// Observer receives a callback for every event Run emits (status,
// upload and data alike), used to feed the monitor dashboard and
// stats.Callsigns without coupling the protocol loop itself to
// concurrency or the TUI.
type Observer func(extractor.Event)

// Run reads one JSON-array command per line from r, drives m, and
// writes one JSON-array event per line to w for every event m
// produces, flushing after each line. EOF on r ends the loop and Run
// returns nil; any other read or malformed-command error is returned
// to the caller without touching w.
func Run(r io.Reader, w io.Writer, m *extractor.Machine, observe Observer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd []json.RawMessage
		if err := json.Unmarshal(line, &cmd); err != nil {
			return fmt.Errorf("host: malformed command %q: %w", line, err)
		}
		if len(cmd) == 0 {
			return fmt.Errorf("host: empty command array")
		}

		var name string
		if err := json.Unmarshal(cmd[0], &name); err != nil {
			return fmt.Errorf("host: command name: %w", err)
		}

		events, err := dispatch(m, name, cmd[1:])
		if err != nil {
			return err
		}

		for _, e := range events {
			if observe != nil {
				observe(e)
			}
			if err := writeEvent(bw, e); err != nil {
				return err
			}
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func dispatch(m *extractor.Machine, name string, args []json.RawMessage) ([]extractor.Event, error) {
	switch name {
	case "add":
		var extractorName string
		if len(args) < 1 {
			return nil, fmt.Errorf("host: add: missing extractor name")
		}
		if err := json.Unmarshal(args[0], &extractorName); err != nil {
			return nil, fmt.Errorf("host: add: %w", err)
		}
		if err := m.Add(extractorName); err != nil {
			return nil, fmt.Errorf("host: add: %w", err)
		}
		return nil, nil

	case "skipped":
		var n int
		if len(args) < 1 {
			return nil, fmt.Errorf("host: skipped: missing count")
		}
		if err := json.Unmarshal(args[0], &n); err != nil {
			return nil, fmt.Errorf("host: skipped: %w", err)
		}
		return m.Skipped(n), nil

	case "push":
		var b string
		if len(args) < 1 {
			return nil, fmt.Errorf("host: push: missing byte")
		}
		if err := json.Unmarshal(args[0], &b); err != nil {
			return nil, fmt.Errorf("host: push: %w", err)
		}
		if len(b) != 1 {
			return nil, fmt.Errorf("host: push: expected a single byte, got %q", b)
		}
		return m.Push(b[0]), nil

	case "set_current_payload":
		if len(args) < 1 {
			return nil, fmt.Errorf("host: set_current_payload: missing document")
		}
		var raw any
		if err := json.Unmarshal(args[0], &raw); err != nil {
			return nil, fmt.Errorf("host: set_current_payload: %w", err)
		}
		doc, err := payload.FromValue(raw)
		if err != nil {
			return nil, fmt.Errorf("host: set_current_payload: %w", err)
		}
		m.SetPayload(doc)
		return nil, nil

	default:
		return nil, fmt.Errorf("host: unknown command %q", name)
	}
}

func writeEvent(w io.Writer, e extractor.Event) error {
	var line []any
	switch {
	case e.Status != "":
		line = []any{"status", e.Status}
	case e.Upload != "":
		line = []any{"upload", e.Upload}
	case e.HasData:
		if e.Data == nil {
			line = []any{"data"}
		} else {
			line = []any{"data", e.Data}
		}
	default:
		return nil
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("host: encoding event: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("host: writing event: %w", err)
	}
	return nil
}

// RecordingObserver builds an Observer that feeds callsigns into c,
// classifying each data event as extracted or failed by the presence
// of "_parsed" in the record.
func RecordingObserver(c *stats.Callsigns) Observer {
	return func(e extractor.Event) {
		if !e.HasData {
			return
		}
		now := time.Now()
		callsign, _ := e.Data["payload"].(string)
		if _, ok := e.Data["_parsed"]; ok {
			c.RecordExtracted(callsign, now)
		} else {
			c.RecordFailed(callsign, now)
		}
	}
}
