package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hab-telemetry/ukhasx/extractor"
	"github.com/hab-telemetry/ukhasx/filter"
	"github.com/hab-telemetry/ukhasx/monitor"
	"github.com/hab-telemetry/ukhasx/payload"
	"github.com/hab-telemetry/ukhasx/sensor"
	"github.com/hab-telemetry/ukhasx/stats"
	"github.com/hab-telemetry/ukhasx/ukhas"
)

// Replay loads an optional payload document and a raw byte file,
// drives them through a fresh extractor.Machine, prints the resulting
// events as JSON lines to w, and optionally writes a session heatmap.
// It returns the number of input bytes processed.
func Replay(payloadPath, inputPath, plotPath string, w io.Writer) (int, error) {
	parser := ukhas.NewParser(sensor.NewRegistry(), filter.NewRegistry())
	m := extractor.New(parser)
	if err := m.Add("UKHASExtractor"); err != nil {
		return 0, err
	}

	if payloadPath != "" {
		doc, err := payload.LoadFile(payloadPath)
		if err != nil {
			return 0, fmt.Errorf("loading payload document: %w", err)
		}
		m.SetPayload(doc)
		if err := m.LastPayloadError(); err != nil {
			return 0, fmt.Errorf("compiling payload document: %w", err)
		}
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return 0, fmt.Errorf("reading input file: %w", err)
	}

	counters := stats.New()
	observer := func(e extractor.Event) {
		if !e.HasData {
			return
		}
		callsign, _ := e.Data["payload"].(string)
		now := time.Now()
		if _, ok := e.Data["_parsed"]; ok {
			counters.RecordExtracted(callsign, now)
		} else {
			counters.RecordFailed(callsign, now)
		}
	}

	for _, b := range data {
		for _, e := range m.Push(b) {
			observer(e)
			if err := printEvent(w, e); err != nil {
				return len(data), err
			}
		}
	}

	if plotPath != "" {
		if err := monitor.WriteHeatmap(counters, plotPath); err != nil {
			return len(data), fmt.Errorf("writing heatmap: %w", err)
		}
	}

	return len(data), nil
}

func printEvent(w io.Writer, e extractor.Event) error {
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
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
