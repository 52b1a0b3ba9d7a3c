// Package monitor renders a live dashboard of extractor state while
// the protocol loop keeps running on stdin/stdout, so the process can
// still be wrapped by the real harness. Grounded on tui/app.go's
// tview.Application + status-bar/panel layout and
// tui/visualization_cache.go's bounded "last N entries" cache.
package monitor

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/hab-telemetry/ukhasx/extractor"
	"github.com/hab-telemetry/ukhasx/filter"
	"github.com/hab-telemetry/ukhasx/host"
	"github.com/hab-telemetry/ukhasx/payload"
	"github.com/hab-telemetry/ukhasx/sensor"
	"github.com/hab-telemetry/ukhasx/stats"
	"github.com/hab-telemetry/ukhasx/ukhas"
)

// maxLoggedStatuses bounds the scrolling status log, the same
// "cache of the last N entries" idea as VisualizationCache.
const maxLoggedStatuses = 200

// App is the monitor dashboard: a tview application whose screen is
// fed by an Observer attached to the same host.Run loop speaking the
// protocol on stdin/stdout.
type App struct {
	tviewApp *tview.Application
	status   *tview.TextView
	logView  *tview.TextView
	records  *tview.Table

	machine *extractor.Machine
	counts  *stats.Callsigns

	mu           sync.Mutex
	loggedLines  []string
	recordsShown int
}

// NewApp builds a monitor dashboard, optionally installing a payload
// document loaded from payloadPath (TOML or JSON; no document is
// installed when payloadPath is empty, leaving crude-only parsing).
func NewApp(payloadPath string) (*App, error) {
	parser := ukhas.NewParser(sensor.NewRegistry(), filter.NewRegistry())
	m := extractor.New(parser)
	if err := m.Add("UKHASExtractor"); err != nil {
		return nil, err
	}

	if payloadPath != "" {
		doc, err := payload.LoadFile(payloadPath)
		if err != nil {
			return nil, fmt.Errorf("monitor: loading payload: %w", err)
		}
		m.SetPayload(doc)
		if err := m.LastPayloadError(); err != nil {
			return nil, fmt.Errorf("monitor: compiling payload: %w", err)
		}
	}

	a := &App{
		tviewApp: tview.NewApplication(),
		machine:  m,
		counts:   stats.New(),
	}
	a.setupUI()
	return a, nil
}

func (a *App) setupUI() {
	a.status = tview.NewTextView().SetDynamicColors(true)
	a.status.SetBorder(true).SetTitle("extractor")

	a.logView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	a.logView.SetBorder(true).SetTitle("status log")

	a.records = tview.NewTable().SetBorders(false)
	a.records.SetBorder(true).SetTitle("recent records")
	a.records.SetCell(0, 0, tview.NewTableCell("callsign").SetSelectable(false))
	a.records.SetCell(0, 1, tview.NewTableCell("field").SetSelectable(false))
	a.recordsShown = 1

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.status, 3, 0, false).
		AddItem(a.logView, 0, 2, false).
		AddItem(a.records, 0, 2, false)

	a.tviewApp.SetRoot(flex, true)
	a.tviewApp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC || event.Rune() == 'q' {
			a.tviewApp.Stop()
			return nil
		}
		return event
	})
}

// Run starts the host protocol loop over r/w in the background and
// blocks on the TUI event loop until the dashboard is quit or the
// protocol loop ends (host EOF).
func (a *App) Run(r io.Reader, w io.Writer) error {
	done := make(chan error, 1)
	observer := func(e extractor.Event) {
		a.onEvent(e)
	}

	go func() {
		done <- host.Run(r, w, a.machine, observer)
	}()

	go func() {
		err := <-done
		a.tviewApp.QueueUpdateDraw(func() {
			a.appendLog(fmt.Sprintf("[yellow]protocol loop ended: %v[white]", err))
		})
		a.tviewApp.Stop()
	}()

	return a.tviewApp.Run()
}

func (a *App) onEvent(e extractor.Event) {
	a.tviewApp.QueueUpdateDraw(func() {
		switch {
		case e.Status != "":
			a.appendLog(e.Status)
			a.status.SetText(fmt.Sprintf("last status: %s", e.Status))
		case e.HasData:
			a.recordData(e.Data)
		}
	})
}

func (a *App) appendLog(line string) {
	a.mu.Lock()
	a.loggedLines = append(a.loggedLines, line)
	if len(a.loggedLines) > maxLoggedStatuses {
		a.loggedLines = a.loggedLines[len(a.loggedLines)-maxLoggedStatuses:]
	}
	text := strings.Join(a.loggedLines, "\n")
	a.mu.Unlock()
	a.logView.SetText(text)
}

func (a *App) recordData(rec ukhas.Record) {
	if rec == nil {
		return
	}
	callsign, _ := rec["payload"].(string)
	now := time.Now()
	if _, ok := rec["_parsed"]; ok {
		a.counts.RecordExtracted(callsign, now)
	} else {
		a.counts.RecordFailed(callsign, now)
	}

	for name, value := range rec {
		if strings.HasPrefix(name, "_") || name == "payload" {
			continue
		}
		a.records.SetCell(a.recordsShown, 0, tview.NewTableCell(callsign))
		a.records.SetCell(a.recordsShown, 1, tview.NewTableCell(fmt.Sprintf("%s=%v", name, value)))
		a.recordsShown++
	}
}
