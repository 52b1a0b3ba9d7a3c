package extractor

import (
	"strings"
	"testing"

	"github.com/hab-telemetry/ukhasx/filter"
	"github.com/hab-telemetry/ukhasx/payload"
	"github.com/hab-telemetry/ukhasx/sensor"
	"github.com/hab-telemetry/ukhasx/ukhas"
)

func buildTestingPayload() (*payload.Document, error) {
	return payload.FromJSON([]byte(`{
		"sentences": [{
			"callsign": "TESTING",
			"checksum": "crc16-ccitt",
			"fields": [
				{"name": "field_a"},
				{"name": "field_b"},
				{"name": "field_c"},
				{"name": "int_d", "sensor": "base.ascii_int"},
				{"name": "float_e", "sensor": "base.ascii_float"}
			]
		}]
	}`))
}

func newMachine(t *testing.T) *Machine {
	t.Helper()
	m := New(ukhas.NewParser(sensor.NewRegistry(), filter.NewRegistry()))
	if err := m.Add("UKHASExtractor"); err != nil {
		t.Fatal(err)
	}
	return m
}

func pushAll(m *Machine, s string) []Event {
	var events []Event
	for i := 0; i < len(s); i++ {
		events = append(events, m.Push(s[i])...)
	}
	return events
}

func statuses(events []Event) []string {
	var out []string
	for _, e := range events {
		if e.Status != "" {
			out = append(out, e.Status)
		}
	}
	return out
}

func containsSubstring(statuses []string, sub string) bool {
	for _, s := range statuses {
		if strings.Contains(strings.ToLower(s), strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func TestQuietStreamNoExtractorAdded(t *testing.T) {
	m := New(ukhas.NewParser(sensor.NewRegistry(), filter.NewRegistry()))
	events := pushAll(m, "$$this,is,a,string\n")
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestBasicExtraction(t *testing.T) {
	m := newMachine(t)
	events := pushAll(m, "$$a,simple,test*00\n")

	sts := statuses(events)
	if !containsSubstring(sts, "start delim") {
		t.Errorf("missing start delim: %v", sts)
	}
	if !containsSubstring(sts, "extracted") {
		t.Errorf("missing extracted: %v", sts)
	}
	if !containsSubstring(sts, "parse failed") {
		t.Errorf("missing parse failed: %v", sts)
	}

	var upload string
	var dataEvents int
	for _, e := range events {
		if e.Upload != "" {
			upload = e.Upload
		}
		if e.HasData {
			dataEvents++
		}
	}
	if upload != "$$a,simple,test*00\n" {
		t.Errorf("upload = %q", upload)
	}
	if dataEvents != 1 {
		t.Errorf("expected exactly one data event, got %d", dataEvents)
	}
}

func TestRestartOnSecondStartDelim(t *testing.T) {
	m := newMachine(t)
	events := pushAll(m, "garb!age$$more!garb$age$$helloworld\n")

	count := 0
	for _, s := range statuses(events) {
		if strings.Contains(strings.ToLower(s), "start delim") {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 start delim statuses, got %d: %v", count, statuses(events))
	}

	var upload string
	for _, e := range events {
		if e.Upload != "" {
			upload = e.Upload
		}
	}
	if upload != "$$helloworld\n" {
		t.Errorf("upload = %q", upload)
	}
}

func TestLengthAbort(t *testing.T) {
	m := newMachine(t)
	var events []Event
	events = append(events, m.Push('$')...)
	events = append(events, m.Push('$')...)
	for i := 0; i < 1022; i++ {
		events = append(events, m.Push('a')...)
	}

	sts := statuses(events)
	if !containsSubstring(sts, "start delim") || !containsSubstring(sts, "giving up") {
		t.Fatalf("statuses = %v", sts)
	}

	after := m.Push('\n')
	if len(after) != 0 {
		t.Errorf("expected no events after abort, got %+v", after)
	}
}

func TestSkipAbort(t *testing.T) {
	m := newMachine(t)
	var events []Event
	events = append(events, m.Push('$')...)
	events = append(events, m.Push('$')...)
	events = append(events, m.Skipped(51)...)

	sts := statuses(events)
	if !containsSubstring(sts, "start delim") || !containsSubstring(sts, "giving up") {
		t.Fatalf("statuses = %v", sts)
	}
}

func TestGarbageAbort(t *testing.T) {
	m := newMachine(t)
	var events []Event
	events = append(events, m.Push('$')...)
	events = append(events, m.Push('$')...)
	events = append(events, pushAll(m, "some,legit,data")...)

	for i := 0; i < 33; i++ {
		events = append(events, pushAll(m, "\t ")...)
	}

	if !containsSubstring(statuses(events), "giving up") {
		t.Fatalf("expected garbage abort, statuses = %v", statuses(events))
	}
}

func TestOrdinaryBodyDoesNotTriggerGarbageAbort(t *testing.T) {
	m := newMachine(t)
	events := pushAll(m, "$$TESTING,value a,value b,value c,123,453.24*0000\n")
	if containsSubstring(statuses(events), "giving up") {
		t.Errorf("ordinary body triggered giving up: %v", statuses(events))
	}
}

func TestSetPayloadSchemaParse(t *testing.T) {
	m := newMachine(t)
	doc, err := buildTestingPayload()
	if err != nil {
		t.Fatal(err)
	}
	m.SetPayload(doc)
	if err := m.LastPayloadError(); err != nil {
		t.Fatalf("SetPayload failed: %v", err)
	}

	events := pushAll(m, "$$TESTING,value_a,value_b,value_c,123,453.24*CC76\n")

	var record ukhas.Record
	for _, e := range events {
		if e.HasData {
			record = e.Data
		}
	}
	if record["int_d"] != 123 {
		t.Errorf("int_d = %v", record["int_d"])
	}
	if _, ok := record["_basic"]; ok {
		t.Errorf("expected schema record, got basic: %+v", record)
	}
}

// FuzzPush checks that pushing arbitrary byte streams, with occasional
// skip notifications mixed in, never panics and never grows the internal
// buffer past its cap regardless of how the garbage/restart/length-abort
// rules interact.
func FuzzPush(f *testing.F) {
	f.Add([]byte("$$TESTING,value_a,value_b,value_c,123,453.24*CC76\n"), uint8(0))
	f.Add([]byte("garb!age$$more!garb$age$$helloworld\n"), uint8(5))
	f.Add([]byte(""), uint8(51))

	f.Fuzz(func(t *testing.T, stream []byte, skip uint8) {
		m := newMachine(t)
		for _, b := range stream {
			m.Push(b)
		}
		if skip > 0 {
			m.Skipped(int(skip))
		}
		if m.totalLen() > maxBufferBytes {
			t.Errorf("buffer length %d exceeds cap %d", m.totalLen(), maxBufferBytes)
		}
	})
}
