package ukhas

import (
	"strings"
	"testing"

	"github.com/hab-telemetry/ukhasx/filter"
	"github.com/hab-telemetry/ukhasx/payload"
	"github.com/hab-telemetry/ukhasx/sensor"
)

func newParser(t *testing.T) *Parser {
	t.Helper()
	return NewParser(sensor.NewRegistry(), filter.NewRegistry())
}

func TestParseCrudeBasic(t *testing.T) {
	p := newParser(t)
	out := p.Parse([]byte("$$a,simple,test*79\n"))
	if len(out.Statuses) != 0 {
		t.Fatalf("statuses = %v", out.Statuses)
	}
	if out.Record["_sentence"] != "$$a,simple,test*79\n" {
		t.Errorf("_sentence = %v", out.Record["_sentence"])
	}
	if out.Record["_parsed"] != true || out.Record["_basic"] != true {
		t.Errorf("unexpected crude record: %+v", out.Record)
	}
}

func TestParseCrudeChecksumMismatch(t *testing.T) {
	p := newParser(t)
	out := p.Parse([]byte("$$a,simple,test*00\n"))
	if len(out.Statuses) != 1 {
		t.Fatalf("statuses = %v", out.Statuses)
	}
	if out.Statuses[0] != "parse failed: invalid checksum: expected 79" {
		t.Errorf("status = %q", out.Statuses[0])
	}
	if _, ok := out.Record["_parsed"]; ok {
		t.Errorf("expected bare record, got %+v", out.Record)
	}
}

func TestParseCrudeInvalidChecksumLen(t *testing.T) {
	p := newParser(t)
	out := p.Parse([]byte("$$a,simple,test*0\n"))
	if len(out.Statuses) != 1 {
		t.Fatalf("statuses = %v", out.Statuses)
	}
	if out.Statuses[0] != "parse failed: invalid checksum len" {
		t.Errorf("status = %q", out.Statuses[0])
	}
}

const testingDoc = `{
	"sentences": [
		{
			"callsign": "TESTING",
			"checksum": "crc16-ccitt",
			"fields": [
				{"name": "field_a"},
				{"name": "field_b"},
				{"name": "field_c"},
				{"name": "int_d", "sensor": "base.ascii_int"},
				{"name": "float_e", "sensor": "base.ascii_float"}
			]
		}
	]
}`

func TestParseSchemaSuccess(t *testing.T) {
	doc, err := payload.FromJSON([]byte(testingDoc))
	if err != nil {
		t.Fatal(err)
	}
	p := newParser(t)
	if err := p.SetDocument(doc); err != nil {
		t.Fatal(err)
	}

	out := p.Parse([]byte("$$TESTING,value_a,value_b,value_c,123,453.24*CC76\n"))
	if len(out.Statuses) != 0 {
		t.Fatalf("unexpected statuses: %v", out.Statuses)
	}
	want := Record{
		"_sentence": "$$TESTING,value_a,value_b,value_c,123,453.24*CC76\n",
		"_parsed":   true,
		"_protocol": "UKHAS",
		"payload":   "TESTING",
		"field_a":   "value_a",
		"field_b":   "value_b",
		"field_c":   "value_c",
		"int_d":     123,
		"float_e":   453.24,
	}
	for k, v := range want {
		if out.Record[k] != v {
			t.Errorf("record[%q] = %v, want %v", k, out.Record[k], v)
		}
	}
	if _, ok := out.Record["_basic"]; ok {
		t.Errorf("_basic must be absent on schema success")
	}
}

const coordinateDoc = `{
	"sentences": [
		{
			"callsign": "TESTING",
			"checksum": "crc16-ccitt",
			"fields": [
				{"name": "lat_a", "sensor": "stdtelem.coordinate", "format": "dd.dddd"},
				{"name": "lat_b", "sensor": "stdtelem.coordinate", "format": "ddmm.mm"},
				{"name": "lat_a_neg", "sensor": "stdtelem.coordinate", "format": "ddmm.mm"},
				{"name": "lat_b_neg", "sensor": "stdtelem.coordinate", "format": "ddmm.mm"},
				{"name": "whatever"}
			]
		}
	]
}`

func TestParseSchemaCoordinates(t *testing.T) {
	doc, err := payload.FromJSON([]byte(coordinateDoc))
	if err != nil {
		t.Fatal(err)
	}
	p := newParser(t)
	if err := p.SetDocument(doc); err != nil {
		t.Fatal(err)
	}

	out := p.Parse([]byte("$$TESTING,0024.124583,5116.5271,-0016.5271,-5116.5271,whatever*F390\n"))
	if len(out.Statuses) != 0 {
		t.Fatalf("unexpected statuses: %v", out.Statuses)
	}
	want := map[string]string{
		"lat_b":     "51.27545",
		"lat_a_neg": "-0.27545",
		"lat_b_neg": "-51.27545",
	}
	for k, v := range want {
		if out.Record[k] != v {
			t.Errorf("record[%q] = %v, want %v", k, out.Record[k], v)
		}
	}
}

func TestParseSchemaIncorrectCallsign(t *testing.T) {
	doc, err := payload.FromJSON([]byte(testingDoc))
	if err != nil {
		t.Fatal(err)
	}
	p := newParser(t)
	if err := p.SetDocument(doc); err != nil {
		t.Fatal(err)
	}

	// "0B" is the correct XOR8 checksum of "OTHER,a,b,c,1,2", so the
	// crude path succeeds and the schema path's "full parse failed"
	// statuses are reported alongside it.
	out := p.Parse([]byte("$$OTHER,a,b,c,1,2*0B\n"))
	if out.Statuses[0] != "full parse failed: incorrect callsign" || out.Statuses[1] != "incorrect callsign" {
		t.Fatalf("statuses = %v", out.Statuses)
	}
}

const noChecksumDoc = `{
	"sentences": [
		{"callsign": "TESTING", "checksum": "none", "fields": [{"name": "a"}, {"name": "b"}, {"name": "c"}]}
	]
}`

func TestParseSchemaIncorrectFieldCount(t *testing.T) {
	doc, err := payload.FromJSON([]byte(noChecksumDoc))
	if err != nil {
		t.Fatal(err)
	}
	p := newParser(t)
	if err := p.SetDocument(doc); err != nil {
		t.Fatal(err)
	}

	// "55" is the correct XOR8 checksum of "TESTING,value_a,value_b", so
	// the crude path succeeds and the schema path's "full parse failed"
	// statuses are reported alongside it.
	out := p.Parse([]byte("$$TESTING,value_a,value_b*55\n"))
	if out.Statuses[0] != "full parse failed: incorrect number of fields" || out.Statuses[1] != "incorrect number of fields" {
		t.Fatalf("statuses = %v", out.Statuses)
	}
	if _, ok := out.Record["_basic"]; !ok {
		t.Errorf("expected crude fallback record, got %+v", out.Record)
	}
}

func TestParseSchemaFallsBackToCrudeOnSensorFailure(t *testing.T) {
	doc, err := payload.FromJSON([]byte(testingDoc))
	if err != nil {
		t.Fatal(err)
	}
	p := newParser(t)
	if err := p.SetDocument(doc); err != nil {
		t.Fatal(err)
	}

	// "8764" is the correct CRC16-CCITT checksum of the body below, so
	// the crude path succeeds; only the schema path fails, on the
	// non-numeric int_d field, letting this test isolate the
	// sensor-conversion-failure fallback it claims to exercise.
	body := "TESTING,value_a,value_b,value_c,not_an_int,453.24"
	sentence := "$$" + body + "*8764\n"
	out := p.Parse([]byte(sentence))

	foundSchemaFail := false
	for _, s := range out.Statuses {
		if strings.HasPrefix(s, "full parse failed: field conversion failed: int_d:") {
			foundSchemaFail = true
		}
	}
	if !foundSchemaFail {
		t.Errorf("expected schema sensor-conversion failure status, got %v", out.Statuses)
	}
	if _, ok := out.Record["_basic"]; !ok {
		t.Errorf("expected crude fallback record, got %+v", out.Record)
	}
}

// FuzzParseSentence checks that Parse never panics on arbitrary bytes,
// with or without a compiled document installed, and always returns a
// non-nil record.
func FuzzParseSentence(f *testing.F) {
	f.Add([]byte("$$TESTING,value_a,value_b,value_c,123,453.24*CC76\n"))
	f.Add([]byte("$$a,simple,test*79\n"))
	f.Add([]byte(""))
	f.Add([]byte("*"))

	doc, err := payload.FromJSON([]byte(testingDoc))
	if err != nil {
		f.Fatal(err)
	}

	pWithDoc := NewParser(sensor.NewRegistry(), filter.NewRegistry())
	if err := pWithDoc.SetDocument(doc); err != nil {
		f.Fatal(err)
	}
	pNoDoc := NewParser(sensor.NewRegistry(), filter.NewRegistry())

	f.Fuzz(func(t *testing.T, sentence []byte) {
		for _, p := range []*Parser{pWithDoc, pNoDoc} {
			out := p.Parse(sentence)
			if out.Record == nil {
				t.Errorf("Parse(%q) returned nil record", sentence)
			}
		}
	})
}
