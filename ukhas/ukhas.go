// Package ukhas implements the UKHAS sentence parser: structural
// extraction of a captured "$$...\n" sentence, the schema-less crude
// path, and (when a payload document is installed) the schema-driven
// path, combined per spec.md §4.4's precedence rules.
//
// Shaped like logparser.CompiledFormat: a payload.Document is compiled
// once, at installation time, into a CompiledDocument whose field
// sensors are already resolved, so Parse never does a registry lookup
// or reflects over the document on the per-sentence hot path.
package ukhas

import (
	"fmt"
	"strings"

	"github.com/hab-telemetry/ukhasx/checksum"
	"github.com/hab-telemetry/ukhasx/filter"
	"github.com/hab-telemetry/ukhasx/payload"
	"github.com/hab-telemetry/ukhasx/sensor"
)

// Record is an extracted sentence's field mapping. Keys prefixed with
// "_" are protocol metadata (spec.md §3); all others are field values.
type Record map[string]any

// Outcome is the result of parsing one completed sentence: the ordered
// status messages produced by the crude and/or schema paths (not
// including "start delim"/"extracted", which are the extractor's own),
// and the best available record.
type Outcome struct {
	Statuses []string
	Record   Record
}

// compiledField is a field descriptor with its sensor already resolved.
type compiledField struct {
	name    string
	convert sensor.Converter
	options map[string]any
}

type compiledSentence struct {
	cfg    payload.SentenceConfig
	fields []compiledField
}

// CompiledDocument is a payload.Document with every field's sensor
// resolved once, up front, the way CompiledFormat resolves its field
// extractors at compile time rather than per line.
type CompiledDocument struct {
	sentences []compiledSentence
}

func (cd *CompiledDocument) byCallsign(callsign string) []compiledSentence {
	var out []compiledSentence
	for _, s := range cd.sentences {
		if s.cfg.Callsign == callsign {
			out = append(out, s)
		}
	}
	return out
}

// Parser holds the immutable sensor/filter registries and the
// currently installed compiled document (nil until SetDocument is
// called successfully).
type Parser struct {
	sensors *sensor.Registry
	filters *filter.Registry
	doc     *CompiledDocument
}

// NewParser builds a parser over the given sensor and filter registries.
func NewParser(sensors *sensor.Registry, filters *filter.Registry) *Parser {
	return &Parser{sensors: sensors, filters: filters}
}

// Compile resolves every field sensor in doc, once, returning a
// configuration error (not a parse-time one) for any unknown sensor
// key, per spec.md §4.2.
func (p *Parser) Compile(doc *payload.Document) (*CompiledDocument, error) {
	cd := &CompiledDocument{}
	for _, sc := range doc.Sentences {
		cs := compiledSentence{cfg: sc}
		for _, f := range sc.Fields {
			conv, err := p.sensors.Lookup(f.Sensor)
			if err != nil {
				return nil, fmt.Errorf("sentence %q, field %q: %w", sc.Callsign, f.Name, err)
			}
			cs.fields = append(cs.fields, compiledField{name: f.Name, convert: conv, options: f.Options})
		}
		cd.sentences = append(cd.sentences, cs)
	}
	return cd, nil
}

// SetDocument compiles doc and installs it as the active document. On
// a compile error, the previously installed document (if any) is left
// in place and the error is returned to the caller.
func (p *Parser) SetDocument(doc *payload.Document) error {
	cd, err := p.Compile(doc)
	if err != nil {
		return err
	}
	p.doc = cd
	return nil
}

// ClearDocument removes the active document, reverting to crude-only
// parsing.
func (p *Parser) ClearDocument() {
	p.doc = nil
}

// splitAtStar splits s at the first "*" into body and checksum suffix.
// Absence of "*" yields an empty suffix, which InferFromSuffix rejects.
func splitAtStar(s string) (body, suffix string) {
	i := strings.IndexByte(s, '*')
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

// Parse runs structural extraction, the crude path, and (if a document
// is installed) the schema path over one complete "$$...\n" sentence,
// returning the precedence-ordered statuses and the best record.
func (p *Parser) Parse(sentence []byte) Outcome {
	raw := string(sentence)
	trimmed := strings.TrimSuffix(strings.TrimPrefix(raw, "$$"), "\n")
	body, checksumHex := splitAtStar(trimmed)
	bodyFields := strings.Split(body, ",")
	callsign := bodyFields[0]
	rest := bodyFields[1:]

	crudeRecord, crudeStatuses := p.parseCrude(raw, callsign, body, checksumHex)

	// The schema path's "full parse failed" status is only reported
	// alongside a successful crude parse; when crude itself fails, its
	// own single combined status is the whole story.
	var schemaRecord Record
	var schemaStatuses []string
	if p.doc != nil && crudeRecord != nil {
		schemaRecord, schemaStatuses = p.parseSchema(raw, callsign, rest, body, checksumHex)
	}

	statuses := append(schemaStatuses, crudeStatuses...)

	var record Record
	switch {
	case schemaRecord != nil:
		record = schemaRecord
	case crudeRecord != nil:
		record = crudeRecord
	default:
		record = Record{"_sentence": raw}
	}

	return Outcome{Statuses: statuses, Record: record}
}

// parseCrude infers the checksum algorithm from the suffix length and
// validates it; on success it returns the basic record, on failure a
// nil record and a single status combining "parse failed" with the
// specific reason.
func (p *Parser) parseCrude(raw, callsign, body, checksumHex string) (Record, []string) {
	alg, err := checksum.InferFromSuffix(checksumHex)
	if err != nil {
		return nil, []string{"parse failed: invalid checksum len"}
	}

	computed := checksum.Compute(alg, []byte(body))
	if !checksum.EqualFold(computed, checksumHex) {
		return nil, []string{fmt.Sprintf("parse failed: invalid checksum: expected %s", computed)}
	}

	return Record{
		"_sentence": raw,
		"_parsed":   true,
		"_basic":    true,
		"_protocol": "UKHAS",
		"payload":   callsign,
	}, nil
}

// parseSchema finds the sentence configuration for callsign, validates
// it against body, converts each field through its sensor, and runs
// the post-filter pipeline. On any failure it returns a nil record and
// the ["full parse failed: <specific>", "<specific>"] status pair.
func (p *Parser) parseSchema(raw, callsign string, rest []string, body, checksumHex string) (Record, []string) {
	fail := func(reason string) (Record, []string) {
		return nil, []string{"full parse failed: " + reason, reason}
	}

	candidates := p.doc.byCallsign(callsign)
	if len(candidates) == 0 {
		return fail("incorrect callsign")
	}

	selected := candidates[0]
	for _, c := range candidates {
		if len(c.fields) == len(rest) {
			selected = c
			break
		}
	}

	if selected.cfg.Checksum != checksum.None {
		inferredAlg, inferErr := checksum.InferFromSuffix(checksumHex)
		if inferErr != nil || selected.cfg.Checksum != inferredAlg {
			return fail("wrong checksum type")
		}
		computed := checksum.Compute(selected.cfg.Checksum, []byte(body))
		if !checksum.EqualFold(computed, checksumHex) {
			return fail(fmt.Sprintf("invalid checksum: expected %s", computed))
		}
	}

	if len(rest) != len(selected.fields) {
		return fail("incorrect number of fields")
	}

	record := Record{
		"_sentence": raw,
		"_parsed":   true,
		"_protocol": "UKHAS",
		"payload":   callsign,
	}
	for i, f := range selected.fields {
		v, err := f.convert(rest[i], f.options)
		if err != nil {
			return fail(fmt.Sprintf("field conversion failed: %s: %v", f.name, err))
		}
		record[f.name] = v
	}

	p.filters.Run(record, selected.cfg.Post)
	return record, nil
}
