// Package payload implements the UKHAS payload document: the open-schema
// configuration object that tells the ukhas parser how to split, verify
// and decode a sentence. Documents are modelled as a tagged tree of
// primitive/object/array values (spec.md §9), accepting unknown keys.
//
// Loading mirrors config.LoadConfig's shape: decode to a generic
// map[string]any (via encoding/json for the wire format, or
// github.com/BurntSushi/toml for on-disk documents), then walk the map
// key by key with defensive type assertions.
package payload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/hab-telemetry/ukhasx/checksum"
)

// Field is one entry in a sentence configuration's "fields" list.
type Field struct {
	Name    string
	Sensor  string
	Options map[string]any // sensor-specific options, e.g. "format" for coordinates
}

// FilterDescriptor is one entry in a sentence configuration's
// "filters.post" list.
type FilterDescriptor struct {
	Filter string
	Type   string
	Params map[string]any
}

// SentenceConfig describes how to parse sentences for one callsign.
type SentenceConfig struct {
	Callsign string
	Checksum checksum.Algorithm
	Fields   []Field
	Post     []FilterDescriptor
}

// Document is the parsed payload document: an ordered sequence of
// sentence configurations, keyed by the recognised top-level "sentences"
// key. Unrecognised top-level keys are accepted and ignored.
type Document struct {
	Sentences []SentenceConfig
}

// FromJSON parses a payload document from the JSON form the host sends as
// the second element of a set_current_payload command.
func FromJSON(data []byte) (*Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("payload: invalid JSON: %w", err)
	}
	return fromRawMap(raw)
}

// FromValue builds a Document directly from an already-decoded value (as
// produced by json.Unmarshal into `any`), used when the host command
// array has already been decoded as a whole.
func FromValue(v any) (*Document, error) {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload: expected an object, got %T", v)
	}
	return fromRawMap(raw)
}

// LoadFile loads a payload document from disk for local replay/validation.
// The format (TOML or JSON) is chosen by file extension.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("payload: reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var raw map[string]any
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("payload: parsing TOML %s: %w", path, err)
		}
		// The TOML decoder yields arrays of tables ([[sentences]]) as
		// []map[string]any; re-encoding through JSON gives fromRawMap the
		// []any shape it walks.
		asJSON, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("payload: converting TOML %s: %w", path, err)
		}
		return FromJSON(asJSON)
	default:
		return FromJSON(data)
	}
}

func fromRawMap(raw map[string]any) (*Document, error) {
	doc := &Document{}

	sentencesRaw, ok := raw["sentences"]
	if !ok {
		return doc, nil
	}

	list, ok := sentencesRaw.([]any)
	if !ok {
		return nil, fmt.Errorf("payload: \"sentences\" must be an array")
	}

	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("payload: sentences[%d] must be an object", i)
		}
		cfg, err := sentenceConfigFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("payload: sentences[%d]: %w", i, err)
		}
		doc.Sentences = append(doc.Sentences, cfg)
	}

	return doc, nil
}

func sentenceConfigFromMap(m map[string]any) (SentenceConfig, error) {
	var cfg SentenceConfig

	callsign, ok := m["callsign"].(string)
	if !ok || callsign == "" {
		return cfg, fmt.Errorf("missing or invalid \"callsign\"")
	}
	cfg.Callsign = callsign

	checksumName, _ := m["checksum"].(string)
	alg, err := checksum.ParseAlgorithm(checksumName)
	if err != nil {
		return cfg, fmt.Errorf("sentence %q: %w", callsign, err)
	}
	cfg.Checksum = alg

	fieldsRaw, ok := m["fields"].([]any)
	if !ok {
		return cfg, fmt.Errorf("sentence %q: missing or invalid \"fields\"", callsign)
	}
	for i, fr := range fieldsRaw {
		fm, ok := fr.(map[string]any)
		if !ok {
			return cfg, fmt.Errorf("sentence %q: fields[%d] must be an object", callsign, i)
		}
		field, err := fieldFromMap(fm)
		if err != nil {
			return cfg, fmt.Errorf("sentence %q: fields[%d]: %w", callsign, i, err)
		}
		cfg.Fields = append(cfg.Fields, field)
	}

	if filtersRaw, ok := m["filters"].(map[string]any); ok {
		if postRaw, ok := filtersRaw["post"].([]any); ok {
			for i, pr := range postRaw {
				pm, ok := pr.(map[string]any)
				if !ok {
					return cfg, fmt.Errorf("sentence %q: filters.post[%d] must be an object", callsign, i)
				}
				cfg.Post = append(cfg.Post, filterDescriptorFromMap(pm))
			}
		}
	}

	return cfg, nil
}

func fieldFromMap(m map[string]any) (Field, error) {
	var f Field

	name, ok := m["name"].(string)
	if !ok || name == "" {
		return f, fmt.Errorf("missing or invalid \"name\"")
	}
	f.Name = name
	f.Sensor, _ = m["sensor"].(string)

	f.Options = make(map[string]any, len(m))
	for k, v := range m {
		if k == "name" || k == "sensor" {
			continue
		}
		f.Options[k] = v
	}

	return f, nil
}

func filterDescriptorFromMap(m map[string]any) FilterDescriptor {
	var d FilterDescriptor
	d.Filter, _ = m["filter"].(string)
	d.Type, _ = m["type"].(string)

	d.Params = make(map[string]any, len(m))
	for k, v := range m {
		if k == "filter" || k == "type" {
			continue
		}
		d.Params[k] = v
	}
	return d
}

// FindSentenceConfigs returns every SentenceConfig whose callsign matches,
// in document order.
func (d *Document) FindSentenceConfigs(callsign string) []SentenceConfig {
	var out []SentenceConfig
	for _, s := range d.Sentences {
		if s.Callsign == callsign {
			out = append(out, s)
		}
	}
	return out
}

// ParamFloat reads a numeric filter/sensor parameter, accepting both
// JSON numbers (float64) and TOML-decoded numeric types, or a numeric
// string, falling back to def when absent.
func ParamFloat(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %q: unsupported type %T", key, v)
	}
}

// ParamInt reads an integer filter/sensor parameter (e.g. "round"),
// returning ok=false when the key is absent.
func ParamInt(params map[string]any, key string) (int, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), true, nil
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, true, fmt.Errorf("parameter %q: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("parameter %q: unsupported type %T", key, v)
	}
}

// ParamString reads a string filter/sensor parameter.
func ParamString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return def
}
