// Package filter implements the post-extraction filter pipeline: a
// registry of named transforms applied, in order, to a successfully
// schema-parsed record. Unknown filter keys and descriptors whose
// "type" is not "normal" are silently skipped (spec.md §4.3).
//
// The teacher's analysis/filter.go runs its record transforms across a
// worker pool; spec.md's Non-goal ("no concurrency within the
// extractor") means this package keeps only the "typed stage, skip
// rather than fail" idiom and drops the channel fan-out.
package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hab-telemetry/ukhasx/payload"
)

// Func applies one filter stage to record in place.
type Func func(record map[string]any, desc payload.FilterDescriptor) error

// Registry is the immutable, string-keyed set of known filters.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry builds the filter registry once, at construction time.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.funcs["common.numeric_scale"] = numericScale
	return r
}

// Run applies every "normal"-typed descriptor in post, in order, to
// record. Unknown filter keys and non-"normal" descriptors are skipped
// without error, per spec.md §4.3.
func (r *Registry) Run(record map[string]any, post []payload.FilterDescriptor) {
	for _, desc := range post {
		if desc.Type != "normal" {
			continue
		}
		fn, ok := r.funcs[desc.Filter]
		if !ok {
			continue
		}
		// A filter stage that errors (e.g. a malformed "round" parameter)
		// leaves the record as it was going in; filters never abort the
		// pipeline or fail the overall schema parse.
		_ = fn(record, desc)
	}
}

// numericScale implements common.numeric_scale:
// dest = round(source*factor + offset, round_digits).
func numericScale(record map[string]any, desc payload.FilterDescriptor) error {
	source := payload.ParamString(desc.Params, "source", "")
	if source == "" {
		return fmt.Errorf("common.numeric_scale: missing \"source\"")
	}
	dest := payload.ParamString(desc.Params, "destination", source)

	raw, ok := record[source]
	if !ok {
		// Missing source leaves the record unchanged.
		return nil
	}

	value, err := toFloat(raw)
	if err != nil {
		return fmt.Errorf("common.numeric_scale: %w", err)
	}

	factor, err := payload.ParamFloat(desc.Params, "factor", 1)
	if err != nil {
		return err
	}
	offset, err := payload.ParamFloat(desc.Params, "offset", 0)
	if err != nil {
		return err
	}

	result := value*factor + offset

	if digits, has, err := payload.ParamInt(desc.Params, "round"); err != nil {
		return err
	} else if has {
		result = roundTo(result, digits)
	}

	record[dest] = result
	return nil
}

func toFloat(v any) (float64, error) {
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
			return 0, fmt.Errorf("source value %q is not numeric", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("source value has unsupported type %T", v)
	}
}

// roundTo rounds x to the given number of significant figures,
// half-away-from-zero. spec.md §8's worked examples (e.g. 206.246 with
// round=3 -> 206, not 206.246) only reproduce under significant-figure
// rounding, not decimal-place rounding; see SPEC_FULL.md §9.
func roundTo(x float64, sig int) float64 {
	if x == 0 || sig <= 0 {
		return 0
	}
	magnitudeDigits := math.Ceil(math.Log10(math.Abs(x)))
	power := float64(sig) - magnitudeDigits
	p := math.Pow(10, power)
	if x < 0 {
		return -math.Round(-x*p) / p
	}
	return math.Round(x*p) / p
}
