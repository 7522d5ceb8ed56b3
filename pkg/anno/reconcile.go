package anno

import (
	"strconv"
	"strings"

	"github.com/chewxy/math32"
)

// Reconcile merges the parsed model reply with the schema. It is total:
// whatever the model said, the result covers exactly the schema's keys.
//
//   - A schema key missing from the reply gets the schema default verbatim.
//   - A reply key missing from the schema is silently dropped.
//   - A null or missing field inside an item's sub-object keeps that field's
//     schema default; a value the model actually supplied is coerced by the
//     rules below, however garbled.
//
// Geometry is not validated here; run Normalize on each item afterwards.
func Reconcile(schema *Schema, parsed map[string]any) Annotations {
	out := make(Annotations, len(schema.Items()))
	for _, name := range schema.Items() {
		def := schema.Default(name)
		raw, ok := parsed[name]
		if !ok {
			out[name] = def
			continue
		}
		out[name] = coerceItem(raw, def)
	}
	return out
}

// coerceItem turns one reply value into an Annotation.
func coerceItem(raw any, def Annotation) Annotation {
	switch v := raw.(type) {
	case map[string]any:
		// Field-level fallback: a missing or null field keeps the schema
		// default for this item. Only a value the model actually supplied
		// goes through coercion.
		a := def
		if pv, ok := v["present"]; ok && pv != nil {
			a.Present = coercePresent(pv)
		}
		if cv, ok := v["confidence"]; ok && cv != nil {
			a.Confidence = coerceConfidence(cv)
		}
		a.BBox = coerceBox(v["bbox"], def.BBox)
		return a
	case bool:
		// Some models answer with a bare boolean per item. Treat it as a
		// fully confident verdict.
		if v {
			return Annotation{Present: true, Confidence: 1.0}
		}
		return Annotation{Present: false, Confidence: 0.0}
	default:
		return def
	}
}

// coercePresent maps the common encodings of a boolean onto true/false.
// Anything unrecognized is false: we would rather under-report a class than
// invent a detection.
func coercePresent(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		s := strings.TrimSpace(x)
		return strings.EqualFold(s, "true") || s == "1" || strings.EqualFold(s, "yes")
	default:
		return false
	}
}

// coerceConfidence clamps into 0..1. Non-numeric or unparsable is 0.
func coerceConfidence(v any) float32 {
	var f float32
	switch x := v.(type) {
	case float64:
		f = float32(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 32)
		if err != nil {
			return 0
		}
		f = float32(parsed)
	default:
		return 0
	}
	if math32.IsNaN(f) {
		return 0
	}
	return math32.Min(1, math32.Max(0, f))
}

// coerceBox accepts a 4-element numeric array. Anything else falls back to
// the schema default for this item.
func coerceBox(v any, def *Box) *Box {
	arr, ok := v.([]any)
	if !ok || len(arr) != 4 {
		return def
	}
	coords := [4]float32{}
	for i, el := range arr {
		num, ok := el.(float64)
		if !ok {
			return def
		}
		coords[i] = float32(num)
	}
	return &Box{X0: coords[0], Y0: coords[1], X1: coords[2], Y1: coords[3]}
}
