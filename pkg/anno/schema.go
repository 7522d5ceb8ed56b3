package anno

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Package anno turns the free-form reply of a vision language model into a
// validated annotation record, driven by a user-declared output schema.

// Annotation is the verdict for a single schema item on a single frame.
type Annotation struct {
	Present    bool    `json:"present"`
	Confidence float32 `json:"confidence"`     // 0..1
	BBox       *Box    `json:"bbox,omitempty"` // normalized coordinates, only meaningful when Present
}

// Annotations maps schema item name to its annotation.
type Annotations map[string]Annotation

// Schema declares the items that every output record must cover, together
// with the default annotation to use when the model says nothing useful.
// The key set is authoritative: reconciliation never emits a key that is not
// in the schema, and never omits one that is.
// A Schema is immutable once created.
type Schema struct {
	defaults map[string]Annotation
	order    []string // declaration order, used for stable category IDs
	bbox     bool     // true if any item declares a bbox slot (even a null one)
}

// NewSchema builds a schema from item names in the given order.
// Duplicate names are collapsed to their first occurrence.
func NewSchema(items []string, defaults map[string]Annotation) *Schema {
	s := &Schema{
		defaults: map[string]Annotation{},
	}
	for _, name := range items {
		if _, ok := s.defaults[name]; ok {
			continue
		}
		s.defaults[name] = defaults[name]
		s.order = append(s.order, name)
		if defaults[name].BBox != nil {
			s.bbox = true
		}
	}
	return s
}

// ParseSchema reads a schema from its JSON form, eg
//
//	{"avocado": {"present": false, "confidence": 0.0, "bbox": null}, ...}
//
// Key order in the document is preserved.
func ParseSchema(raw []byte) (*Schema, error) {
	// encoding/json maps lose key order, so walk the tokens ourselves to
	// recover the declaration order, then unmarshal the values normally.
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("Failed to parse schema: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("Schema must be a JSON object")
	}
	s := &Schema{
		defaults: map[string]Annotation{},
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("Failed to parse schema: %w", err)
		}
		key := keyTok.(string)
		var rawDef json.RawMessage
		if err := dec.Decode(&rawDef); err != nil {
			return nil, fmt.Errorf("Invalid default for schema item '%v': %w", key, err)
		}
		var def Annotation
		if err := json.Unmarshal(rawDef, &def); err != nil {
			return nil, fmt.Errorf("Invalid default for schema item '%v': %w", key, err)
		}
		// A detection schema declares the bbox slot even when its default is
		// null, so look at the raw keys rather than the decoded pointer.
		fields := map[string]json.RawMessage{}
		if json.Unmarshal(rawDef, &fields) == nil {
			if _, ok := fields["bbox"]; ok {
				s.bbox = true
			}
		}
		if _, ok := s.defaults[key]; !ok {
			s.defaults[key] = def
			s.order = append(s.order, key)
		}
	}
	if len(s.order) == 0 {
		return nil, fmt.Errorf("Schema has no items")
	}
	return s, nil
}

// LoadSchemaFile reads a schema from a JSON file.
func LoadSchemaFile(filename string) (*Schema, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Failed to read schema file '%v': %w", filename, err)
	}
	return ParseSchema(raw)
}

// Items returns the item names in declaration order.
// The returned slice must not be modified.
func (s *Schema) Items() []string {
	return s.order
}

// Default returns the default annotation for an item.
func (s *Schema) Default(name string) Annotation {
	return s.defaults[name]
}

// Has returns true if the schema declares the item.
func (s *Schema) Has(name string) bool {
	_, ok := s.defaults[name]
	return ok
}

// Defaults returns a fresh Annotations holding every item's default.
// This is the record we emit when the model reply is unusable.
func (s *Schema) Defaults() Annotations {
	out := make(Annotations, len(s.order))
	for name, def := range s.defaults {
		out[name] = def
	}
	return out
}

// HasBBox returns true if any item declares a bounding box slot, which is
// how a run declares itself as a detection task.
func (s *Schema) HasBBox() bool {
	return s.bbox
}

// SchemaFromRecordKeys rebuilds a schema from label keys observed in an
// existing record log, in first-seen order. Used when regenerating datasets
// from a labels.jsonl whose original schema file is gone.
func SchemaFromRecordKeys(keys []string) *Schema {
	return NewSchema(keys, nil)
}
