package dataset

import (
	"sort"

	"github.com/framelab/framelab/pkg/anno"
)

// AbsentLabel is the negative label of every per-class binary dataset.
const AbsentLabel = "absent"

// DefaultConfidenceThreshold is the standard present/absent gate, applied
// when the operator does not configure one.
const DefaultConfidenceThreshold = 0.9

// BinaryEntry is one (image, label) pair of a per-class binary dataset.
// Label is either the class name or "absent".
type BinaryEntry struct {
	Filename string `json:"filename"`
	Label    string `json:"label"`
}

// BinaryClassSet is the binary classification dataset of a single class,
// matching the on-disk shape binary_datasets/<class>/annotations.json.
type BinaryClassSet struct {
	Annotations []BinaryEntry `json:"annotations"`
}

// BinarySet maps class name to its binary dataset. Iterate it through the
// schema's item order to stay deterministic.
type BinarySet map[string]*BinaryClassSet

// Gate is the single present/absent decision used everywhere a binary label
// is required: an item counts as present only when the model said so AND
// its confidence clears the threshold.
func Gate(a anno.Annotation, threshold float32) bool {
	return a.Present && a.Confidence >= threshold
}

// BuildBinary derives the per-class binary classification sets from the
// record log. Pure: the same records and threshold always produce the same
// sets, entry order following record order.
func BuildBinary(records []FrameRecord, schema *anno.Schema, threshold float32) BinarySet {
	out := make(BinarySet, len(schema.Items()))
	for _, class := range schema.Items() {
		out[class] = &BinaryClassSet{Annotations: []BinaryEntry{}}
	}
	for i := range records {
		rec := &records[i]
		for _, class := range schema.Items() {
			label := AbsentLabel
			if Gate(rec.Labels[class], threshold) {
				label = class
			}
			out[class].Annotations = append(out[class].Annotations, BinaryEntry{
				Filename: rec.Image,
				Label:    label,
			})
		}
	}
	return out
}

func sortedLabelKeys(labels anno.Annotations) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
