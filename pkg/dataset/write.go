package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// On-disk layout inside a run's output directory:
//
//	labels.jsonl
//	binary_datasets/<class>/annotations.json
//	binary_datasets_balanced/<class>/annotations.json
//	detection_datasets/annotations.json
//	multilabel_datasets/annotations.json
//
// All writers are byte-stable for a fixed input, so re-running an export
// over the same log is a no-op diff.

const (
	BinaryDirName         = "binary_datasets"
	BinaryBalancedDirName = "binary_datasets_balanced"
	DetectionDirName      = "detection_datasets"
	MultilabelDirName     = "multilabel_datasets"
	AnnotationsFilename   = "annotations.json"
)

// WriteBinary writes one directory per class under root.
// Classes are written in the given order; an IO failure aborts this artifact
// but the error reports which class failed.
func WriteBinary(root string, sets BinarySet, order []string) error {
	for _, class := range order {
		set, ok := sets[class]
		if !ok {
			continue
		}
		dir := filepath.Join(root, class)
		if err := os.MkdirAll(dir, 0770); err != nil {
			return fmt.Errorf("Failed to create dataset directory '%v': %w", dir, err)
		}
		if err := writeJSONFile(filepath.Join(dir, AnnotationsFilename), set); err != nil {
			return fmt.Errorf("Failed to write binary dataset for class '%v': %w", class, err)
		}
	}
	return nil
}

// WriteCOCO writes a COCO dataset as root/annotations.json.
func WriteCOCO(root string, ds *COCODataset) error {
	if err := os.MkdirAll(root, 0770); err != nil {
		return fmt.Errorf("Failed to create dataset directory '%v': %w", root, err)
	}
	return writeJSONFile(filepath.Join(root, AnnotationsFilename), ds)
}

// ReadBinary reads back a binary dataset tree written by WriteBinary, one
// class per subdirectory. Used by the post-hoc balancing pass.
func ReadBinary(root string) (BinarySet, []string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to read dataset directory '%v': %w", root, err)
	}
	sets := BinarySet{}
	order := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		class := entry.Name()
		raw, err := os.ReadFile(filepath.Join(root, class, AnnotationsFilename))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil, fmt.Errorf("Failed to read binary dataset for class '%v': %w", class, err)
		}
		set := &BinaryClassSet{}
		if err := json.Unmarshal(raw, set); err != nil {
			return nil, nil, fmt.Errorf("Corrupt binary dataset for class '%v': %w", class, err)
		}
		sets[class] = set
		order = append(order, class)
	}
	return sets, order, nil
}

func writeJSONFile(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	return os.WriteFile(path, raw, 0660)
}
