package dataset

import (
	"path/filepath"
	"time"

	"github.com/framelab/framelab/pkg/anno"
)

// COCO-shaped detection dataset. The field set mirrors what COCO tooling
// expects to find in annotations.json, including the info/licenses
// boilerplate.

type COCOInfo struct {
	Description string `json:"description"`
	Version     string `json:"version"`
	Year        int    `json:"year"`
	Contributor string `json:"contributor"`
	DateCreated string `json:"date_created"`
}

type COCOLicense struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type COCOImage struct {
	ID       int    `json:"id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileName string `json:"file_name"`
	License  int    `json:"license"`
}

type COCOAnnotation struct {
	ID           int     `json:"id"`
	ImageID      int     `json:"image_id"`
	CategoryID   int     `json:"category_id"`
	Segmentation []any   `json:"segmentation"`
	Area         int     `json:"area"`
	BBox         [4]int  `json:"bbox"` // pixel space [x, y, width, height]
	IsCrowd      int     `json:"iscrowd"`
	Confidence   float32 `json:"confidence,omitempty"`
}

type COCOCategory struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

type COCODataset struct {
	Info        COCOInfo         `json:"info"`
	Licenses    []COCOLicense    `json:"licenses"`
	Images      []COCOImage      `json:"images"`
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  []COCOCategory   `json:"categories"`
}

// BuildDetection derives a COCO detection dataset from the record log.
// One image entry per record; one annotation per (record, item) where the
// gate passes AND the item carries a usable normalized box. A present item
// without a usable box still counts for classification, but contributes
// nothing here.
//
// Category IDs are 1-based in schema declaration order, so they are stable
// across export calls for a fixed schema.
func BuildDetection(records []FrameRecord, schema *anno.Schema, threshold float32) *COCODataset {
	ds := newCOCODataset("Detection Dataset", records, schema)
	annotationID := 1
	for i := range records {
		rec := &records[i]
		width, height := rec.Dimensions()
		imageID := i + 1
		ds.Images = append(ds.Images, COCOImage{
			ID:       imageID,
			Width:    width,
			Height:   height,
			FileName: filepath.Base(rec.Image),
			License:  1,
		})
		for catID, class := range schema.Items() {
			a := rec.Labels[class]
			if !Gate(a, threshold) || a.BBox == nil {
				continue
			}
			rect := a.BBox.ToRect(width, height)
			ds.Annotations = append(ds.Annotations, COCOAnnotation{
				ID:           annotationID,
				ImageID:      imageID,
				CategoryID:   catID + 1,
				Segmentation: []any{},
				Area:         rect.Area(),
				BBox:         [4]int{rect.X, rect.Y, rect.Width, rect.Height},
				IsCrowd:      0,
				Confidence:   a.Confidence,
			})
			annotationID++
		}
	}
	return ds
}

// BuildMultilabel derives a COCO dataset where every gated-present label
// gets a box covering the whole image. This is the multilabel-classification
// rendering of the log: useful when the schema has no bbox slots but COCO
// tooling is the downstream consumer.
func BuildMultilabel(records []FrameRecord, schema *anno.Schema, threshold float32) *COCODataset {
	ds := newCOCODataset("Multilabel Dataset", records, schema)
	annotationID := 1
	for i := range records {
		rec := &records[i]
		width, height := rec.Dimensions()
		imageID := i + 1
		ds.Images = append(ds.Images, COCOImage{
			ID:       imageID,
			Width:    width,
			Height:   height,
			FileName: filepath.Base(rec.Image),
			License:  1,
		})
		for catID, class := range schema.Items() {
			if !Gate(rec.Labels[class], threshold) {
				continue
			}
			ds.Annotations = append(ds.Annotations, COCOAnnotation{
				ID:           annotationID,
				ImageID:      imageID,
				CategoryID:   catID + 1,
				Segmentation: []any{},
				Area:         width * height,
				BBox:         [4]int{0, 0, width, height},
				IsCrowd:      0,
			})
			annotationID++
		}
	}
	return ds
}

func newCOCODataset(description string, records []FrameRecord, schema *anno.Schema) *COCODataset {
	ds := &COCODataset{
		Info: COCOInfo{
			Description: description,
			Version:     "1.0",
			Contributor: "framelab",
			// Derived from the log rather than the wall clock, so the same
			// log always exports byte-identical artifacts.
			Year:        datasetYear(records),
			DateCreated: datasetDate(records),
		},
		Licenses:    []COCOLicense{{ID: 1, Name: "Unknown", URL: ""}},
		Images:      []COCOImage{},
		Annotations: []COCOAnnotation{},
		Categories:  []COCOCategory{},
	}
	for i, class := range schema.Items() {
		ds.Categories = append(ds.Categories, COCOCategory{
			ID:            i + 1,
			Name:          class,
			Supercategory: "object",
		})
	}
	return ds
}

func lastTimestamp(records []FrameRecord) time.Time {
	latest := 0.0
	for i := range records {
		if records[i].Timestamp > latest {
			latest = records[i].Timestamp
		}
	}
	if latest == 0 {
		return time.Time{}
	}
	return time.Unix(int64(latest), 0).UTC()
}

func datasetYear(records []FrameRecord) int {
	t := lastTimestamp(records)
	if t.IsZero() {
		return 0
	}
	return t.Year()
}

func datasetDate(records []FrameRecord) string {
	t := lastTimestamp(records)
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
