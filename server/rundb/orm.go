package rundb

import (
	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Run is one annotation run: a model, a schema, an output directory, and
// the diagnostic counters accumulated while it ran. The labels.jsonl and
// dataset artifacts stay on disk; this table is the queryable index over
// them.
type Run struct {
	BaseModel
	StartedAt           dbh.IntTime              `json:"startedAt"`
	FinishedAt          dbh.IntTime              `json:"finishedAt" gorm:"default:null"`
	Model               string                   `json:"model"`
	OutputDir           string                   `json:"outputDir"`
	PromptHash          string                   `json:"promptHash"` // SHA256 of the prompt text, to spot prompt drift across runs
	Classes             *dbh.JSONField[[]string] `json:"classes"`
	ConfidenceThreshold float64                  `json:"confidenceThreshold"`
	Frames              int64                    `json:"frames"`
	ParseFallbacks      int64                    `json:"parseFallbacks"`
	GeometryDrops       int64                    `json:"geometryDrops"`
	InferenceFailures   int64                    `json:"inferenceFailures"`
}
