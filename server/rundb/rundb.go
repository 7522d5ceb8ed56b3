package rundb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// RunDB keeps the history of annotation runs in a local SQLite database.
type RunDB struct {
	Log logs.Log
	DB  *gorm.DB
}

// Open or create a run DB
func Open(logger logs.Log, dbFilename string) (*RunDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0770)
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &RunDB{
		Log: logger,
		DB:  db,
	}, nil
}

// StartRun records the beginning of a run and returns it with its ID set.
func (r *RunDB) StartRun(model, outputDir, promptHash string, classes []string, confidenceThreshold float64) (*Run, error) {
	run := &Run{
		StartedAt:           dbh.MakeIntTime(time.Now()),
		Model:               model,
		OutputDir:           outputDir,
		PromptHash:          promptHash,
		Classes:             dbh.MakeJSONField(classes),
		ConfidenceThreshold: confidenceThreshold,
	}
	if err := r.DB.Create(run).Error; err != nil {
		return nil, fmt.Errorf("Failed to record run start: %w", err)
	}
	return run, nil
}

// Counters is the final tally of a run, written once at finalize.
type Counters struct {
	Frames            int64
	ParseFallbacks    int64
	GeometryDrops     int64
	InferenceFailures int64
}

// FinishRun stamps the end time and stores the diagnostic counters.
func (r *RunDB) FinishRun(runID int64, counters Counters) error {
	updates := map[string]any{
		"finished_at":        dbh.MakeIntTime(time.Now()),
		"frames":             counters.Frames,
		"parse_fallbacks":    counters.ParseFallbacks,
		"geometry_drops":     counters.GeometryDrops,
		"inference_failures": counters.InferenceFailures,
	}
	if err := r.DB.Model(&Run{}).Where("id = ?", runID).Updates(updates).Error; err != nil {
		return fmt.Errorf("Failed to record run end: %w", err)
	}
	return nil
}

// GetRun returns one run by ID.
func (r *RunDB) GetRun(runID int64) (*Run, error) {
	run := &Run{}
	if err := r.DB.First(run, runID).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns all runs, most recent first.
func (r *RunDB) ListRuns() ([]Run, error) {
	runs := []Run{}
	if err := r.DB.Order("started_at DESC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
