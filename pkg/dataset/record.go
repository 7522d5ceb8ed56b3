package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/framelab/framelab/pkg/anno"
	"github.com/framelab/framelab/pkg/infer"
)

// LabelsFilename is the name of the append-only per-frame record log inside
// a run's output directory.
const LabelsFilename = "labels.jsonl"

// FrameRecord is the annotation outcome for one input frame. It is created
// once, appended to the log, and never mutated afterwards; every dataset
// artifact is a pure function of a sequence of these.
type FrameRecord struct {
	Image          string           `json:"image"`  // path of the saved frame image, relative to the run's output root
	Labels         anno.Annotations `json:"labels"` // exactly the schema's keys
	Usage          infer.Usage      `json:"usage"`
	FrameID        string           `json:"frame_id"`
	Width          int              `json:"width,omitempty"`
	Height         int              `json:"height,omitempty"`
	Model          string           `json:"model,omitempty"`
	ProcessingTime float64          `json:"processing_time"`
	Timestamp      float64          `json:"timestamp"` // wall clock, seconds
	Diagnostic     string           `json:"diagnostic,omitempty"`
}

// DefaultImageWidth/Height are assumed when a legacy log has no dimensions.
const (
	DefaultImageWidth  = 640
	DefaultImageHeight = 480
)

// Dimensions returns the recorded image size, defaulting for legacy records.
func (r *FrameRecord) Dimensions() (int, int) {
	if r.Width > 0 && r.Height > 0 {
		return r.Width, r.Height
	}
	return DefaultImageWidth, DefaultImageHeight
}

// RecordLog is the run's append-only record of frames, backed by a JSONL
// file. Append is the single serialization point of the pipeline: frames may
// be annotated concurrently, but records enter the log one at a time, fully
// or not at all.
type RecordLog struct {
	mu      sync.Mutex
	file    *os.File
	records []FrameRecord
	path    string
}

// OpenRecordLog opens (creating if needed) the labels.jsonl inside outputDir.
// Existing records are read back in, so a run can be resumed and dataset
// export still sees the full history.
func OpenRecordLog(outputDir string) (*RecordLog, error) {
	if err := os.MkdirAll(outputDir, 0770); err != nil {
		return nil, fmt.Errorf("Failed to create output directory '%v': %w", outputDir, err)
	}
	path := filepath.Join(outputDir, LabelsFilename)
	existing := []FrameRecord{}
	if _, err := os.Stat(path); err == nil {
		existing, err = LoadRecords(path)
		if err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		return nil, fmt.Errorf("Failed to open record log '%v': %w", path, err)
	}
	return &RecordLog{
		file:    file,
		records: existing,
		path:    path,
	}, nil
}

// Append writes one record to the log. The line is flushed to the OS before
// we return, so a crash after Append cannot lose the record. Concurrent
// callers are serialized; partial lines never interleave.
func (l *RecordLog) Append(rec FrameRecord) error {
	line, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("Failed to encode record for frame '%v': %w", rec.FrameID, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("Failed to append record for frame '%v': %w", rec.FrameID, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("Failed to flush record log: %w", err)
	}
	l.records = append(l.records, rec)
	return nil
}

// Snapshot returns a copy of the records appended so far. Exporters work off
// a snapshot so that a long export never races a live Append.
func (l *RecordLog) Snapshot() []FrameRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FrameRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records in the log.
func (l *RecordLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *RecordLog) Path() string {
	return l.path
}

func (l *RecordLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// LoadRecords reads a labels.jsonl file written by a previous run.
// Blank lines are skipped; a corrupt line is an error, because silently
// dropping records would skew every derived dataset.
func LoadRecords(path string) ([]FrameRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to open record log '%v': %w", path, err)
	}
	defer f.Close()

	records := []FrameRecord{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec FrameRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("Corrupt record at %v:%v: %w", path, lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Failed to read record log '%v': %w", path, err)
	}
	return records, nil
}

// RecordKeys returns the label keys seen across records, in first-seen
// order. Used to rebuild a schema when regenerating datasets from a log.
// Within one record, keys are ordered to keep the result deterministic.
func RecordKeys(records []FrameRecord) []string {
	seen := map[string]bool{}
	keys := []string{}
	for i := range records {
		for _, k := range sortedLabelKeys(records[i].Labels) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}
