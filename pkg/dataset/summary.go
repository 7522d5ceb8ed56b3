package dataset

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// SummaryFilename holds the per-run dataset build report.
const SummaryFilename = "_summary_report.json"

// Summary describes one dataset build, written next to the artifacts so an
// operator can see what a directory contains without replaying the log.
type Summary struct {
	TotalFrames         int      `json:"total_frames"`
	Classes             []string `json:"classes"`
	ConfidenceThreshold float32  `json:"confidence_threshold"`
	BinaryEntries       int      `json:"binary_entries"`
	BalancedPerSide     int      `json:"balanced_per_side"`
	DetectionBoxes      int      `json:"detection_boxes,omitempty"`
	MultilabelBoxes     int      `json:"multilabel_boxes,omitempty"`
	InferenceFailures   int      `json:"inference_failures"`
	ParseFallbacks      int      `json:"parse_fallbacks"`
	GeometryDrops       int      `json:"geometry_drops"`
	Notes               []string `json:"notes,omitempty"`
}

// WriteSummary writes the report into outputDir.
func WriteSummary(outputDir string, s *Summary) error {
	if err := writeJSONFile(filepath.Join(outputDir, SummaryFilename), s); err != nil {
		return fmt.Errorf("Failed to write summary report: %w", err)
	}
	return nil
}

// AnalyzeConfidence looks at the confidence distribution of present items
// and suggests a gate threshold that keeps at least 80% of them. Returns the
// suggestion and a human-readable explanation. With no present items at all,
// the suggestion is 0.5.
func AnalyzeConfidence(records []FrameRecord) (float32, string) {
	present := []float32{}
	for i := range records {
		for _, a := range records[i].Labels {
			if a.Present {
				present = append(present, a.Confidence)
			}
		}
	}
	if len(present) == 0 {
		return 0.5, "No present objects found"
	}
	sort.Slice(present, func(i, j int) bool { return present[i] < present[j] })

	candidates := []float32{0.5, 0.6, 0.7, 0.8, 0.9}
	suggested := float32(0.7)
	for _, threshold := range candidates {
		kept := 0
		for _, c := range present {
			if c >= threshold {
				kept++
			}
		}
		if kept*10 >= len(present)*8 {
			suggested = threshold
			break
		}
	}
	return suggested, fmt.Sprintf("Found %v present objects. Suggested threshold: %v", len(present), suggested)
}

// Diagnostic prefixes of FrameRecord.Diagnostic, one per fallback class.
// The pipeline writes them; CountDiagnostics reads them back, so a rebuild
// from an old log reports the same counts as the run that wrote it.
const (
	DiagnosticInferenceFailed = "inference failed"
	DiagnosticParseFailed     = "parse failed"
	DiagnosticGeometryDrop    = "dropped"
)

// DiagnosticCounts splits the records that carry a diagnostic by cause.
// A record has at most one diagnostic.
type DiagnosticCounts struct {
	InferenceFailures int
	ParseFallbacks    int
	GeometryDrops     int
}

// CountDiagnostics tallies the per-record diagnostics by fallback class.
func CountDiagnostics(records []FrameRecord) DiagnosticCounts {
	counts := DiagnosticCounts{}
	for i := range records {
		d := records[i].Diagnostic
		switch {
		case d == "":
		case strings.HasPrefix(d, DiagnosticInferenceFailed):
			counts.InferenceFailures++
		case strings.HasPrefix(d, DiagnosticParseFailed):
			counts.ParseFallbacks++
		case strings.HasPrefix(d, DiagnosticGeometryDrop):
			counts.GeometryDrops++
		}
	}
	return counts
}
