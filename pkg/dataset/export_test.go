package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/framelab/framelab/pkg/anno"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *anno.Schema {
	t.Helper()
	s, err := anno.ParseSchema([]byte(`{
		"avocado": {"present": false, "confidence": 0.0, "bbox": null},
		"lettuce": {"present": false, "confidence": 0.0, "bbox": null},
		"tomato": {"present": false, "confidence": 0.0, "bbox": null}
	}`))
	require.NoError(t, err)
	return s
}

func box(x0, y0, x1, y1 float32) *anno.Box {
	return &anno.Box{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func testRecords() []FrameRecord {
	return []FrameRecord{
		{
			Image:     "frames/frame_000000.jpg",
			FrameID:   "0",
			Width:     640,
			Height:    480,
			Timestamp: 1700000000,
			Labels: anno.Annotations{
				"avocado": {Present: true, Confidence: 0.95, BBox: box(0.1, 0.1, 0.5, 0.5)},
				"lettuce": {Present: true, Confidence: 0.85}, // below the 0.9 gate
				"tomato":  {Present: false, Confidence: 0.0},
			},
		},
		{
			Image:     "frames/frame_000001.jpg",
			FrameID:   "1",
			Width:     640,
			Height:    480,
			Timestamp: 1700000001,
			Labels: anno.Annotations{
				"avocado": {Present: true, Confidence: 0.97}, // present but no usable box
				"lettuce": {Present: true, Confidence: 0.99, BBox: box(0.2, 0.2, 0.9, 0.8)},
				"tomato":  {Present: false, Confidence: 0.1},
			},
		},
	}
}

func TestBuildBinaryGate(t *testing.T) {
	schema := testSchema(t)
	sets := BuildBinary(testRecords(), schema, 0.9)
	require.Len(t, sets, 3)

	// Every class gets one entry per record, in record order
	for _, class := range schema.Items() {
		require.Len(t, sets[class].Annotations, 2)
		require.Equal(t, "frames/frame_000000.jpg", sets[class].Annotations[0].Filename)
	}

	require.Equal(t, "avocado", sets["avocado"].Annotations[0].Label)
	// present=true but confidence 0.85 < 0.9 → absent
	require.Equal(t, AbsentLabel, sets["lettuce"].Annotations[0].Label)
	require.Equal(t, "lettuce", sets["lettuce"].Annotations[1].Label)
	require.Equal(t, AbsentLabel, sets["tomato"].Annotations[0].Label)
	require.Equal(t, AbsentLabel, sets["tomato"].Annotations[1].Label)
}

func TestBuildDetection(t *testing.T) {
	schema := testSchema(t)
	ds := BuildDetection(testRecords(), schema, 0.9)

	require.Len(t, ds.Images, 2)
	require.Equal(t, "frame_000000.jpg", ds.Images[0].FileName)

	// Frame 0: only avocado passes the gate with a usable box.
	// Frame 1: only lettuce does (avocado is present but box-less).
	require.Len(t, ds.Annotations, 2)
	require.Equal(t, 1, ds.Annotations[0].CategoryID) // avocado
	require.Equal(t, 1, ds.Annotations[0].ImageID)
	require.Equal(t, 2, ds.Annotations[1].CategoryID) // lettuce
	require.Equal(t, 2, ds.Annotations[1].ImageID)

	// Pixel conversion of [0.1,0.1,0.5,0.5] at 640x480
	require.Equal(t, [4]int{64, 48, 256, 192}, ds.Annotations[0].BBox)
	require.Equal(t, 256*192, ds.Annotations[0].Area)

	// Category IDs are 1-based in schema order
	require.Equal(t, []COCOCategory{
		{ID: 1, Name: "avocado", Supercategory: "object"},
		{ID: 2, Name: "lettuce", Supercategory: "object"},
		{ID: 3, Name: "tomato", Supercategory: "object"},
	}, ds.Categories)
}

func TestBuildMultilabelFullImageBoxes(t *testing.T) {
	schema := testSchema(t)
	ds := BuildMultilabel(testRecords(), schema, 0.9)

	// avocado on both frames, lettuce on frame 1
	require.Len(t, ds.Annotations, 3)
	for _, a := range ds.Annotations {
		require.Equal(t, [4]int{0, 0, 640, 480}, a.BBox)
		require.Equal(t, 640*480, a.Area)
	}
}

func TestExportIdempotent(t *testing.T) {
	schema := testSchema(t)
	records := testRecords()

	bin1, _ := json.Marshal(BuildBinary(records, schema, 0.9)["avocado"])
	bin2, _ := json.Marshal(BuildBinary(records, schema, 0.9)["avocado"])
	require.Equal(t, bin1, bin2)

	det1, _ := json.Marshal(BuildDetection(records, schema, 0.9))
	det2, _ := json.Marshal(BuildDetection(records, schema, 0.9))
	require.Equal(t, det1, det2)

	// And on disk: writing twice produces byte-identical files
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	require.NoError(t, WriteCOCO(dir1, BuildDetection(records, schema, 0.9)))
	require.NoError(t, WriteCOCO(dir2, BuildDetection(records, schema, 0.9)))
	f1, err := os.ReadFile(filepath.Join(dir1, AnnotationsFilename))
	require.NoError(t, err)
	f2, err := os.ReadFile(filepath.Join(dir2, AnnotationsFilename))
	require.NoError(t, err)
	require.Equal(t, f1, f2)
}

func TestWriteAndReadBinaryRoundTrip(t *testing.T) {
	schema := testSchema(t)
	sets := BuildBinary(testRecords(), schema, 0.9)
	root := t.TempDir()
	require.NoError(t, WriteBinary(root, sets, schema.Items()))

	back, order, err := ReadBinary(root)
	require.NoError(t, err)
	require.ElementsMatch(t, schema.Items(), order)
	for _, class := range schema.Items() {
		require.Equal(t, sets[class].Annotations, back[class].Annotations)
	}
}

func TestCountDiagnosticsByCause(t *testing.T) {
	records := []FrameRecord{
		{Diagnostic: ""},
		{Diagnostic: DiagnosticInferenceFailed + ": context deadline exceeded"},
		{Diagnostic: DiagnosticParseFailed + ": no_json_found"},
		{Diagnostic: DiagnosticParseFailed + ": malformed_json"},
		{Diagnostic: DiagnosticGeometryDrop + " 2 malformed bounding box(es)"},
	}
	counts := CountDiagnostics(records)
	require.Equal(t, 1, counts.InferenceFailures)
	require.Equal(t, 2, counts.ParseFallbacks)
	require.Equal(t, 1, counts.GeometryDrops)
}

func TestAnalyzeConfidence(t *testing.T) {
	records := testRecords()
	threshold, msg := AnalyzeConfidence(records)
	// All present confidences are >= 0.5, so the lowest candidate wins
	require.EqualValues(t, 0.5, threshold)
	require.Contains(t, msg, "present objects")

	threshold, _ = AnalyzeConfidence(nil)
	require.EqualValues(t, 0.5, threshold)
}
