package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/framelab/framelab/pkg/anno"
	"github.com/framelab/framelab/pkg/infer"
	"github.com/stretchr/testify/require"
)

func TestRecordLogAppendAndReload(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenRecordLog(dir)
	require.NoError(t, err)

	records := testRecords()
	for _, rec := range records {
		require.NoError(t, log.Append(rec))
	}
	require.Equal(t, 2, log.Len())
	require.NoError(t, log.Close())

	// One JSON object per line, no partial lines
	raw, err := os.ReadFile(filepath.Join(dir, LabelsFilename))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)

	// Reload sees the same records
	back, err := LoadRecords(filepath.Join(dir, LabelsFilename))
	require.NoError(t, err)
	require.Equal(t, records, back)

	// Reopening resumes with history intact
	log2, err := OpenRecordLog(dir)
	require.NoError(t, err)
	require.Equal(t, 2, log2.Len())
	require.NoError(t, log2.Append(FrameRecord{
		Image:   "frames/frame_000002.jpg",
		FrameID: "2",
		Labels:  anno.Annotations{"avocado": {}},
		Usage:   infer.Usage{TotalTokens: 12},
	}))
	require.Equal(t, 3, log2.Len())
	require.NoError(t, log2.Close())
}

func TestRecordLogSnapshotIsolated(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenRecordLog(dir)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append(testRecords()[0]))
	snap := log.Snapshot()
	require.Len(t, snap, 1)

	// Appending after the snapshot must not grow the snapshot
	require.NoError(t, log.Append(testRecords()[1]))
	require.Len(t, snap, 1)
	require.Equal(t, 2, log.Len())
}

func TestLoadRecordsRejectsCorruptLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LabelsFilename)
	require.NoError(t, os.WriteFile(path, []byte("{\"image\":\"a.jpg\"}\nnot json\n"), 0660))
	_, err := LoadRecords(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), ":2")
}

func TestRecordKeysFirstSeenOrder(t *testing.T) {
	records := []FrameRecord{
		{Labels: anno.Annotations{"b": {}, "a": {}}},
		{Labels: anno.Annotations{"c": {}, "a": {}}},
	}
	require.Equal(t, []string{"a", "b", "c"}, RecordKeys(records))
}
