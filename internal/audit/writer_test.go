package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(requestID string) Record {
	return Record{
		ID:             NewRecordID(),
		Timestamp:      time.Now().UTC(),
		RequestID:      requestID,
		EndpointKind:   "tool",
		EndpointID:     "tool:add",
		UserID:         "u1",
		UserRole:       "analyst",
		DurationMS:     12,
		Status:         StatusSuccess,
		PolicyDecision: "none",
		InputRedacted:  map[string]interface{}{"a": float64(1)},
	}
}

func readLines(t *testing.T, path string) []Record {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestLoggerWritesOrderedLines(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(Config{Dir: dir}, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		rec := testRecord("req-" + string(rune('a'+i)))
		l.Enqueue(rec)
	}
	require.NoError(t, l.Close())

	day := time.Now().UTC().Format(dateLayout)
	records := readLines(t, filepath.Join(dir, filePrefix+day+fileSuffix))
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, "req-"+string(rune('a'+i)), rec.RequestID)
		assert.Equal(t, SchemaID, rec.SchemaID)
		assert.Equal(t, SchemaVersion, rec.SchemaVersion)
		assert.Equal(t, StatusSuccess, rec.Status)
	}
}

func TestLoggerCloseFlushesQueue(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(Config{Dir: dir, QueueSize: 64}, nil)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		l.Enqueue(testRecord("req"))
	}
	require.NoError(t, l.Close())

	day := time.Now().UTC().Format(dateLayout)
	records := readLines(t, filepath.Join(dir, filePrefix+day+fileSuffix))
	assert.Len(t, records, 50)
}

func TestSweepRemovesFilesPastHorizon(t *testing.T) {
	dir := t.TempDir()

	oldDay := time.Now().UTC().AddDate(0, 0, -10).Format(dateLayout)
	recentDay := time.Now().UTC().Format(dateLayout)
	oldPath := filepath.Join(dir, filePrefix+oldDay+fileSuffix)
	recentPath := filepath.Join(dir, filePrefix+recentDay+fileSuffix)
	unrelatedPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("{}\n"), 0o600))
	require.NoError(t, os.WriteFile(recentPath, []byte("{}\n"), 0o600))
	require.NoError(t, os.WriteFile(unrelatedPath, []byte("keep"), 0o600))

	l, err := NewLogger(Config{Dir: dir, RetentionDays: 7}, nil)
	require.NoError(t, err)
	require.NoError(t, l.Sweep())
	require.NoError(t, l.Close())

	assert.NoFileExists(t, oldPath)
	assert.FileExists(t, recentPath)
	assert.FileExists(t, unrelatedPath)
}

func TestRecordIDsAreSortable(t *testing.T) {
	first := NewRecordID()
	time.Sleep(2 * time.Millisecond)
	second := NewRecordID()
	assert.Less(t, first, second)
}
