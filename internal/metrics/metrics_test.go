package metrics

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	m := New(start)
	m.Add(&m.Candidates, 12)
	m.Add(&m.Duplicates, 3)
	m.Add(&m.Duplicates, 1)
	m.Add(&m.Published, 1)
	m.Time("fetch", time.Now().Add(-time.Second))
	m.Finish("published", errors.New("mark: 503"), start.Add(90*time.Second))

	stats := m.GetStats()
	if stats["candidates"] != int64(12) || stats["duplicates"] != int64(4) {
		t.Errorf("counters = %v", stats)
	}
	if stats["duration_ms"] != int64(90000) || stats["last_error"] != "mark: 503" {
		t.Errorf("status = %v", stats)
	}
	if ms := stats["stages_ms"].(map[string]int64)["fetch"]; ms < 1000 {
		t.Errorf("fetch stage = %dms", ms)
	}

	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := m.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, _ := os.ReadFile(path)
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("metrics file is not JSON: %v", err)
	}
	if decoded["outcome"] != "published" {
		t.Errorf("outcome = %v", decoded["outcome"])
	}
}
