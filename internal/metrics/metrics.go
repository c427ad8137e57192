// Package metrics counts what happened during one run.
package metrics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	Candidates      int64
	Invalid         int64
	Duplicates      int64
	TooShort        int64
	SummariesOK     int64
	SummariesFailed int64
	Published       int64
	IndexFailures   int64
	Announcements   int64
	MarkFailures    int64

	// Timings
	Stages    map[string]time.Duration
	StartedAt time.Time
	Duration  time.Duration

	// Status
	Outcome   string
	LastError string
}

func New(now time.Time) *Metrics {
	return &Metrics{Stages: make(map[string]time.Duration), StartedAt: now}
}

func (m *Metrics) Add(counter *int64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter += int64(n)
}

// Time records the duration of a stage; use as defer m.Time("fetch", time.Now()).
func (m *Metrics) Time(stage string, start time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stages[stage] += time.Since(start)
}

func (m *Metrics) Finish(outcome string, err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcome = outcome
	m.Duration = now.Sub(m.StartedAt)
	if err != nil {
		m.LastError = err.Error()
	}
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stages := make(map[string]int64, len(m.Stages))
	for k, v := range m.Stages {
		stages[k] = v.Milliseconds()
	}
	return map[string]interface{}{
		"candidates":       m.Candidates,
		"invalid":          m.Invalid,
		"duplicates":       m.Duplicates,
		"too_short":        m.TooShort,
		"summaries_ok":     m.SummariesOK,
		"summaries_failed": m.SummariesFailed,
		"published":        m.Published,
		"index_failures":   m.IndexFailures,
		"announcements":    m.Announcements,
		"mark_failures":    m.MarkFailures,
		"stages_ms":        stages,
		"started_at":       m.StartedAt.UTC().Format(time.RFC3339),
		"duration_ms":      m.Duration.Milliseconds(),
		"outcome":          m.Outcome,
		"last_error":       m.LastError,
	}
}

// Log writes the run summary as one record.
func (m *Metrics) Log(log *slog.Logger) {
	stats := m.GetStats()
	args := make([]any, 0, len(stats)*2)
	for _, k := range []string{"outcome", "candidates", "invalid", "duplicates", "too_short",
		"summaries_ok", "summaries_failed", "published", "index_failures", "announcements",
		"mark_failures", "duration_ms"} {
		args = append(args, k, stats[k])
	}
	log.Info("run summary", args...)
}

// WriteFile stores the stats as JSON, for CI artifacts.
func (m *Metrics) WriteFile(path string) error {
	data, err := json.MarshalIndent(m.GetStats(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
