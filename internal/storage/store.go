// Package storage persists the fingerprints of processed articles.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/deusflow/aurore/internal/cache"
	"github.com/deusflow/aurore/internal/news"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("not found")

// Record is the persisted fact that a fingerprint was processed.
// It is written once and never mutated.
type Record struct {
	Fingerprint news.Fingerprint `json:"fingerprint"`
	ProcessedAt time.Time        `json:"processed_at"`
	PublishedAt time.Time        `json:"published_at,omitempty"`
	Title       string           `json:"title,omitempty"`
	SourceURL   string           `json:"source_url,omitempty"`
	PageURL     string           `json:"page_url,omitempty"`
	PullRequest string           `json:"pull_request,omitempty"`
}

// Store is the dedup key/value interface used by the pipeline.
type Store interface {
	Has(ctx context.Context, fp news.Fingerprint) (bool, error)
	Mark(ctx context.Context, rec Record) error
}

// SetStore is the legacy whole-set interface.
type SetStore interface {
	ListAll(ctx context.Context) (news.FingerprintSet, error)
	SaveAll(ctx context.Context, set news.FingerprintSet) error
}

// Memoized caches Has answers for the duration of a run.
type Memoized struct {
	Store
	seen *cache.Cache[news.Fingerprint, bool]
}

func Memoize(s Store) *Memoized {
	return &Memoized{Store: s, seen: cache.New[news.Fingerprint, bool]()}
}

func (m *Memoized) Has(ctx context.Context, fp news.Fingerprint) (bool, error) {
	if v, ok := m.seen.Get(fp); ok {
		return v, nil
	}
	v, err := m.Store.Has(ctx, fp)
	if err != nil {
		return false, err
	}
	m.seen.Set(fp, v, 0)
	return v, nil
}

// Seed records every fingerprint of set as processed without asking the store.
func (m *Memoized) Seed(set news.FingerprintSet) {
	for fp := range set {
		m.seen.Set(fp, true, 0)
	}
}

func (m *Memoized) Mark(ctx context.Context, rec Record) error {
	if err := m.Store.Mark(ctx, rec); err != nil {
		return err
	}
	m.seen.Set(rec.Fingerprint, true, 0)
	return nil
}

// Resolve asks the store about every fingerprint and returns the processed ones.
// Any store error aborts: without an answer uniqueness cannot be guaranteed.
func Resolve(ctx context.Context, s Store, fps []news.Fingerprint) (news.FingerprintSet, error) {
	set := news.FingerprintSet{}
	for _, fp := range fps {
		if set.Has(fp) {
			continue
		}
		ok, err := s.Has(ctx, fp)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", fp, err)
		}
		if ok {
			set.Add(fp)
		}
	}
	return set, nil
}

var hexFingerprint = regexp.MustCompile(`^[0-9a-f]{64}$`)

// LegacyFingerprint converts one entry of a legacy processed set. Older runs
// stored raw article URLs; those are normalized and fingerprinted.
func LegacyFingerprint(entry string) (news.Fingerprint, bool) {
	entry = strings.TrimSpace(entry)
	if hexFingerprint.MatchString(entry) {
		return news.Fingerprint(entry), true
	}
	u, err := news.Normalize(entry)
	if err != nil {
		return "", false
	}
	return news.FingerprintOf(u), true
}

// LoadLegacy reads the whole legacy set of s as fingerprints. Entries that
// are neither fingerprints nor valid URLs are skipped.
func LoadLegacy(ctx context.Context, s SetStore) (news.FingerprintSet, int, error) {
	raw, err := s.ListAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	set := make(news.FingerprintSet, len(raw))
	skipped := 0
	for entry := range raw {
		fp, ok := LegacyFingerprint(string(entry))
		if !ok {
			skipped++
			continue
		}
		set.Add(fp)
	}
	return set, skipped, nil
}
