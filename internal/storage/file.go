package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/aurore/internal/news"
)

// memoryFile is the on-disk shape of memory/<vertical>.json.
type memoryFile struct {
	UpdatedAt       time.Time `json:"updated_at"`
	ProcessedHashes []string  `json:"processed_hashes"`
	Records         []Record  `json:"records,omitempty"`
}

// FileStore keeps the processed set in a JSON file committed alongside the bot.
type FileStore struct {
	path   string
	mu     sync.Mutex
	loaded bool
	set    news.FingerprintSet
	recs   []Record
	now    func() time.Time
}

// NewFileStore returns a store backed by <dir>/<vertical>.json.
func NewFileStore(dir, vertical string) *FileStore {
	return &FileStore{
		path: filepath.Join(dir, vertical+".json"),
		set:  news.FingerprintSet{},
		now:  time.Now,
	}
}

func (fs *FileStore) Path() string { return fs.path }

func (fs *FileStore) load() error {
	if fs.loaded {
		return nil
	}
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		fs.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read memory file: %w", err)
	}
	if len(data) > 0 {
		var mf memoryFile
		if err := json.Unmarshal(data, &mf); err != nil {
			return fmt.Errorf("failed to unmarshal memory file: %w", err)
		}
		for _, h := range mf.ProcessedHashes {
			fs.set.Add(news.Fingerprint(h))
		}
		fs.recs = mf.Records
	}
	fs.loaded = true
	return nil
}

func (fs *FileStore) save() error {
	mf := memoryFile{
		UpdatedAt:       fs.now().UTC(),
		ProcessedHashes: sortedFingerprints(fs.set),
		Records:         fs.recs,
	}
	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memory file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("failed to create memory dir: %w", err)
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write memory file: %w", err)
	}
	return os.Rename(tmp, fs.path)
}

func (fs *FileStore) Has(_ context.Context, fp news.Fingerprint) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.load(); err != nil {
		return false, err
	}
	return fs.set.Has(fp), nil
}

func (fs *FileStore) Mark(_ context.Context, rec Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.load(); err != nil {
		return err
	}
	if fs.set.Has(rec.Fingerprint) {
		return nil
	}
	fs.set.Add(rec.Fingerprint)
	fs.recs = append(fs.recs, rec)
	return fs.save()
}

func (fs *FileStore) ListAll(_ context.Context) (news.FingerprintSet, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.load(); err != nil {
		return nil, err
	}
	out := make(news.FingerprintSet, len(fs.set))
	for fp := range fs.set {
		out.Add(fp)
	}
	return out, nil
}

func (fs *FileStore) SaveAll(_ context.Context, set news.FingerprintSet) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.loaded = true
	fs.set = make(news.FingerprintSet, len(set))
	for fp := range set {
		fs.set.Add(fp)
	}
	return fs.save()
}

func sortedFingerprints(set news.FingerprintSet) []string {
	out := make([]string, 0, len(set))
	for fp := range set {
		out = append(out, string(fp))
	}
	sort.Strings(out)
	return out
}
