package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/aurore/internal/announce"
	"github.com/deusflow/aurore/internal/config"
	"github.com/deusflow/aurore/internal/logger"
	"github.com/deusflow/aurore/internal/news"
	"github.com/deusflow/aurore/internal/publish"
	"github.com/deusflow/aurore/internal/render"
	"github.com/deusflow/aurore/internal/retry"
	"github.com/deusflow/aurore/internal/storage"
	"github.com/deusflow/aurore/internal/summary"
)

type fakeSource struct {
	items []news.Candidate
	err   error
}

func (f fakeSource) Name() string { return "fake" }
func (f fakeSource) Fetch(context.Context) ([]news.Candidate, error) {
	return f.items, f.err
}

type fakeStore struct {
	seen    news.FingerprintSet
	marked  []storage.Record
	hasErr  error
	markErr error
}

func (f *fakeStore) Has(_ context.Context, fp news.Fingerprint) (bool, error) {
	if f.hasErr != nil {
		return false, f.hasErr
	}
	return f.seen.Has(fp), nil
}

func (f *fakeStore) Mark(_ context.Context, rec storage.Record) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, rec)
	return nil
}

type fakeSummarizer struct {
	article summary.Article
	err     error
	source  string
}

func (f *fakeSummarizer) Summarize(_ context.Context, text, _ string) (summary.Article, error) {
	f.source = text
	return f.article, f.err
}

type fakePublisher struct {
	pages    []publish.Page
	entries  []publish.Entry
	taken    map[string]bool
	indexErr error
	err      error
}

func (f *fakePublisher) Reserve(_ context.Context, slug string) (string, error) {
	candidate := slug
	for n := 2; f.taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", slug, n)
	}
	return candidate, nil
}

func (f *fakePublisher) Publish(_ context.Context, page publish.Page, e publish.Entry) (publish.Result, error) {
	if f.err != nil {
		return publish.Result{}, f.err
	}
	f.pages = append(f.pages, page)
	f.entries = append(f.entries, e)
	return publish.Result{
		PublicURL: "https://tech.aurore.fr/" + page.Path(),
		Path:      page.Path(),
		IndexErr:  f.indexErr,
	}, nil
}

type fakeAnnouncer struct {
	text, link string
	calls      int
}

func (f *fakeAnnouncer) Announce(_ context.Context, text, link string) (announce.Outcome, error) {
	f.calls++
	f.text, f.link = text, link
	return announce.Posted, nil
}

type fakeLeaser struct {
	held     bool
	released bool
}

func (f *fakeLeaser) Acquire(_ context.Context, fp news.Fingerprint, _ time.Duration) (storage.Lease, bool, error) {
	if f.held {
		return storage.Lease{}, false, nil
	}
	return storage.Lease{Key: "lease-" + string(fp)}, true, nil
}

func (f *fakeLeaser) Release(context.Context, storage.Lease) error {
	f.released = true
	return nil
}

var longText = strings.Repeat("Une phrase assez longue pour compter comme un vrai contenu. ", 15)

func testConfig() *config.Config {
	return &config.Config{
		Vertical: "tech",
		Site: config.Site{
			ProductionURL:   "https://tech.aurore.fr",
			BrandName:       "Aurore Tech",
			BrandColor:      "#111827",
			Language:        "fr",
			GeminiPrompt:    "Résume.",
			FingerprintMode: "url",
			MinChars:        600,
			MinParagraphs:   3,
			MinWords:        120,
		},
	}
}

type harness struct {
	store     *fakeStore
	summ      *fakeSummarizer
	pub       *fakePublisher
	announcer *fakeAnnouncer
	deps      Deps
}

func newHarness(t *testing.T, items ...news.Candidate) *harness {
	t.Helper()
	r, err := render.New("")
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		store: &fakeStore{seen: news.FingerprintSet{}},
		summ: &fakeSummarizer{article: summary.Article{
			Title: "Énergie : un nouveau record",
			Body:  "<p>Le corps.</p>",
		}},
		pub:       &fakePublisher{},
		announcer: &fakeAnnouncer{},
	}
	h.deps = Deps{
		Source:     fakeSource{items: items},
		Store:      h.store,
		Summarizer: h.summ,
		Renderer:   r,
		Publisher:  h.pub,
		Announcer:  h.announcer,
		Log:        logger.Discard(),
		Now:        func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) },
	}
	return h
}

func candidate(url string, day int) news.Candidate {
	return news.Candidate{
		URL:         url,
		Title:       "t",
		Content:     longText,
		Source:      news.SourceOf(url),
		PublishedAt: time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC),
	}
}

func fingerprint(t *testing.T, raw string) news.Fingerprint {
	t.Helper()
	u, err := news.Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	return news.FingerprintOf(u)
}

func TestRun_NothingToDo(t *testing.T) {
	h := newHarness(t)
	out, err := Run(context.Background(), testConfig(), h.deps)
	if err != nil || out != NoOp {
		t.Fatalf("Run = %v, %v", out, err)
	}

	h = newHarness(t, candidate("https://a.fr/1", 1))
	h.store.seen.Add(fingerprint(t, "https://a.fr/1"))
	out, err = Run(context.Background(), testConfig(), h.deps)
	if err != nil || out != NoOp {
		t.Fatalf("all seen: Run = %v, %v", out, err)
	}
	if len(h.pub.pages) != 0 {
		t.Error("nothing should be published")
	}
}

func TestRun_Publishes(t *testing.T) {
	h := newHarness(t,
		candidate("https://a.fr/old", 1),
		candidate("https://www.a.fr/new?utm_source=x", 3),
		candidate("https://a.fr/seen", 5),
	)
	h.store.seen.Add(fingerprint(t, "https://a.fr/seen"))

	out, err := Run(context.Background(), testConfig(), h.deps)
	if err != nil || out != Published {
		t.Fatalf("Run = %v, %v", out, err)
	}

	if len(h.pub.pages) != 1 {
		t.Fatalf("pages = %d", len(h.pub.pages))
	}
	page := h.pub.pages[0]
	if page.Path() != "articles/2024-02-01-energie-un-nouveau-record.html" {
		t.Errorf("path = %s", page.Path())
	}
	if !strings.Contains(page.HTML, `content="https://tech.aurore.fr/articles/2024-02-01-energie-un-nouveau-record.html"`) {
		t.Error("page does not carry its public URL")
	}
	if !h.pub.entries[0].PublishedAt.Equal(time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("entry date = %v, want the candidate date", h.pub.entries[0].PublishedAt)
	}

	if len(h.store.marked) != 1 || h.store.marked[0].Fingerprint != fingerprint(t, "https://a.fr/new") {
		t.Fatalf("marked = %+v", h.store.marked)
	}
	if h.store.marked[0].PageURL != "https://tech.aurore.fr/articles/2024-02-01-energie-un-nouveau-record.html" {
		t.Errorf("record = %+v", h.store.marked[0])
	}

	if h.announcer.calls != 1 || h.announcer.text != "Énergie : un nouveau record" ||
		h.announcer.link != "https://tech.aurore.fr/articles/2024-02-01-energie-un-nouveau-record.html" {
		t.Errorf("announcer = %+v", h.announcer)
	}
}

func TestRun_SummaryFailureDoesNotMark(t *testing.T) {
	h := newHarness(t, candidate("https://a.fr/1", 1))
	h.summ.err = summary.ErrEmpty

	out, err := Run(context.Background(), testConfig(), h.deps)
	if err != nil || out != NoOp {
		t.Fatalf("Run = %v, %v", out, err)
	}
	if len(h.store.marked) != 0 || len(h.pub.pages) != 0 || h.announcer.calls != 0 {
		t.Error("a failed summary must not publish, mark or announce")
	}
}

func TestRun_PublishFailureIsFatal(t *testing.T) {
	h := newHarness(t, candidate("https://a.fr/1", 1))
	h.pub.err = errors.New("403 forbidden")

	if _, err := Run(context.Background(), testConfig(), h.deps); err == nil {
		t.Fatal("expected error")
	}
	if len(h.store.marked) != 0 {
		t.Error("unpublished article must not be marked")
	}
}

func TestRun_StoreErrorAborts(t *testing.T) {
	h := newHarness(t, candidate("https://a.fr/1", 1))
	h.store.hasErr = errors.New("503")

	if _, err := Run(context.Background(), testConfig(), h.deps); err == nil {
		t.Fatal("expected error")
	}
	if len(h.pub.pages) != 0 {
		t.Error("nothing should be published without a dedup answer")
	}
}

func TestRun_Degraded(t *testing.T) {
	h := newHarness(t, candidate("https://a.fr/1", 1))
	h.store.markErr = errors.New("503")
	out, err := Run(context.Background(), testConfig(), h.deps)
	if err != nil || out != Degraded {
		t.Errorf("mark failure: Run = %v, %v", out, err)
	}

	h = newHarness(t, candidate("https://a.fr/1", 1))
	h.pub.indexErr = errors.New("index conflict")
	out, err = Run(context.Background(), testConfig(), h.deps)
	if err != nil || out != Degraded {
		t.Errorf("index failure: Run = %v, %v", out, err)
	}
	if len(h.store.marked) != 1 {
		t.Error("degraded publish must still be marked")
	}
}

func TestRun_LeaseHeld(t *testing.T) {
	cfg := testConfig()
	cfg.Site.LeaseTTL = time.Minute

	h := newHarness(t, candidate("https://a.fr/1", 1))
	h.deps.Leaser = &fakeLeaser{held: true}
	out, err := Run(context.Background(), cfg, h.deps)
	if err != nil || out != NoOp || len(h.pub.pages) != 0 {
		t.Errorf("held lease: Run = %v, %v", out, err)
	}

	h = newHarness(t, candidate("https://a.fr/1", 1))
	leaser := &fakeLeaser{}
	h.deps.Leaser = leaser
	if out, err := Run(context.Background(), cfg, h.deps); err != nil || out != Published {
		t.Errorf("free lease: Run = %v, %v", out, err)
	}
	if !leaser.released {
		t.Error("lease not released")
	}
}

func TestRun_BlobStoreNotFoundIsUnseen(t *testing.T) {
	var mu sync.Mutex
	puts := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-aurore-token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			mu.Lock()
			puts[strings.TrimPrefix(r.URL.Path, "/tech/")] = true
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	h := newHarness(t, candidate("https://a.fr/1", 1))
	blobs := storage.NewProxyBlobStore(srv.URL, "tech", "secret",
		storage.WithRetry(retry.RetryConfig{MaxAttempts: 1}), storage.WithLogger(logger.Discard()))
	h.deps.Store = storage.Memoize(blobs)

	out, err := Run(context.Background(), testConfig(), h.deps)
	if err != nil || out != Published {
		t.Fatalf("Run = %v, %v", out, err)
	}
	if !puts[string(fingerprint(t, "https://a.fr/1"))] {
		t.Errorf("fingerprint not written: %v", puts)
	}
}

func TestRun_EnrichesShortCandidates(t *testing.T) {
	short := candidate("https://a.fr/short", 2)
	short.Content = "trop court"
	h := newHarness(t, short)
	h.deps.Enricher = enrichFunc(func(cands []news.Candidate) {
		for i := range cands {
			cands[i].Content = longText
		}
	})

	out, err := Run(context.Background(), testConfig(), h.deps)
	if err != nil || out != Published {
		t.Fatalf("Run = %v, %v", out, err)
	}
	if h.summ.source != longText {
		t.Error("summarizer did not get the enriched text")
	}
}

type enrichFunc func([]news.Candidate)

func (f enrichFunc) EnrichAll(_ context.Context, cands []news.Candidate, _ int) { f(cands) }

func TestPlainText(t *testing.T) {
	got := plainText(summary.Article{Dek: "Chapô", Body: "<p>Un.</p><ul><li>Deux</li></ul>"})
	if got != "Chapô\nUn.\nDeux" {
		t.Errorf("plainText() = %q", got)
	}
}

func TestRun_TopicFingerprintSurvivesEnrichment(t *testing.T) {
	cfg := testConfig()
	cfg.Site.FingerprintMode = "topic"

	c := candidate("https://a.fr/1", 1)
	c.Title = ""
	u, err := news.Normalize(c.URL)
	if err != nil {
		t.Fatal(err)
	}
	resolved := news.ByTopic(c, u)

	h := newHarness(t, c)
	h.deps.Enricher = enrichFunc(func(cands []news.Candidate) {
		for i := range cands {
			cands[i].Title = "Titre trouvé sur la page"
		}
	})

	out, err := Run(context.Background(), cfg, h.deps)
	if err != nil || out != Published {
		t.Fatalf("Run = %v, %v", out, err)
	}
	if len(h.store.marked) != 1 || h.store.marked[0].Fingerprint != resolved {
		t.Errorf("marked %+v, want the fingerprint checked against the store (%s)", h.store.marked, resolved)
	}
}

func TestRun_SameTitleGetsNewPage(t *testing.T) {
	h := newHarness(t, candidate("https://a.fr/1", 1))
	h.pub.taken = map[string]bool{"2024-02-01-energie-un-nouveau-record": true}

	if out, err := Run(context.Background(), testConfig(), h.deps); err != nil || out != Published {
		t.Fatalf("Run = %v, %v", out, err)
	}
	if got := h.pub.pages[0].Path(); got != "articles/2024-02-01-energie-un-nouveau-record-2.html" {
		t.Errorf("path = %s", got)
	}
	if h.store.marked[0].PageURL != "https://tech.aurore.fr/articles/2024-02-01-energie-un-nouveau-record-2.html" {
		t.Errorf("record = %+v", h.store.marked[0])
	}
}

func TestRun_LegacySetCountsAsSeen(t *testing.T) {
	var mu sync.Mutex
	var lookups []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/tech/")
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusOK)
			return
		}
		if key == storage.LegacySetKey {
			w.Write([]byte(`["https://www.a.fr/ancien?utm_source=rss"]`))
			return
		}
		mu.Lock()
		lookups = append(lookups, key)
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	blobs := storage.NewProxyBlobStore(srv.URL, "tech", "secret",
		storage.WithRetry(retry.RetryConfig{MaxAttempts: 1}), storage.WithLogger(logger.Discard()))
	memo := storage.Memoize(blobs)
	if err := SeedLegacy(context.Background(), memo, blobs, logger.Discard()); err != nil {
		t.Fatalf("SeedLegacy: %v", err)
	}

	h := newHarness(t, candidate("https://a.fr/ancien", 2))
	h.deps.Store = memo
	out, err := Run(context.Background(), testConfig(), h.deps)
	if err != nil || out != NoOp {
		t.Fatalf("Run = %v, %v", out, err)
	}
	if len(h.pub.pages) != 0 || len(lookups) != 0 {
		t.Errorf("legacy article not treated as processed: pages=%d lookups=%v", len(h.pub.pages), lookups)
	}
}

func TestSeedLegacy_NeedsSetStore(t *testing.T) {
	store := &fakeStore{seen: news.FingerprintSet{}}
	if err := SeedLegacy(context.Background(), storage.Memoize(store), store, logger.Discard()); err == nil {
		t.Error("expected error for a store without a legacy set")
	}
}
