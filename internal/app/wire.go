package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deusflow/aurore/internal/announce"
	"github.com/deusflow/aurore/internal/config"
	"github.com/deusflow/aurore/internal/gemini"
	"github.com/deusflow/aurore/internal/github"
	"github.com/deusflow/aurore/internal/imagefind"
	"github.com/deusflow/aurore/internal/openai"
	"github.com/deusflow/aurore/internal/publish"
	"github.com/deusflow/aurore/internal/ratelimit"
	"github.com/deusflow/aurore/internal/render"
	"github.com/deusflow/aurore/internal/rss"
	"github.com/deusflow/aurore/internal/scraper"
	"github.com/deusflow/aurore/internal/storage"
	"github.com/deusflow/aurore/internal/summary"
)

// Build wires the production collaborators for cfg. The returned cleanup
// releases clients and connections.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (Deps, func(), error) {
		cleanup()
		return Deps{}, func() {}, err
	}

	site, cr := cfg.Site, cfg.Credentials
	d := Deps{Log: log}

	source, err := NewSource(cfg, log.With("component", "source"))
	if err != nil {
		return fail(err)
	}
	d.Source = source
	d.Enricher = scraper.NewExtractor(cfg.RequestTimeout, log.With("component", "scraper"))

	store, leaser, closeStore, err := NewStore(ctx, cfg, log.With("component", "store"))
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)
	memo := storage.Memoize(store)
	if site.LegacySet {
		if err := SeedLegacy(ctx, memo, store, log.With("component", "store")); err != nil {
			return fail(err)
		}
	}
	d.Store = memo
	d.Leaser = leaser

	gen, writerGen, closeGen, err := NewGenerators(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeGen)
	gen, writerGen = LimitGenerators(gen, writerGen, site)

	summarizer, err := summary.New(gen, summary.Format(site.SummaryFormat), log.With("component", "summary"))
	if err != nil {
		return fail(err)
	}
	d.Summarizer = summarizer
	d.Images = imagefind.New(cr.UnsplashAccessKey, cr.UserAgent, log.With("component", "imagefind"))

	renderer, err := render.New(site.TemplatesDir)
	if err != nil {
		return fail(err)
	}
	d.Renderer = renderer

	repo, err := github.New(cr.GitHubToken, site.SiteRepoName, log.With("component", "github"),
		github.WithAuthor(cr.AuthorName, cr.AuthorEmail))
	if err != nil {
		return fail(err)
	}
	d.Publisher = publish.New(repo, renderer, siteContext(site), publish.Options{
		Branch:               site.Branch,
		IndexMode:            site.IndexMode,
		IndexSelector:        site.IndexSelector,
		IndexKeep:            site.IndexKeep,
		DirectPublish:        site.DirectPublish,
		AutoMerge:            site.AutoMerge,
		AtomicCommit:         site.AtomicCommit,
		TolerateIndexFailure: site.TolerateIndexFailure,
	}, log.With("component", "publish"))

	d.Writer = announce.NewWriter(writerGen, string(site.GeminiTweetPrompt), log.With("component", "writer"))
	d.Announcer, err = NewAnnouncer(cfg, log.With("component", "announce"))
	if err != nil {
		return fail(err)
	}

	return d, cleanup, nil
}

// SeedLegacy marks every entry of the store's legacy processed set as seen
// for this run, so a vertical moving off the single-blob set does not
// publish old articles again.
func SeedLegacy(ctx context.Context, memo *storage.Memoized, store storage.Store, log *slog.Logger) error {
	ss, ok := store.(storage.SetStore)
	if !ok {
		return fmt.Errorf("legacy_set: store backend %T has no legacy set", store)
	}
	set, skipped, err := storage.LoadLegacy(ctx, ss)
	if err != nil {
		return fmt.Errorf("legacy_set: %w", err)
	}
	memo.Seed(set)
	log.Info("legacy processed set loaded", "fingerprints", len(set), "skipped", skipped)
	return nil
}

// LimitGenerators charges both generators to one run budget of
// max_generations calls. Status generation gets a single call of its own.
func LimitGenerators(gen, writerGen summary.Generator, site config.Site) (summary.Generator, summary.Generator) {
	budget := ratelimit.NewBudget(site.MaxGenerations)
	status := site.SummarizerProvider + "-status"
	budget.SetLimit(status, 1)
	return summary.Limit(gen, budget, site.SummarizerProvider), summary.Limit(writerGen, budget, status)
}

// NewSource chains GNews (direct or proxied) before Google News RSS and the
// optional feed list.
func NewSource(cfg *config.Config, log *slog.Logger) (rss.Source, error) {
	site, cr := cfg.Site, cfg.Credentials
	chain := rss.Chain{Log: log}

	switch {
	case cr.GNewsAPIKey != "":
		chain.Sources = append(chain.Sources, rss.NewGNews(cr.GNewsAPIKey, site.GNewsQuery,
			site.GNewsLang, site.GNewsCountry, site.MaxResults, cfg.RequestTimeout, log))
	case cr.GNewsProxyURL != "":
		chain.Sources = append(chain.Sources, rss.NewGNewsProxy(cr.GNewsProxyURL, cr.ProxyToken,
			site.GNewsQuery, site.GNewsLang, site.GNewsCountry, site.MaxResults, cfg.RequestTimeout, log))
	}

	var feeds []string
	if site.GNewsQuery != "" {
		feeds = append(feeds, rss.GoogleNewsURL(site.GNewsQuery, site.GNewsLang, site.GNewsCountry))
	}
	if site.FeedsFile != "" {
		extra, err := rss.LoadFeeds(site.FeedsFile)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, extra...)
	}
	if len(feeds) > 0 {
		chain.Sources = append(chain.Sources,
			rss.NewFeeds("rss", feeds, site.MaxResults, cfg.RequestTimeout, log).WithUserAgent(cr.UserAgent))
	}

	if len(chain.Sources) == 0 {
		return nil, fmt.Errorf("%w: a news source (GNEWS_API_KEY, GNEWS_PROXY_URL, gnews_query or feeds_file)", config.ErrMissing)
	}
	return chain, nil
}

// NewStore opens the dedup store selected by store_backend.
func NewStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, storage.Leaser, func(), error) {
	site, cr := cfg.Site, cfg.Credentials
	noop := func() {}

	switch site.StoreBackend {
	case "file":
		return storage.NewFileStore(site.MemoryDir, cfg.Vertical), nil, noop, nil
	case "postgres":
		ps, err := storage.NewPostgresStore(ctx, cr.DatabaseURL, log)
		if err != nil {
			return nil, nil, noop, err
		}
		return ps, nil, func() { ps.Close() }, nil
	}

	name := site.BlobStoreName
	if name == "" {
		name = cfg.Vertical
	}
	var bs *storage.BlobStore
	if cr.BlobsProxyURL != "" {
		bs = storage.NewProxyBlobStore(cr.BlobsProxyURL, name, cr.ProxyToken, storage.WithLogger(log))
	} else {
		bs = storage.NewNetlifyBlobStore(cr.NetlifySiteID, name, cr.NetlifyBlobsToken, storage.WithLogger(log))
	}
	return bs, bs, noop, nil
}

// NewGenerators returns the summary generator and the status generator. The
// status one never runs in JSON mode.
func NewGenerators(ctx context.Context, cfg *config.Config) (summary.Generator, summary.Generator, func(), error) {
	site, cr := cfg.Site, cfg.Credentials
	jsonMode := site.SummaryFormat == string(summary.FormatJSON)

	if site.SummarizerProvider == "openai" {
		return openai.NewClient(cr.OpenAIAPIKey, site.Model, "", jsonMode),
			openai.NewClient(cr.OpenAIAPIKey, site.Model, "", false),
			func() {}, nil
	}

	summaries, err := gemini.NewClient(ctx, cr.GeminiAPIKey, gemini.WithModel(site.Model), gemini.WithJSON(jsonMode))
	if err != nil {
		return nil, nil, nil, err
	}
	tweets, err := gemini.NewClient(ctx, cr.GeminiAPIKey, gemini.WithModel(site.Model), gemini.WithMaxTokens(200))
	if err != nil {
		summaries.Close()
		return nil, nil, nil, err
	}
	return summaries, tweets, func() { summaries.Close(); tweets.Close() }, nil
}

// NewAnnouncer enables every announcer whose credentials are present.
func NewAnnouncer(cfg *config.Config, log *slog.Logger) (announce.Announcer, error) {
	site, cr := cfg.Site, cfg.Credentials
	var all announce.Multi

	if cr.TwitterConsumerKey != "" && cr.TwitterConsumerSecret != "" && cr.TwitterAccessToken != "" && cr.TwitterAccessSecret != "" {
		all = append(all, announce.NewTwitter(cr.TwitterConsumerKey, cr.TwitterConsumerSecret,
			cr.TwitterAccessToken, cr.TwitterAccessSecret, site.TweetMaxLength, log))
	}
	if cr.TelegramToken != "" && cr.TelegramChatID != "" {
		all = append(all, announce.NewTelegram(cr.TelegramToken, cr.TelegramChatID, log))
	}
	if cr.DispatchRepo != "" {
		target, err := github.New(cr.GitHubToken, cr.DispatchRepo, log)
		if err != nil {
			return nil, err
		}
		all = append(all, announce.Dispatch{Target: target, Log: log})
	}

	if len(all) == 0 {
		return announce.Noop{Reason: "no announcement credentials", Log: log}, nil
	}
	return all, nil
}
