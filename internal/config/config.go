// Package config loads the per-vertical site document and the credentials
// taken from the environment, and validates both once at startup.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissing wraps every missing required setting.
var ErrMissing = errors.New("missing required setting")

// Prompt is a template given either as one string or as a list of lines.
type Prompt string

func (p *Prompt) UnmarshalJSON(data []byte) error {
	var lines []string
	if err := json.Unmarshal(data, &lines); err == nil {
		*p = Prompt(strings.Join(lines, "\n"))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("prompt must be a string or a list of strings: %w", err)
	}
	*p = Prompt(s)
	return nil
}

func (p *Prompt) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var lines []string
		if err := node.Decode(&lines); err != nil {
			return err
		}
		*p = Prompt(strings.Join(lines, "\n"))
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	*p = Prompt(s)
	return nil
}

// Site is one vertical's entry in the configuration document.
type Site struct {
	SiteRepoName  string `json:"site_repo_name" yaml:"site_repo_name"`
	Branch        string `json:"branch" yaml:"branch"`
	ProductionURL string `json:"production_url" yaml:"production_url"`
	BrandName     string `json:"brand_name" yaml:"brand_name"`
	BrandColor    string `json:"brand_color" yaml:"brand_color"`
	LogoFilename  string `json:"logo_filename" yaml:"logo_filename"`
	Language      string `json:"language" yaml:"language"`

	GeminiPrompt       Prompt `json:"gemini_prompt" yaml:"gemini_prompt"`
	GeminiTweetPrompt  Prompt `json:"gemini_tweet_prompt" yaml:"gemini_tweet_prompt"`
	SummaryFormat      string `json:"summary_format" yaml:"summary_format"`           // tags | json
	SummarizerProvider string `json:"summarizer_provider" yaml:"summarizer_provider"` // gemini | openai
	Model              string `json:"model" yaml:"model"`
	MaxGenerations     int    `json:"max_generations" yaml:"max_generations"`

	GNewsQuery   string `json:"gnews_query" yaml:"gnews_query"`
	GNewsLang    string `json:"gnews_lang" yaml:"gnews_lang"`
	GNewsCountry string `json:"gnews_country" yaml:"gnews_country"`
	MaxResults   int    `json:"max_results" yaml:"max_results"`
	FeedsFile    string `json:"feeds_file" yaml:"feeds_file"`

	FingerprintMode string `json:"fingerprint_mode" yaml:"fingerprint_mode"` // url | topic
	MinChars        int    `json:"min_chars" yaml:"min_chars"`
	MinParagraphs   int    `json:"min_paragraphs" yaml:"min_paragraphs"`
	MinWords        int    `json:"min_words" yaml:"min_words"`

	StoreBackend  string        `json:"store_backend" yaml:"store_backend"` // blobs | file | postgres
	BlobStoreName string        `json:"blob_store_name" yaml:"blob_store_name"`
	MemoryDir     string        `json:"memory_dir" yaml:"memory_dir"`
	LegacySet     bool          `json:"legacy_set" yaml:"legacy_set"`
	LeaseTTLRaw   string        `json:"lease_ttl" yaml:"lease_ttl"`
	LeaseTTL      time.Duration `json:"-" yaml:"-"`

	IndexKeep            int    `json:"index_keep" yaml:"index_keep"`
	IndexMode            string `json:"index_mode" yaml:"index_mode"` // rebuild | patch | skip
	IndexSelector        string `json:"index_selector" yaml:"index_selector"`
	SkipIndex            bool   `json:"skip_index" yaml:"skip_index"`
	DirectPublish        bool   `json:"direct_publish" yaml:"direct_publish"`
	AutoMerge            bool   `json:"auto_merge" yaml:"auto_merge"`
	AtomicCommit         bool   `json:"atomic_commit" yaml:"atomic_commit"`
	TolerateIndexFailure bool   `json:"tolerate_index_failure" yaml:"tolerate_index_failure"`
	TemplatesDir         string `json:"templates_dir" yaml:"templates_dir"`

	TweetMaxLength int `json:"tweet_max_length" yaml:"tweet_max_length"`
}

// Owner and Repo split SiteRepoName.
func (s Site) Owner() string {
	owner, _, _ := strings.Cut(s.SiteRepoName, "/")
	return owner
}

func (s Site) Repo() string {
	_, repo, _ := strings.Cut(s.SiteRepoName, "/")
	return repo
}

// Credentials come from the environment only.
type Credentials struct {
	GeminiAPIKey string
	OpenAIAPIKey string
	GitHubToken  string

	GNewsAPIKey   string
	GNewsProxyURL string

	NetlifySiteID     string
	NetlifyBlobsToken string
	BlobsProxyURL     string
	ProxyToken        string
	DatabaseURL       string

	UnsplashAccessKey string

	TwitterConsumerKey    string
	TwitterConsumerSecret string
	TwitterAccessToken    string
	TwitterAccessSecret   string
	TelegramToken         string
	TelegramChatID        string
	DispatchRepo          string

	AuthorName  string
	AuthorEmail string
	UserAgent   string
}

type Config struct {
	Vertical    string
	Site        Site
	Credentials Credentials

	// App settings
	RequestTimeout time.Duration
	SkipIndexEnv   bool
}

func defaultSite() Site {
	return Site{
		Branch:               "main",
		Language:             "fr",
		SummaryFormat:        "json",
		SummarizerProvider:   "gemini",
		Model:                "gemini-1.5-flash",
		MaxGenerations:       3,
		GNewsLang:            "fr",
		GNewsCountry:         "fr",
		MaxResults:           10,
		FingerprintMode:      "url",
		MinChars:             600,
		MinParagraphs:        3,
		MinWords:             120,
		StoreBackend:         "blobs",
		MemoryDir:            "memory",
		IndexKeep:            10,
		IndexMode:            "rebuild",
		IndexSelector:        "#latest-articles",
		DirectPublish:        true,
		AtomicCommit:         true,
		TolerateIndexFailure: true,
		TweetMaxLength:       280,
	}
}

// DetectVertical resolves the vertical from the flag value, then TARGET,
// VERTICAL, then the CI job name.
func DetectVertical(flagValue string) string {
	for _, v := range []string{flagValue, os.Getenv("TARGET"), os.Getenv("VERTICAL")} {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			return v
		}
	}
	job := strings.ToLower(os.Getenv("GITHUB_JOB"))
	switch {
	case strings.Contains(job, "tech"):
		return "tech"
	case strings.Contains(job, "libre"):
		return "libre"
	}
	return ""
}

// Load reads the document at path, picks the vertical and reads credentials.
func Load(path, vertical string) (*Config, error) {
	if vertical == "" {
		return nil, fmt.Errorf("%w: vertical (use -vertical, TARGET or VERTICAL)", ErrMissing)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	site, err := decodeSite(data, filepath.Ext(path), vertical)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Vertical:       vertical,
		Site:           site,
		Credentials:    credentialsFromEnv(),
		RequestTimeout: time.Duration(getEnvIntOrDefault("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		SkipIndexEnv:   isTruthy(os.Getenv("SKIP_INDEX")),
	}
	if cfg.SkipIndexEnv {
		cfg.Site.SkipIndex = true
	}
	if cfg.Site.SkipIndex {
		cfg.Site.IndexMode = "skip"
	}
	if cfg.Site.LeaseTTLRaw != "" {
		d, err := time.ParseDuration(cfg.Site.LeaseTTLRaw)
		if err != nil {
			return nil, fmt.Errorf("lease_ttl: %w", err)
		}
		cfg.Site.LeaseTTL = d
	}

	return cfg, cfg.Validate()
}

func decodeSite(data []byte, ext, vertical string) (Site, error) {
	site := defaultSite()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc map[string]yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return site, fmt.Errorf("parse config: %w", err)
		}
		node, ok := doc[vertical]
		if !ok {
			return site, fmt.Errorf("vertical %q not found in config", vertical)
		}
		if err := node.Decode(&site); err != nil {
			return site, fmt.Errorf("parse vertical %q: %w", vertical, err)
		}
	default:
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			return site, fmt.Errorf("parse config: %w", err)
		}
		raw, ok := doc[vertical]
		if !ok {
			return site, fmt.Errorf("vertical %q not found in config", vertical)
		}
		if err := json.Unmarshal(raw, &site); err != nil {
			return site, fmt.Errorf("parse vertical %q: %w", vertical, err)
		}
	}
	return site, nil
}

func credentialsFromEnv() Credentials {
	return Credentials{
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		GitHubToken:  firstEnv("GH_TOKEN", "GITHUB_TOKEN"),

		GNewsAPIKey:   os.Getenv("GNEWS_API_KEY"),
		GNewsProxyURL: os.Getenv("GNEWS_PROXY_URL"),

		NetlifySiteID:     os.Getenv("NETLIFY_SITE_ID"),
		NetlifyBlobsToken: os.Getenv("NETLIFY_BLOBS_TOKEN"),
		BlobsProxyURL:     os.Getenv("BLOBS_PROXY_URL"),
		ProxyToken:        os.Getenv("AURORE_BLOBS_TOKEN"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),

		UnsplashAccessKey: os.Getenv("UNSPLASH_ACCESS_KEY"),

		TwitterConsumerKey:    firstEnv("CONSUMER_KEY", "TWITTER_API_KEY"),
		TwitterConsumerSecret: firstEnv("CONSUMER_SECRET", "TWITTER_API_SECRET"),
		TwitterAccessToken:    firstEnv("ACCESS_TOKEN", "TWITTER_ACCESS_TOKEN"),
		TwitterAccessSecret:   firstEnv("ACCESS_TOKEN_SECRET", "TWITTER_ACCESS_TOKEN_SECRET"),
		TelegramToken:         os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:        os.Getenv("TELEGRAM_CHAT_ID"),
		DispatchRepo:          os.Getenv("DISPATCH_REPO"),

		AuthorName:  getEnvOrDefault("GH_AUTHOR_NAME", "Aurore Bot"),
		AuthorEmail: getEnvOrDefault("GH_AUTHOR_EMAIL", "bot@aurore.local"),
		UserAgent:   getEnvOrDefault("USER_AGENT", "Aurore/1.0 (+https://l-horizon-libre.fr)"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func missing(what string) error {
	return fmt.Errorf("%w: %s is required", ErrMissing, what)
}

func (c *Config) Validate() error {
	s := c.Site
	cr := c.Credentials

	if s.Owner() == "" || s.Repo() == "" {
		return missing("site_repo_name (owner/repo)")
	}
	u, err := url.Parse(s.ProductionURL)
	if s.ProductionURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return missing("production_url")
	}
	if strings.TrimSpace(string(s.GeminiPrompt)) == "" {
		return missing("gemini_prompt")
	}
	if cr.GitHubToken == "" {
		return missing("GH_TOKEN")
	}

	switch s.SummarizerProvider {
	case "gemini":
		if cr.GeminiAPIKey == "" {
			return missing("GEMINI_API_KEY")
		}
	case "openai":
		if cr.OpenAIAPIKey == "" {
			return missing("OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("summarizer_provider must be 'gemini' or 'openai'")
	}

	switch s.StoreBackend {
	case "blobs":
		if cr.BlobsProxyURL != "" {
			if cr.ProxyToken == "" {
				return missing("AURORE_BLOBS_TOKEN")
			}
		} else {
			if cr.NetlifySiteID == "" {
				return missing("NETLIFY_SITE_ID")
			}
			if cr.NetlifyBlobsToken == "" {
				return missing("NETLIFY_BLOBS_TOKEN")
			}
			if s.BlobStoreName == "" {
				return missing("blob_store_name")
			}
		}
	case "file":
		if s.MemoryDir == "" {
			return missing("memory_dir")
		}
	case "postgres":
		if cr.DatabaseURL == "" {
			return missing("DATABASE_URL")
		}
	default:
		return fmt.Errorf("store_backend must be 'blobs', 'file' or 'postgres'")
	}

	if s.SummaryFormat != "tags" && s.SummaryFormat != "json" {
		return fmt.Errorf("summary_format must be 'tags' or 'json'")
	}
	if s.FingerprintMode != "url" && s.FingerprintMode != "topic" {
		return fmt.Errorf("fingerprint_mode must be 'url' or 'topic'")
	}
	switch s.IndexMode {
	case "rebuild", "patch", "skip":
	default:
		return fmt.Errorf("index_mode must be 'rebuild', 'patch' or 'skip'")
	}
	if s.IndexKeep <= 0 {
		return fmt.Errorf("index_keep must be positive")
	}
	if s.TweetMaxLength <= 0 {
		return fmt.Errorf("tweet_max_length must be positive")
	}
	return nil
}
