package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "libre": {
    "site_repo_name": "horizon/site-libre",
    "production_url": "https://l-horizon-libre.fr",
    "brand_name": "L'Horizon Libre",
    "brand_color": "#1a73e8",
    "logo_filename": "logo.svg",
    "gemini_prompt": ["Tu es un journaliste.", "Réponds en JSON."],
    "gemini_tweet_prompt": "Écris un tweet.",
    "gnews_query": "libertés",
    "blob_store_name": "aurore-libre",
    "index_keep": 12,
    "lease_ttl": "15m",
    "direct_publish": false
  },
  "tech": {
    "site_repo_name": "horizon/site-tech",
    "production_url": "https://tech.example.org",
    "gemini_prompt": "Résume.",
    "store_backend": "file"
  }
}`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func setCoreEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GH_TOKEN", "gh")
	t.Setenv("GEMINI_API_KEY", "gem")
	t.Setenv("NETLIFY_SITE_ID", "site")
	t.Setenv("NETLIFY_BLOBS_TOKEN", "blobs")
	t.Setenv("BLOBS_PROXY_URL", "")
	t.Setenv("SKIP_INDEX", "")
}

func TestLoad_JSONVertical(t *testing.T) {
	setCoreEnv(t)
	path := writeConfig(t, "config.json", sampleJSON)

	cfg, err := Load(path, "libre")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Site
	if s.Owner() != "horizon" || s.Repo() != "site-libre" {
		t.Errorf("owner/repo = %s/%s", s.Owner(), s.Repo())
	}
	if s.GeminiPrompt != "Tu es un journaliste.\nRéponds en JSON." {
		t.Errorf("prompt lines not joined: %q", s.GeminiPrompt)
	}
	if s.IndexKeep != 12 {
		t.Errorf("IndexKeep = %d", s.IndexKeep)
	}
	if s.MinChars != 600 || s.TweetMaxLength != 280 || s.Branch != "main" {
		t.Errorf("defaults not applied: %+v", s)
	}
	if s.DirectPublish {
		t.Error("direct_publish false was overridden by default")
	}
	if !s.AtomicCommit {
		t.Error("atomic_commit default lost")
	}
	if s.LeaseTTL != 15*time.Minute {
		t.Errorf("LeaseTTL = %v", s.LeaseTTL)
	}
	if cfg.Credentials.AuthorName != "Aurore Bot" {
		t.Errorf("AuthorName = %q", cfg.Credentials.AuthorName)
	}
}

func TestLoad_YAMLVertical(t *testing.T) {
	setCoreEnv(t)
	body := `
tech:
  site_repo_name: horizon/site-tech
  production_url: https://tech.example.org
  gemini_prompt:
    - Ligne un
    - Ligne deux
  blob_store_name: aurore-tech
  index_mode: patch
`
	cfg, err := Load(writeConfig(t, "config.yaml", body), "tech")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Site.GeminiPrompt != "Ligne un\nLigne deux" {
		t.Errorf("prompt = %q", cfg.Site.GeminiPrompt)
	}
	if cfg.Site.IndexMode != "patch" {
		t.Errorf("IndexMode = %q", cfg.Site.IndexMode)
	}
}

func TestLoad_UnknownVertical(t *testing.T) {
	setCoreEnv(t)
	_, err := Load(writeConfig(t, "config.json", sampleJSON), "sport")
	if err == nil || !strings.Contains(err.Error(), "sport") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_MissingCredential(t *testing.T) {
	setCoreEnv(t)
	t.Setenv("GH_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")
	_, err := Load(writeConfig(t, "config.json", sampleJSON), "libre")
	if !errors.Is(err, ErrMissing) || !strings.Contains(err.Error(), "GH_TOKEN") {
		t.Fatalf("err = %v, want missing GH_TOKEN", err)
	}
}

func TestLoad_SkipIndexEnv(t *testing.T) {
	setCoreEnv(t)
	t.Setenv("SKIP_INDEX", "1")
	cfg, err := Load(writeConfig(t, "config.json", sampleJSON), "libre")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Site.IndexMode != "skip" {
		t.Errorf("IndexMode = %q, want skip", cfg.Site.IndexMode)
	}
}

func TestValidate_StoreBackends(t *testing.T) {
	setCoreEnv(t)
	cfg, err := Load(writeConfig(t, "config.json", sampleJSON), "tech")
	if err != nil {
		t.Fatalf("file backend should validate: %v", err)
	}

	cfg.Site.StoreBackend = "postgres"
	cfg.Credentials.DatabaseURL = ""
	if err := cfg.Validate(); !errors.Is(err, ErrMissing) {
		t.Errorf("postgres without DATABASE_URL: %v", err)
	}

	cfg.Site.StoreBackend = "blobs"
	cfg.Credentials.BlobsProxyURL = "https://proxy.example/blobs"
	cfg.Credentials.ProxyToken = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "AURORE_BLOBS_TOKEN") {
		t.Errorf("proxy without token: %v", err)
	}
}

func TestValidate_RepoName(t *testing.T) {
	setCoreEnv(t)
	cfg, err := Load(writeConfig(t, "config.json", sampleJSON), "tech")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, name := range []string{"horizon", "/site-tech", "horizon/"} {
		cfg.Site.SiteRepoName = name
		if err := cfg.Validate(); !errors.Is(err, ErrMissing) {
			t.Errorf("site_repo_name %q: err = %v", name, err)
		}
	}
}

func TestDetectVertical(t *testing.T) {
	t.Setenv("TARGET", "")
	t.Setenv("VERTICAL", "")
	t.Setenv("GITHUB_JOB", "publish-tech")
	if got := DetectVertical(""); got != "tech" {
		t.Errorf("from job = %q", got)
	}
	t.Setenv("VERTICAL", "Libre")
	if got := DetectVertical(""); got != "libre" {
		t.Errorf("from env = %q", got)
	}
	if got := DetectVertical("sport"); got != "sport" {
		t.Errorf("flag should win, got %q", got)
	}
}
