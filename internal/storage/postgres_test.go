package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/deusflow/aurore/internal/logger"
)

func TestPostgresStore_Queries(t *testing.T) {
	ps := newPostgresStore(nil, logger.Discard())

	q, args, err := ps.hasQuery("abc")
	if err != nil {
		t.Fatal(err)
	}
	if q != "SELECT 1 FROM processed_articles WHERE fingerprint = $1 LIMIT 1" {
		t.Errorf("has query = %q", q)
	}
	if len(args) != 1 || args[0] != "abc" {
		t.Errorf("has args = %v", args)
	}

	q, args, err = ps.markQuery(Record{Fingerprint: "abc", ProcessedAt: time.Now(), Title: "T"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(q, "INSERT INTO processed_articles (fingerprint,processed_at,published_at,title,source_url,page_url,pull_request) VALUES ($1,$2,$3,$4,$5,$6,$7)") {
		t.Errorf("mark query = %q", q)
	}
	if !strings.HasSuffix(q, "ON CONFLICT (fingerprint) DO NOTHING") {
		t.Errorf("mark query missing conflict clause: %q", q)
	}
	if args[2] != nil {
		t.Errorf("zero published_at should be NULL, got %v", args[2])
	}
}
