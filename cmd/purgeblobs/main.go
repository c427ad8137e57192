// purgeblobs deletes dedup records from a blob store, for example to let an
// article be published again or to drop the legacy processed set.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/deusflow/aurore/internal/logger"
	"github.com/deusflow/aurore/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.New(logger.FromEnv()).Warn("failed to read .env", "err", err)
	}

	store := flag.String("store", os.Getenv("BLOB_STORE_NAME"), "blob store name")
	prefix := flag.String("prefix", "", "only delete keys starting with this prefix")
	dryRun := flag.Bool("dry-run", true, "list matching keys without deleting them")
	flag.Parse()

	log := logger.New(logger.FromEnv()).With("store", *store)
	if *store == "" {
		log.Error("missing -store")
		os.Exit(2)
	}

	var bs *storage.BlobStore
	if proxy := os.Getenv("BLOBS_PROXY_URL"); proxy != "" {
		bs = storage.NewProxyBlobStore(proxy, *store, os.Getenv("AURORE_BLOBS_TOKEN"), storage.WithLogger(log))
	} else {
		bs = storage.NewNetlifyBlobStore(os.Getenv("NETLIFY_SITE_ID"), *store, os.Getenv("NETLIFY_BLOBS_TOKEN"), storage.WithLogger(log))
	}

	ctx := context.Background()
	keys, err := bs.Keys(ctx)
	if err != nil {
		log.Error("listing failed", "err", err)
		os.Exit(1)
	}

	deleted, failed := 0, 0
	for _, k := range keys {
		if !strings.HasPrefix(k, *prefix) {
			continue
		}
		if *dryRun {
			log.Info("would delete", "key", k)
			continue
		}
		if err := bs.Delete(ctx, k); err != nil {
			log.Warn("delete failed", "key", k, "err", err)
			failed++
			continue
		}
		deleted++
	}
	log.Info("purge finished", "keys", len(keys), "deleted", deleted, "failed", failed, "dry_run", *dryRun)
	if failed > 0 {
		os.Exit(1)
	}
}
