package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/aurore/internal/news"
)

// Lease is a best-effort claim on a fingerprint for the duration of a run.
type Lease struct {
	Key       string
	Owner     string
	ExpiresAt time.Time
}

// Leaser is implemented by stores that can hand out leases.
type Leaser interface {
	Acquire(ctx context.Context, fp news.Fingerprint, ttl time.Duration) (Lease, bool, error)
	Release(ctx context.Context, l Lease) error
}

type leaseDoc struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

func leaseKey(fp news.Fingerprint) string {
	return "lease-" + string(fp)
}

// Acquire claims fp unless another run holds an unexpired lease. The blob
// service offers no compare-and-swap, so the claim is verified by reading it
// back; two runs writing within the same instant can still both win.
func (b *BlobStore) Acquire(ctx context.Context, fp news.Fingerprint, ttl time.Duration) (Lease, bool, error) {
	key := leaseKey(fp)
	now := time.Now().UTC()

	data, err := b.get(ctx, key)
	switch {
	case err == nil:
		var held leaseDoc
		if json.Unmarshal(data, &held) == nil && held.ExpiresAt.After(now) {
			return Lease{}, false, nil
		}
	case !errors.Is(err, ErrNotFound):
		return Lease{}, false, fmt.Errorf("lease read %s: %w", fp, err)
	}

	doc := leaseDoc{Owner: uuid.NewString(), ExpiresAt: now.Add(ttl)}
	if err := b.put(ctx, key, doc); err != nil {
		return Lease{}, false, fmt.Errorf("lease write %s: %w", fp, err)
	}

	data, err = b.get(ctx, key)
	if err != nil {
		return Lease{}, false, fmt.Errorf("lease verify %s: %w", fp, err)
	}
	var got leaseDoc
	if err := json.Unmarshal(data, &got); err != nil || got.Owner != doc.Owner {
		return Lease{}, false, nil
	}
	return Lease{Key: key, Owner: doc.Owner, ExpiresAt: doc.ExpiresAt}, true, nil
}

// Release drops the lease. Expired leases are ignored by Acquire anyway.
func (b *BlobStore) Release(ctx context.Context, l Lease) error {
	if l.Key == "" {
		return nil
	}
	return b.Delete(ctx, l.Key)
}
