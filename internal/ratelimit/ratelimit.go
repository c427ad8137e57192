package ratelimit

import (
	"errors"
	"fmt"
	"sync"
)

// ErrExhausted is returned once a provider or the run total is used up.
var ErrExhausted = errors.New("generation budget exhausted")

// Budget caps generative API calls per run, per provider and in total.
// A limit of 0 means unlimited.
type Budget struct {
	mu       sync.Mutex
	counts   map[string]int
	limits   map[string]int
	total    int
	maxTotal int
}

func NewBudget(maxTotal int) *Budget {
	return &Budget{
		counts:   make(map[string]int),
		limits:   make(map[string]int),
		maxTotal: maxTotal,
	}
}

func (b *Budget) SetLimit(provider string, max int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[provider] = max
}

func (b *Budget) canUse(provider string) error {
	if max := b.limits[provider]; max > 0 && b.counts[provider] >= max {
		return fmt.Errorf("%w: %s (%d/%d)", ErrExhausted, provider, b.counts[provider], max)
	}
	if b.maxTotal > 0 && b.total >= b.maxTotal {
		return fmt.Errorf("%w: total (%d/%d)", ErrExhausted, b.total, b.maxTotal)
	}
	return nil
}

// CanUse reports whether one more call to provider fits the budget.
func (b *Budget) CanUse(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canUse(provider) == nil
}

// Use records one call, or returns ErrExhausted without recording it.
func (b *Budget) Use(provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.canUse(provider); err != nil {
		return err
	}
	b.counts[provider]++
	b.total++
	return nil
}

func (b *Budget) GetStats() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats := make(map[string]int, len(b.counts)+1)
	for p, n := range b.counts {
		stats[p] = n
	}
	stats["total"] = b.total
	return stats
}
