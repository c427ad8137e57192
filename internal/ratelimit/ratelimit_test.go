package ratelimit

import (
	"errors"
	"testing"
)

func TestBudget_ProviderAndTotal(t *testing.T) {
	b := NewBudget(3)
	b.SetLimit("gemini", 2)

	for i := 0; i < 2; i++ {
		if err := b.Use("gemini"); err != nil {
			t.Fatalf("Use #%d: %v", i+1, err)
		}
	}
	if err := b.Use("gemini"); !errors.Is(err, ErrExhausted) {
		t.Errorf("third gemini call err = %v", err)
	}
	if err := b.Use("openai"); err != nil {
		t.Errorf("openai call within total: %v", err)
	}
	if b.CanUse("openai") {
		t.Error("total budget should be exhausted")
	}
	if s := b.GetStats(); s["total"] != 3 || s["gemini"] != 2 {
		t.Errorf("stats = %v", s)
	}
}

func TestBudget_Unlimited(t *testing.T) {
	b := NewBudget(0)
	for i := 0; i < 100; i++ {
		if err := b.Use("gemini"); err != nil {
			t.Fatalf("unlimited budget refused call %d", i)
		}
	}
}
