package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string, bool]()
	c.Set("a", true, 0)
	if v, ok := c.Get("a"); !ok || !v {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("missing key found")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New[string, int]()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", 42, time.Minute)
	now = now.Add(30 * time.Second)
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Fatalf("value expired early: %v %v", v, ok)
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("value should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after expiry", c.Len())
	}
}
