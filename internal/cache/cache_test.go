package cache

import (
	"context"
	"fmt"
	"testing"
)

// fakeStore is a map-backed Store with switchable failures, used to exercise
// the layered composition without a database.
type fakeStore struct {
	entries map[string]string
	getErr  error
	setErr  error
	gets    int
	sets    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	f.gets++
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.entries[key]
	return v, ok, nil
}

func (f *fakeStore) Set(_ context.Context, key, value string) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[key] = value
	return nil
}

func (f *fakeStore) Remove(_ context.Context, key string) error {
	delete(f.entries, key)
	return nil
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(8)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Error("missing key must not be found")
	}

	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Errorf("Get after Set: %q %v %v", v, ok, err)
	}

	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("removed key must not be found")
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(2)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}

	s.Set(ctx, "a", "1")
	s.Set(ctx, "b", "2")
	s.Set(ctx, "c", "3")

	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Error("oldest entry must be evicted at capacity")
	}
	if _, ok, _ := s.Get(ctx, "c"); !ok {
		t.Error("newest entry must survive")
	}
}

func TestLayeredStoreReadsHotFirst(t *testing.T) {
	ctx := context.Background()
	hot := newFakeStore()
	durable := newFakeStore()
	hot.entries["k"] = "hot-value"
	durable.entries["k"] = "durable-value"

	s := NewLayeredStore(hot, durable)
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "hot-value" {
		t.Errorf("Get: %q %v %v, want hot tier to win", v, ok, err)
	}
	if durable.gets != 0 {
		t.Error("hot hit must not touch the durable tier")
	}
}

func TestLayeredStoreBackfillsOnMiss(t *testing.T) {
	ctx := context.Background()
	hot := newFakeStore()
	durable := newFakeStore()
	durable.entries["k"] = "v"

	s := NewLayeredStore(hot, durable)
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get: %q %v %v", v, ok, err)
	}
	if hot.entries["k"] != "v" {
		t.Error("durable hit must backfill the hot tier")
	}
}

func TestLayeredStoreSetWritesThrough(t *testing.T) {
	ctx := context.Background()
	hot := newFakeStore()
	durable := newFakeStore()

	s := NewLayeredStore(hot, durable)
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if hot.entries["k"] != "v" || durable.entries["k"] != "v" {
		t.Error("Set must reach both tiers")
	}
}

func TestLayeredStoreSetDurableFailurePropagates(t *testing.T) {
	ctx := context.Background()
	hot := newFakeStore()
	durable := newFakeStore()
	durable.setErr = fmt.Errorf("connection refused")

	s := NewLayeredStore(hot, durable)
	if err := s.Set(ctx, "k", "v"); err == nil {
		t.Fatal("durable write failure must propagate")
	}
	if _, ok := hot.entries["k"]; ok {
		t.Error("hot tier must not hold a value the durable tier rejected")
	}
}

func TestLayeredStoreRemoveClearsBothTiers(t *testing.T) {
	ctx := context.Background()
	hot := newFakeStore()
	durable := newFakeStore()
	hot.entries["k"] = "v"
	durable.entries["k"] = "v"

	s := NewLayeredStore(hot, durable)
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := hot.entries["k"]; ok {
		t.Error("hot tier still holds the removed key")
	}
	if _, ok := durable.entries["k"]; ok {
		t.Error("durable tier still holds the removed key")
	}
}
