package cachestore

import (
	"context"
	"testing"
)

func TestMemoryStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "license", []byte("payload")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok, err := store.Get(ctx, "license")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(v) != "payload" {
		t.Fatalf("got %q, want %q", v, "payload")
	}

	if err := store.Delete(ctx, "license"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "license"); ok {
		t.Fatalf("expected key to be gone after delete")
	}
}

func TestMemoryStoreKeysPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Set(ctx, "pk/key-1", []byte("a"))
	_ = store.Set(ctx, "pk/key-2", []byte("b"))
	_ = store.Set(ctx, "device_id", []byte("c"))

	keys, err := store.Keys(ctx, "pk/")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2: %v", len(keys), keys)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Set(ctx, "k", []byte("original"))
	v, _, _ := store.Get(ctx, "k")
	v[0] = 'X'

	v2, _, _ := store.Get(ctx, "k")
	if string(v2) != "original" {
		t.Fatalf("mutation leaked into store: %q", v2)
	}
}

func TestPublicKeyKeyRoundTrip(t *testing.T) {
	key := PublicKeyKey("2024-01")
	id, ok := IsPublicKeyKey(key)
	if !ok || id != "2024-01" {
		t.Fatalf("got id=%q ok=%v, want id=2024-01 ok=true", id, ok)
	}

	if _, ok := IsPublicKeyKey(KeyLicense); ok {
		t.Fatalf("KeyLicense should not be mistaken for a public key entry")
	}
}
