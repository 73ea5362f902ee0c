package cachestore

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.sealed")

	first := NewFileStore(path, "device-secret")
	if err := first.Set(ctx, KeyLicense, []byte("license-blob")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	second := NewFileStore(path, "device-secret")
	v, ok, err := second.Get(ctx, KeyLicense)
	if err != nil || !ok {
		t.Fatalf("expected hit after reopen, got ok=%v err=%v", ok, err)
	}
	if string(v) != "license-blob" {
		t.Fatalf("got %q, want license-blob", v)
	}
}

func TestFileStoreWrongPassphraseFailsToDecrypt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.sealed")

	writer := NewFileStore(path, "correct-secret")
	if err := writer.Set(ctx, KeyLicense, []byte("license-blob")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reader := NewFileStore(path, "wrong-secret")
	if _, _, err := reader.Get(ctx, KeyLicense); err == nil {
		t.Fatalf("expected decrypt failure with wrong passphrase")
	}
}

func TestFileStoreMissingFileIsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "does-not-exist.sealed")

	store := NewFileStore(path, "secret")
	if _, ok, err := store.Get(ctx, KeyLicense); err != nil || ok {
		t.Fatalf("expected clean miss on missing file, got ok=%v err=%v", ok, err)
	}
}

func TestFileStoreDeleteAndKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.sealed")
	store := NewFileStore(path, "secret")

	_ = store.Set(ctx, KeyLicense, []byte("l"))
	_ = store.Set(ctx, KeyDeviceID, []byte("d"))

	keys, err := store.Keys(ctx, "")
	if err != nil || len(keys) != 2 {
		t.Fatalf("got keys=%v err=%v, want 2 keys", keys, err)
	}

	if err := store.Delete(ctx, KeyLicense); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, KeyLicense); ok {
		t.Fatalf("expected license key deleted")
	}
	if _, ok, _ := store.Get(ctx, KeyDeviceID); !ok {
		t.Fatalf("expected device_id key to survive unrelated delete")
	}
}
