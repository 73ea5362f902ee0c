package cachestore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

// FileStore persists the cache as a single JSON document on disk, sealed
// with an XSalsa20-Poly1305 secretbox keyed from a host-supplied
// passphrase (typically the device ID, so the sealed file is only
// readable on the machine that wrote it). This is the default backend for
// single-process embeddings: it survives restart (spec §4.2) without a
// network dependency, mirroring the teacher's LoadFromFile/LoadFromEnv
// pattern but generalized from a single license key to the full cache.
type FileStore struct {
	mu   sync.Mutex
	path string
	key  [32]byte
}

// NewFileStore opens (or prepares to create) a sealed cache file at path,
// deriving its secretbox key from passphrase via SHA-256.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{
		path: path,
		key:  sha256.Sum256([]byte(passphrase)),
	}
}

func (f *FileStore) load() (map[string][]byte, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cachestore: read %s: %w", f.path, err)
	}
	if len(raw) == 0 {
		return map[string][]byte{}, nil
	}

	var doc struct {
		Nonce      []byte `json:"nonce"`
		Ciphertext []byte `json:"ciphertext"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("cachestore: decode %s: %w", f.path, err)
	}
	if len(doc.Nonce) != 24 {
		return nil, fmt.Errorf("cachestore: %s: malformed nonce", f.path)
	}

	var nonce [24]byte
	copy(nonce[:], doc.Nonce)

	plain, ok := secretbox.Open(nil, doc.Ciphertext, &nonce, &f.key)
	if !ok {
		return nil, fmt.Errorf("cachestore: %s: failed to decrypt (wrong passphrase or corrupted file)", f.path)
	}

	var data map[string][]byte
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, fmt.Errorf("cachestore: %s: corrupted payload: %w", f.path, err)
	}
	return data, nil
}

func (f *FileStore) save(data map[string][]byte) error {
	plain, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cachestore: marshal: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("cachestore: generate nonce: %w", err)
	}

	ciphertext := secretbox.Seal(nil, plain, &nonce, &f.key)

	doc := struct {
		Nonce      []byte `json:"nonce"`
		Ciphertext []byte `json:"ciphertext"`
	}{Nonce: nonce[:], Ciphertext: ciphertext}

	out, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cachestore: marshal sealed document: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cachestore: mkdir %s: %w", dir, err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("cachestore: write %s: %w", tmp, err)
	}
	// Atomic rename so a concurrent reader never observes a torn write.
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return nil, false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	data[key] = value
	return f.save(data)
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	delete(data, key)
	return f.save(data)
}

func (f *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return nil, err
	}
	var keys []string
	for k := range data {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
