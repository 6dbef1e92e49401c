package state

import (
	"errors"
	"math/big"
	"testing"

	"gridchain/storage"
)

type record struct {
	Name   string
	Amount *big.Int
	Count  uint64
}

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func TestKVRoundTrip(t *testing.T) {
	manager := newTestManager()
	key := []byte("test/record/1")

	var missing record
	ok, err := manager.KVGet(key, &missing)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key")
	}

	stored := &record{Name: "alpha", Amount: big.NewInt(42), Count: 7}
	if err := manager.KVPut(key, stored); err != nil {
		t.Fatalf("put: %v", err)
	}

	var loaded record
	ok, err = manager.KVGet(key, &loaded)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected key present")
	}
	if loaded.Name != "alpha" || loaded.Amount.Cmp(big.NewInt(42)) != 0 || loaded.Count != 7 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}

	// Existence check without decoding.
	ok, err = manager.KVGet(key, nil)
	if err != nil || !ok {
		t.Fatalf("existence probe: ok=%v err=%v", ok, err)
	}
}

func TestKVDelete(t *testing.T) {
	manager := newTestManager()
	key := []byte("test/record/1")
	if err := manager.KVPut(key, uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := manager.KVDelete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err := manager.KVHas(key)
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if ok {
		t.Fatalf("expected key removed")
	}
	// Deleting an absent key is not an error.
	if err := manager.KVDelete(key); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	manager := newTestManager()
	if err := manager.KVPut(nil, uint64(1)); err == nil {
		t.Fatalf("expected error for empty key on put")
	}
	if _, err := manager.KVGet(nil, nil); err == nil {
		t.Fatalf("expected error for empty key on get")
	}
	if err := manager.KVDelete(nil); err == nil {
		t.Fatalf("expected error for empty key on delete")
	}
}

func TestKeyHashingAvoidsPrefixCollisions(t *testing.T) {
	manager := newTestManager()
	if err := manager.KVPut([]byte("a"), uint64(1)); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := manager.KVPut([]byte("ab"), uint64(2)); err != nil {
		t.Fatalf("put ab: %v", err)
	}
	var first, second uint64
	if _, err := manager.KVGet([]byte("a"), &first); err != nil {
		t.Fatalf("get a: %v", err)
	}
	if _, err := manager.KVGet([]byte("ab"), &second); err != nil {
		t.Fatalf("get ab: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("prefix collision: %d %d", first, second)
	}
}

func TestHeightPersistence(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)

	height, err := manager.Height()
	if err != nil {
		t.Fatalf("fresh height: %v", err)
	}
	if height != 0 {
		t.Fatalf("fresh database must report height 0, got %d", height)
	}
	if err := manager.SetHeight(42); err != nil {
		t.Fatalf("set height: %v", err)
	}

	// A new manager over the same database sees the persisted height.
	reopened := NewManager(db)
	height, err = reopened.Height()
	if err != nil {
		t.Fatalf("reopened height: %v", err)
	}
	if height != 42 {
		t.Fatalf("expected height 42, got %d", height)
	}
}

func TestStorageNotFoundIsAbsence(t *testing.T) {
	db := storage.NewMemDB()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected storage.ErrNotFound, got %v", err)
	}
	manager := NewManager(db)
	ok, err := manager.KVGet([]byte("missing"), nil)
	if err != nil {
		t.Fatalf("manager must translate not-found: %v", err)
	}
	if ok {
		t.Fatalf("missing key reported present")
	}
}
