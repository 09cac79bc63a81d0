package state

import (
	"errors"
	"math/big"
	"testing"

	"yieldsplit/crypto"
	"yieldsplit/storage"
)

func TestJournalCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()
	if err := db.Put([]byte("a"), []byte("old")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	j := NewJournal(db)
	if err := j.Put([]byte("a"), []byte("new")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := j.Put([]byte("b"), []byte("fresh")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := j.Get([]byte("a"))
	if err != nil || string(value) != "new" {
		t.Fatalf("journal read did not see buffered write: %q %v", value, err)
	}
	stored, _ := db.Get([]byte("a"))
	if string(stored) != "old" {
		t.Fatalf("write leaked before commit: %q", stored)
	}
	j.Discard()
	stored, _ = db.Get([]byte("a"))
	if string(stored) != "old" {
		t.Fatalf("discard modified backing store: %q", stored)
	}
	if _, err := db.Get([]byte("b")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("discarded key present: %v", err)
	}

	j = NewJournal(db)
	_ = j.Put([]byte("b"), []byte("fresh"))
	_ = j.Delete([]byte("a"))
	if _, err := j.Get([]byte("a")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("buffered delete not visible: %v", err)
	}
	if err := j.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := db.Get([]byte("a")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete not committed: %v", err)
	}
	stored, _ = db.Get([]byte("b"))
	if string(stored) != "fresh" {
		t.Fatalf("put not committed: %q", stored)
	}
	if err := j.Put([]byte("c"), nil); err == nil {
		t.Fatalf("expected closed journal to reject writes")
	}
}

func TestStoreTypedValues(t *testing.T) {
	db := storage.NewMemDB()
	owner := crypto.ComponentAddress("owner", nil)
	holder := crypto.ComponentAddress("holder", nil)
	store := NewStore(db, owner.Bytes())

	balance, err := store.BigInt(Key("balance", holder))
	if err != nil {
		t.Fatalf("read default balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero default, got %s", balance)
	}
	if err := store.SetBigInt(Key("balance", holder), big.NewInt(42)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	balance, _ = store.BigInt(Key("balance", holder))
	if balance.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected balance: got %s want 42", balance)
	}
	if err := store.SetBigInt(Key("balance", holder), big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative value to be rejected")
	}

	if err := store.SetBool(Key("locked"), true); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	locked, _ := store.Bool(Key("locked"))
	if !locked {
		t.Fatalf("expected locked flag")
	}

	if err := store.SetUint64(Key("maturity"), 1_700_000_000); err != nil {
		t.Fatalf("set uint64: %v", err)
	}
	maturity, _ := store.Uint64(Key("maturity"))
	if maturity != 1_700_000_000 {
		t.Fatalf("unexpected maturity %d", maturity)
	}

	if err := store.SetAddress(Key("admin"), holder); err != nil {
		t.Fatalf("set address: %v", err)
	}
	admin, err := store.Address(Key("admin"))
	if err != nil {
		t.Fatalf("read address: %v", err)
	}
	if admin != holder {
		t.Fatalf("unexpected admin: got %s want %s", admin, holder)
	}
	missing, err := store.Address(Key("vault"))
	if err != nil || !missing.IsZero() {
		t.Fatalf("expected zero address for missing key, got %s (%v)", missing, err)
	}
}

func TestStoreNamespacesAreIsolated(t *testing.T) {
	db := storage.NewMemDB()
	a := NewStore(db, []byte("pt"))
	b := NewStore(db, []byte("yt"))
	if err := a.SetBigInt(Key("total_supply"), big.NewInt(7)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _ := b.BigInt(Key("total_supply"))
	if got.Sign() != 0 {
		t.Fatalf("namespaces leaked: %s", got)
	}
}
