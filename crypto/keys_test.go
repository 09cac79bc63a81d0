package crypto

import (
	"path/filepath"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Prefix() != AccountPrefix {
		t.Fatalf("unexpected prefix: got %s want %s", addr.Prefix(), AccountPrefix)
	}
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: got %s want %s", decoded, addr)
	}
}

func TestComponentAddressDeterministic(t *testing.T) {
	a := ComponentAddress("clearinghouse", []byte{1})
	b := ComponentAddress("clearinghouse", []byte{1})
	c := ComponentAddress("clearinghouse", []byte{2})
	if a != b {
		t.Fatalf("expected identical derivation")
	}
	if a == c {
		t.Fatalf("expected distinct salts to produce distinct addresses")
	}
	if !a.IsComponent() {
		t.Fatalf("expected component prefix, got %s", a.Prefix())
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	addr := MustNewAddress(AddressPrefix("cosmos"), make([]byte, AddressLength))
	if _, err := DecodeAddress(addr.String()); err == nil {
		t.Fatalf("expected foreign prefix to be rejected")
	}
}

func TestAddressText(t *testing.T) {
	addr := ComponentAddress("pt", nil)
	text, err := addr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Address
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != addr {
		t.Fatalf("text round trip mismatch")
	}
	var zero Address
	if err := zero.UnmarshalText(nil); err != nil || !zero.IsZero() {
		t.Fatalf("expected empty text to decode to zero address")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "admin.json")
	if err := SaveToKeystoreLight(path, key, "correct horse"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if loaded.PubKey().Address() != key.PubKey().Address() {
		t.Fatalf("keystore returned a different key")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

func TestKeystoreAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "op.json")
	if err := SaveToKeystoreLight(path, key, "pw"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	addr, err := KeystoreAddress(path)
	if err != nil {
		t.Fatalf("keystore address: %v", err)
	}
	if addr != key.PubKey().Address() {
		t.Fatalf("unexpected address: got %s want %s", addr, key.PubKey().Address())
	}
}
