package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"yieldsplit/crypto"
	"yieldsplit/storage"
)

// Store is a namespaced key-value view. Every component owns one namespace;
// keys are keccak256(namespace ':' semantic-key) and values are RLP encoded.
type Store struct {
	backend   storage.Database
	namespace []byte
}

// NewStore returns the view of backend under namespace.
func NewStore(backend storage.Database, namespace []byte) *Store {
	return &Store{backend: backend, namespace: append([]byte(nil), namespace...)}
}

// Key builds a semantic key from a name and the accounts it is indexed by.
func Key(name string, owners ...crypto.Address) []byte {
	buf := make([]byte, 0, len(name)+len(owners)*(crypto.AddressLength+8))
	buf = append(buf, name...)
	for _, owner := range owners {
		buf = append(buf, ':')
		buf = append(buf, owner.Prefix()...)
		buf = append(buf, owner.Bytes()...)
	}
	return buf
}

func (s *Store) hashedKey(key []byte) []byte {
	buf := make([]byte, 0, len(s.namespace)+1+len(key))
	buf = append(buf, s.namespace...)
	buf = append(buf, ':')
	buf = append(buf, key...)
	return ethcrypto.Keccak256(buf)
}

// Encode stores value under key using RLP encoding.
func (s *Store) Encode(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return s.backend.Put(s.hashedKey(key), encoded)
}

// Decode loads the value stored under key into out. The boolean reports
// whether the key existed.
func (s *Store) Decode(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("state: key must not be empty")
	}
	data, err := s.backend.Get(s.hashedKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

// Has reports whether key is present.
func (s *Store) Has(key []byte) (bool, error) {
	return s.Decode(key, nil)
}

// Delete removes key.
func (s *Store) Delete(key []byte) error {
	return s.backend.Delete(s.hashedKey(key))
}

// BigInt returns the amount under key, zero when absent.
func (s *Store) BigInt(key []byte) (*big.Int, error) {
	out := new(big.Int)
	if _, err := s.Decode(key, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetBigInt stores a non-negative amount.
func (s *Store) SetBigInt(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("state: negative value for %s", key)
	}
	return s.Encode(key, value)
}

// Bool returns the flag under key, false when absent.
func (s *Store) Bool(key []byte) (bool, error) {
	var out bool
	if _, err := s.Decode(key, &out); err != nil {
		return false, err
	}
	return out, nil
}

func (s *Store) SetBool(key []byte, value bool) error {
	return s.Encode(key, value)
}

// Uint64 returns the integer under key, zero when absent.
func (s *Store) Uint64(key []byte) (uint64, error) {
	var out uint64
	if _, err := s.Decode(key, &out); err != nil {
		return 0, err
	}
	return out, nil
}

func (s *Store) SetUint64(key []byte, value uint64) error {
	return s.Encode(key, value)
}

// String returns the string under key, empty when absent.
func (s *Store) String(key []byte) (string, error) {
	var out string
	if _, err := s.Decode(key, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (s *Store) SetString(key []byte, value string) error {
	return s.Encode(key, value)
}

type storedAddress struct {
	Prefix string
	Bytes  []byte
}

// Address returns the address under key, the zero address when absent.
func (s *Store) Address(key []byte) (crypto.Address, error) {
	var out storedAddress
	ok, err := s.Decode(key, &out)
	if err != nil || !ok {
		return crypto.Address{}, err
	}
	return crypto.NewAddress(crypto.AddressPrefix(out.Prefix), out.Bytes)
}

func (s *Store) SetAddress(key []byte, addr crypto.Address) error {
	return s.Encode(key, storedAddress{Prefix: string(addr.Prefix()), Bytes: addr.Bytes()})
}
