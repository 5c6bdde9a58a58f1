package host

import (
	"slices"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
)

// RecordOverhead is the number of bytes charged for every storage item on
// top of its key and value lengths.
const RecordOverhead = 40

// ItemSize returns the number of bytes a storage item is charged for.
func ItemSize(key, value []byte) uint64 {
	return uint64(len(key) + len(value) + RecordOverhead)
}

// Storage is a contract storage view within a single call. Changes are
// visible to the call immediately and become persistent when the call
// commits.
type Storage struct {
	store    *storage.MemCachedStore
	prefix   []byte
	state    *ContractState
	readOnly bool
}

func (s *Storage) key(key []byte) []byte {
	k := make([]byte, 0, len(s.prefix)+len(key))
	return append(append(k, s.prefix...), key...)
}

// Get returns the value stored by key or nil if there is none.
func (s *Storage) Get(key []byte) []byte {
	v, err := get(s.store, s.key(key))
	if err != nil {
		return nil
	}
	return v
}

// Has checks whether the key is present.
func (s *Storage) Has(key []byte) bool {
	return s.Get(key) != nil
}

// Put stores the value by key and updates the contract storage usage.
func (s *Storage) Put(key, value []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}

	k := s.key(key)
	if old := s.Get(key); old != nil {
		s.state.Usage = s.state.Usage - uint64(len(old)) + uint64(len(value))
	} else {
		s.state.Usage += ItemSize(key, value)
	}

	s.store.Put(k, slices.Clone(value))
	return nil
}

// Delete removes the item stored by key and releases its bytes. It returns
// false if there was no such item.
func (s *Storage) Delete(key []byte) (bool, error) {
	if s.readOnly {
		return false, ErrReadOnly
	}

	old := s.Get(key)
	if old == nil {
		return false, nil
	}

	s.state.Usage -= ItemSize(key, old)
	s.store.Delete(s.key(key))
	return true, nil
}

// Find passes all items with the given key prefix to f until it returns false.
// Keys are passed without the contract prefix. f must not modify the storage
// and must copy keys and values it retains.
func (s *Storage) Find(prefix []byte, f func(key, value []byte) bool) {
	s.store.Seek(storage.SeekRange{Prefix: s.key(prefix)}, func(k, v []byte) bool {
		return f(k[len(s.prefix):], v)
	})
}

// Usage returns the number of bytes currently occupied by the contract.
func (s *Storage) Usage() uint64 {
	return s.state.Usage
}
