// Package mem implements an in-memory overlay of a store. Writes are kept in
// the overlay and only reach the parent store when they are committed, which
// gives all-or-nothing semantics to a unit of work.
package mem

import (
	"sort"

	"go.dedis.ch/pollchain/core/store"
	"golang.org/x/xerrors"
)

// Snapshot is an in-memory overlay on top of an optional readable parent. When
// reading, it looks up its own writes first and then falls back to the parent.
//
// - implements store.Snapshot
type Snapshot struct {
	parent  store.Readable
	writes  map[string][]byte
	deleted map[string]struct{}
}

// NewSnapshot returns a new empty overlay. The parent can be nil.
func NewSnapshot(parent store.Readable) *Snapshot {
	return &Snapshot{
		parent:  parent,
		writes:  make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// Get implements store.Readable. It returns a copy of the value so that the
// caller can freely modify it.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	str := string(key)

	_, found := s.deleted[str]
	if found {
		return nil, nil
	}

	val, found := s.writes[str]
	if found {
		return clone(val), nil
	}

	if s.parent == nil {
		return nil, nil
	}

	val, err := s.parent.Get(key)
	if err != nil {
		return nil, xerrors.Errorf("failed to read parent: %v", err)
	}

	return clone(val), nil
}

// Set implements store.Writable.
func (s *Snapshot) Set(key, value []byte) error {
	str := string(key)

	delete(s.deleted, str)
	s.writes[str] = clone(value)

	return nil
}

// Delete implements store.Writable.
func (s *Snapshot) Delete(key []byte) error {
	str := string(key)

	delete(s.writes, str)
	s.deleted[str] = struct{}{}

	return nil
}

// Stage creates a child overlay and runs the function on it. The child is
// returned only if the function succeeds, otherwise its writes are dropped.
func (s *Snapshot) Stage(fn func(store.Snapshot) error) (*Snapshot, error) {
	child := NewSnapshot(s)

	err := fn(child)
	if err != nil {
		return nil, err
	}

	return child, nil
}

// Keys returns the keys written or deleted in the overlay, in byte order.
func (s *Snapshot) Keys() [][]byte {
	keys := make([]string, 0, len(s.writes)+len(s.deleted))
	for k := range s.writes {
		keys = append(keys, k)
	}
	for k := range s.deleted {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	res := make([][]byte, len(keys))
	for i, k := range keys {
		res[i] = []byte(k)
	}

	return res
}

// Len returns the number of pending changes.
func (s *Snapshot) Len() int {
	return len(s.writes) + len(s.deleted)
}

// Commit applies the pending changes to the writable store in key order.
func (s *Snapshot) Commit(w store.Writable) error {
	for _, key := range s.Keys() {
		str := string(key)

		var err error

		val, found := s.writes[str]
		if found {
			err = w.Set(key, val)
		} else {
			err = w.Delete(key)
		}

		if err != nil {
			return xerrors.Errorf("failed to commit key '%x': %v", key, err)
		}
	}

	return nil
}

func clone(buf []byte) []byte {
	if buf == nil {
		return nil
	}

	res := make([]byte, len(buf))
	copy(res, buf)

	return res
}
