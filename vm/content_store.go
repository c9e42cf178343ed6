package vm

import (
	"bytes"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// ContentStore: content-addressed index of compiled scripts
// ---------------------------------------------------------------------------

// ContentStore indexes compiled scripts, nested function scripts included,
// by their content hash. Identical functions compiled from different files
// share one entry.
type ContentStore struct {
	mu      sync.RWMutex
	scripts map[[32]byte]*Script
}

// NewContentStore creates an empty content store.
func NewContentStore() *ContentStore {
	return &ContentStore{
		scripts: make(map[[32]byte]*Script),
	}
}

// IndexScript adds s and every nested function script to the store.
// Scripts with a zero hash are silently ignored.
func (cs *ContentStore) IndexScript(s *Script) {
	if s == nil || s.Hash == ([32]byte{}) {
		return
	}
	cs.mu.Lock()
	cs.indexLocked(s)
	cs.mu.Unlock()
}

func (cs *ContentStore) indexLocked(s *Script) {
	if s.Hash == ([32]byte{}) {
		return
	}
	cs.scripts[s.Hash] = s
	for _, o := range s.Objects {
		if o.Kind == ObjectFunction && o.Script != nil {
			cs.indexLocked(o.Script)
		}
	}
}

// LookupScript returns the script for the given hash, or nil.
func (cs *ContentStore) LookupScript(h [32]byte) *Script {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.scripts[h]
}

// HasHash returns true if the store contains a script with the given hash.
func (cs *ContentStore) HasHash(h [32]byte) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.scripts[h]
	return ok
}

// Hashes returns all script hashes in ascending byte order.
func (cs *ContentStore) Hashes() [][32]byte {
	cs.mu.RLock()
	hashes := make([][32]byte, 0, len(cs.scripts))
	for h := range cs.scripts {
		hashes = append(hashes, h)
	}
	cs.mu.RUnlock()
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})
	return hashes
}

// Count returns the number of indexed scripts.
func (cs *ContentStore) Count() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.scripts)
}
