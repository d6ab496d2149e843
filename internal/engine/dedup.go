package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/IshaanNene/ListingScout/internal/types"
)

// Deduplicator tracks listing dedup keys already emitted by a run.
type Deduplicator struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewDeduplicator creates a new Deduplicator with the given estimated capacity.
func NewDeduplicator(estimatedCapacity int) *Deduplicator {
	return &Deduplicator{
		seen: make(map[string]struct{}, estimatedCapacity),
	}
}

// IsSeen returns true if the key has been seen before.
func (d *Deduplicator) IsSeen(key string) bool {
	hash := hashKey(key)

	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.seen[hash]
	return ok
}

// MarkSeen marks a key as seen. It reports false if it was already seen.
func (d *Deduplicator) MarkSeen(key string) bool {
	hash := hashKey(key)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[hash]; ok {
		return false
	}
	d.seen[hash] = struct{}{}
	return true
}

// Count returns the number of unique keys seen.
func (d *Deduplicator) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.seen)
}

// Unique keeps the first listing per dedup key, in input order. Listings
// without a key are always kept.
func (d *Deduplicator) Unique(listings []*types.Listing) []*types.Listing {
	out := listings[:0:0]
	for _, l := range listings {
		key := l.Key()
		if key != "" && !d.MarkSeen(key) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// hashKey creates a compact hash of a key.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:16]) // 128-bit hash
}
