// Package cache stores generated replies keyed by a request fingerprint
// with per-entry expiry, so repeated identical triggers within the TTL
// window do not cost a second provider call.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultTTL is deliberately long: context strings are coarse-grained
// and personas are stable across a play session.
const DefaultTTL = 24 * time.Hour

// Stats reports entry counts split by expiry state.
type Stats struct {
	Valid   int `json:"valid"`
	Expired int `json:"expired"`
}

// Cache maps a request fingerprint to a previously generated reply.
// The controller is the only writer; implementations need no
// multi-writer guarantees beyond what the memory variant provides
// anyway. Storage failures degrade to misses and are never surfaced
// to the dispatch pipeline.
type Cache interface {
	// Get returns the stored value if present and unexpired.
	Get(key string) (string, bool)
	// Put stores value under key until now+ttl, replacing any entry.
	Put(key, value string, ttl time.Duration)
	// Sweep removes expired entries and reports how many.
	Sweep() int
	// Clear removes every entry and reports how many.
	Clear() int
	// Stats counts valid and expired entries.
	Stats() Stats
	// Close releases any underlying storage.
	Close() error
}

// Fingerprint derives the cache key from the semantic request fields.
// The composition is fixed-order (persona, context, mode, language)
// over the exact strings, NUL-separated, hashed with SHA-256.
// No trimming or case folding is applied: two requests hit the same
// entry iff all four fields compare equal. Cost and latency metadata
// never participate.
func Fingerprint(persona, context, mode, language string) string {
	h := sha256.New()
	for i, field := range []string{persona, context, mode, language} {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}
