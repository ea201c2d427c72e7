// Package cache implements spec.md §4.10: a process-wide, immutable-entry
// result cache keyed by (operation, portfolio_fingerprint, parameters,
// data_version), invalidated in bulk per user on portfolio/basket
// mutation. Grounded on the teacher's
// internal/modules/optimization/risk.go (sha256-based deterministic cache
// keys) and internal/services/exchange_rate_cache_service.go (TTL
// staleness checked on read, not enforced by a background sweeper).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Key identifies one cached analytical result. UserID is carried
// separately from PortfolioFingerprint so every entry for a user can be
// swept on mutation without having to recompute fingerprints.
type Key struct {
	UserID               string
	Operation            string
	PortfolioFingerprint string
	Parameters           string
	DataVersion          string
}

type entry struct {
	value     any
	computed  time.Time
	ttl       time.Duration
}

// Cache is a sync.RWMutex-guarded map of immutable entries: a
// recomputation writes a brand new entry under the same key rather than
// mutating the one found there, so a concurrent reader never observes a
// partially updated result (spec.md §4.10 and §5).
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]entry
	log     zerolog.Logger
}

// New constructs an empty cache.
func New(log zerolog.Logger) *Cache {
	return &Cache{
		entries: make(map[Key]entry),
		log:     log.With().Str("component", "cache").Logger(),
	}
}

// Get returns the cached value for key if present and not expired.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.ttl > 0 && time.Since(e.computed) > e.ttl {
		return nil, false
	}
	return e.value, true
}

// Set writes a new immutable entry, replacing whatever was previously
// stored under key.
func (c *Cache) Set(key Key, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, computed: time.Now(), ttl: ttl}
	c.mu.Unlock()
}

// InvalidateUser drops every cached entry for userID — called on basket
// create/update, risk-profile change, or portfolio-holdings update
// (spec.md §4.10's "mutation ... invalidates the set of keys overlapping
// that user").
func (c *Cache) InvalidateUser(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int
	for k := range c.entries {
		if k.UserID == userID {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug().Str("user_id", userID).Int("entries_removed", removed).Msg("cache invalidated")
	}
	return removed
}

// EvictExpired removes every entry whose TTL has elapsed, bounding memory
// use for analyses no one has requested recently. Mirrors
// internal/modules/priceseries's seriesCache.EvictExpired.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var evicted int
	for k, e := range c.entries {
		if e.ttl > 0 && time.Since(e.computed) > e.ttl {
			delete(c.entries, k)
			evicted++
		}
	}
	return evicted
}

// Len reports the current entry count, for diagnostics/tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// FingerprintPortfolio hashes a canonical portfolio's leg composition
// (symbol -> weight, sorted) into a short deterministic fingerprint, the
// same sha256-prefix-hex scheme the teacher uses for its covariance cache
// keys (internal/modules/optimization/risk.go's hashISINs).
func FingerprintPortfolio(legWeights map[string]float64) string {
	keys := make([]string, 0, len(legWeights))
	for k := range legWeights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatWeight(legWeights[k]))
		b.WriteByte(';')
	}
	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:16])
}

func formatWeight(w float64) string {
	// Six decimal places is far finer than any real position-sizing
	// precision, so two portfolios differing only in floating-point noise
	// still hash identically.
	const scale = 1e6
	rounded := int64(w*scale + 0.5)
	if w < 0 {
		rounded = int64(w*scale - 0.5)
	}
	return itoa(rounded)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
