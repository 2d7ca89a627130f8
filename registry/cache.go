package registry

import (
	"sync"
	"time"
)

// EnrichmentCache is the process-local cache of recent registry results
// plus the per-key cooldown map for rate-limited CNPJs. It is an explicit
// component handed by reference to whoever needs it, not package state.
type EnrichmentCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	entries   map[string]enrichmentEntry
	cooldowns map[string]time.Time
}

type enrichmentEntry struct {
	data    *IssuerData
	addedAt time.Time
}

const enrichmentCacheTTL = 5 * time.Minute

func NewEnrichmentCache() *EnrichmentCache {
	return &EnrichmentCache{
		ttl:       enrichmentCacheTTL,
		entries:   make(map[string]enrichmentEntry),
		cooldowns: make(map[string]time.Time),
	}
}

// Get returns a cached result that is still inside the validity window.
func (c *EnrichmentCache) Get(taxId string) (*IssuerData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[CleanTaxId(taxId)]
	if !ok || time.Since(entry.addedAt) >= c.ttl {
		return nil, false
	}
	return entry.data, true
}

func (c *EnrichmentCache) Put(taxId string, data *IssuerData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[CleanTaxId(taxId)] = enrichmentEntry{data: data, addedAt: time.Now()}
}

func (c *EnrichmentCache) Invalidate(taxId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, CleanTaxId(taxId))
}

// SetCooldown marks a CNPJ as rate-limited until the given time; lookups
// for it are skipped rather than burned against the registry's limit.
func (c *EnrichmentCache) SetCooldown(taxId string, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldowns[CleanTaxId(taxId)] = until
}

func (c *EnrichmentCache) InCooldown(taxId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.cooldowns[CleanTaxId(taxId)]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.cooldowns, CleanTaxId(taxId))
		return false
	}
	return true
}
