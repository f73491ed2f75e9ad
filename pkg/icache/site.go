package icache

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// SiteID identifies a compiled call site (typically a bytecode offset).
type SiteID uint32

// Site is the handle a compiled call site holds: one attribute name plus
// the published cache snapshot. The snapshot pointer is the only mutable
// cell and is read and replaced atomically.
type Site struct {
	id   SiteID
	name string

	pic    atomic.Pointer[picState]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// ID returns the call site id the handle was compiled for.
func (s *Site) ID() SiteID { return s.id }

// Attribute returns the attribute name the site reads.
func (s *Site) Attribute() string { return s.name }

const siteShardCount = 16

type siteKey struct {
	id   SiteID
	name string
}

type siteShard struct {
	mu    sync.RWMutex
	sites map[siteKey]*Site
}

// CompileGuardedAccess installs (or returns) the empty cache slot for a
// call site reading the named attribute. The site table is sharded by
// attribute-name hash so concurrent compilation of unrelated functions
// does not serialize on one lock.
func (e *Engine) CompileGuardedAccess(id SiteID, name string) *Site {
	shard := &e.shards[xxhash.Sum64String(name)%siteShardCount]
	key := siteKey{id: id, name: name}

	shard.mu.RLock()
	site := shard.sites[key]
	shard.mu.RUnlock()
	if site != nil {
		return site
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if site = shard.sites[key]; site != nil {
		return site
	}
	site = &Site{id: id, name: name}
	site.pic.Store(emptyPIC)
	if shard.sites == nil {
		shard.sites = make(map[siteKey]*Site)
	}
	shard.sites[key] = site
	return site
}
