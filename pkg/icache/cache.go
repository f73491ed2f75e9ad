package icache

import "attrcache/pkg/objmodel"

// CacheState represents the different states of an inline cache site.
type CacheState uint8

const (
	CacheStateUninitialized CacheState = iota
	CacheStateMonomorphic              // single type cached
	CacheStatePolymorphic              // multiple types cached (up to capacity)
	CacheStateMegamorphic              // churned out, every call runs the slow path
)

func (s CacheState) String() string {
	switch s {
	case CacheStateMonomorphic:
		return "monomorphic"
	case CacheStatePolymorphic:
		return "polymorphic"
	case CacheStateMegamorphic:
		return "megamorphic"
	default:
		return "uninitialized"
	}
}

// DefaultPolymorphicCapacity matches the fast-path budget: four guard
// compares before the scan itself costs more than the slow path saves.
const DefaultPolymorphicCapacity = 4

// DefaultMegamorphicThreshold is the eviction count at a full cache after
// which a site stops installing entries.
const DefaultMegamorphicThreshold = 32

// cacheEntry guards one resolved accessor with (type identity, tag
// snapshot). Immutable once created; replaced wholesale, never mutated, so
// a concurrent reader sees an entry in full or not at all.
type cacheEntry struct {
	typeID objmodel.TypeID
	tag    uint64
	res    Resolution
}

// picState is an immutable snapshot of a call site's cache: entries in
// recency order, most recently installed first. A miss builds a successor
// snapshot and publishes it atomically.
type picState struct {
	state     CacheState
	entries   []cacheEntry
	evictions uint32
}

var emptyPIC = &picState{state: CacheStateUninitialized}

// lookup scans entries in recency order for an exact (identity, tag) match.
// Identity alone is not enough: a bumped tag must fail the guard. Entries
// never carry tag 0, so a tag-0 type misses naturally.
func (p *picState) lookup(id objmodel.TypeID, tag uint64) (Resolution, bool) {
	for i := range p.entries {
		if p.entries[i].typeID == id && p.entries[i].tag == tag {
			return p.entries[i].res, true
		}
	}
	return Resolution{}, false
}

// withEntry returns the successor snapshot after a resolved miss.
// Monomorphic sites refresh in place for the same type and promote to
// polymorphic for a second one; polymorphic sites front-insert and drop the
// oldest entry past capacity. Sustained eviction churn tips the site into
// the megamorphic state, which installs nothing further: a known-
// polymorphic site must not keep re-specialising on every miss.
func (p *picState) withEntry(e cacheEntry, capacity int, megaThreshold uint32) *picState {
	switch p.state {
	case CacheStateUninitialized:
		return &picState{state: CacheStateMonomorphic, entries: []cacheEntry{e}}

	case CacheStateMonomorphic:
		if p.entries[0].typeID == e.typeID {
			return &picState{state: CacheStateMonomorphic, entries: []cacheEntry{e}}
		}
		return &picState{state: CacheStatePolymorphic, entries: []cacheEntry{e, p.entries[0]}}

	case CacheStatePolymorphic:
		entries := make([]cacheEntry, 0, capacity+1)
		entries = append(entries, e)
		for _, old := range p.entries {
			if old.typeID != e.typeID {
				entries = append(entries, old)
			}
		}
		ev := p.evictions
		if len(entries) > capacity {
			entries = entries[:capacity]
			ev++
			if ev >= megaThreshold {
				return &picState{state: CacheStateMegamorphic, evictions: ev}
			}
		}
		return &picState{state: CacheStatePolymorphic, entries: entries, evictions: ev}

	default: // megamorphic
		return p
	}
}
