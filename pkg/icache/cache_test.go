package icache

import (
	"testing"

	"attrcache/pkg/objmodel"
)

func entryFor(id objmodel.TypeID, tag uint64) cacheEntry {
	return cacheEntry{typeID: id, tag: tag, res: Resolution{Kind: KindInstanceDict}}
}

func TestPICStateTransitions(t *testing.T) {
	p := emptyPIC
	if p.state != CacheStateUninitialized {
		t.Fatalf("expected uninitialized start state, got %v", p.state)
	}

	p = p.withEntry(entryFor(1, 10), 4, 32)
	if p.state != CacheStateMonomorphic || len(p.entries) != 1 {
		t.Fatalf("expected monomorphic with 1 entry, got %v/%d", p.state, len(p.entries))
	}

	// Same type refreshes in place.
	p = p.withEntry(entryFor(1, 11), 4, 32)
	if p.state != CacheStateMonomorphic || p.entries[0].tag != 11 {
		t.Errorf("expected refreshed monomorphic entry tag 11, got %v tag=%d", p.state, p.entries[0].tag)
	}

	// Second type promotes to polymorphic, new entry in front.
	p = p.withEntry(entryFor(2, 20), 4, 32)
	if p.state != CacheStatePolymorphic || len(p.entries) != 2 {
		t.Fatalf("expected polymorphic with 2 entries, got %v/%d", p.state, len(p.entries))
	}
	if p.entries[0].typeID != 2 || p.entries[1].typeID != 1 {
		t.Errorf("expected recency order [2 1], got [%d %d]", p.entries[0].typeID, p.entries[1].typeID)
	}
}

func TestPICFIFOEviction(t *testing.T) {
	p := emptyPIC
	for id := objmodel.TypeID(1); id <= 5; id++ {
		p = p.withEntry(entryFor(id, uint64(id)*10), 4, 32)
	}
	if p.state != CacheStatePolymorphic {
		t.Fatalf("expected polymorphic after 5 types, got %v", p.state)
	}
	if len(p.entries) != 4 {
		t.Fatalf("expected capacity 4, got %d entries", len(p.entries))
	}
	// Oldest (type 1) evicted, newest in front.
	if p.entries[0].typeID != 5 {
		t.Errorf("expected newest entry first, got type %d", p.entries[0].typeID)
	}
	if _, ok := p.lookup(1, 10); ok {
		t.Errorf("expected oldest entry evicted")
	}
	if _, ok := p.lookup(5, 50); !ok {
		t.Errorf("expected newest entry present")
	}
	if p.evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", p.evictions)
	}
}

func TestPICRefreshDoesNotEvict(t *testing.T) {
	p := emptyPIC
	for id := objmodel.TypeID(1); id <= 4; id++ {
		p = p.withEntry(entryFor(id, uint64(id)*10), 4, 32)
	}
	// Re-installing an already-cached type must replace, not evict.
	p = p.withEntry(entryFor(2, 21), 4, 32)
	if len(p.entries) != 4 || p.evictions != 0 {
		t.Fatalf("expected 4 entries and no eviction, got %d/%d", len(p.entries), p.evictions)
	}
	if p.entries[0].typeID != 2 || p.entries[0].tag != 21 {
		t.Errorf("expected refreshed entry for type 2 in front, got type %d tag %d",
			p.entries[0].typeID, p.entries[0].tag)
	}
	if _, ok := p.lookup(2, 20); ok {
		t.Errorf("stale tag for type 2 must not match")
	}
}

func TestPICMegamorphicAfterChurn(t *testing.T) {
	p := emptyPIC
	// Round-robin far more types than capacity with a small threshold.
	id := objmodel.TypeID(1)
	for i := 0; i < 100 && p.state != CacheStateMegamorphic; i++ {
		p = p.withEntry(entryFor(id, uint64(i)+1), 4, 8)
		id++
	}
	if p.state != CacheStateMegamorphic {
		t.Fatalf("expected megamorphic after sustained eviction churn, got %v", p.state)
	}
	// Megamorphic sites install nothing further.
	next := p.withEntry(entryFor(999, 1), 4, 8)
	if next != p {
		t.Errorf("expected megamorphic state to be terminal")
	}
}

func TestPICLookupRequiresBothIdentityAndTag(t *testing.T) {
	p := emptyPIC.withEntry(entryFor(7, 70), 4, 32)
	if _, ok := p.lookup(7, 70); !ok {
		t.Errorf("expected exact match to hit")
	}
	if _, ok := p.lookup(7, 71); ok {
		t.Errorf("identity match with stale tag must miss")
	}
	if _, ok := p.lookup(8, 70); ok {
		t.Errorf("tag match with wrong identity must miss")
	}
}
