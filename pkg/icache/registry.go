package icache

import (
	"sync"
	"sync/atomic"

	"attrcache/pkg/logging"
	"attrcache/pkg/objmodel"
)

// nextVersionTag is the process-wide tag counter. Global monotonicity means
// a (type identity, tag) pair observed by any guard can never recur, even
// across registries, so a stale snapshot is guaranteed to fail its compare.
var nextVersionTag atomic.Uint64

// DefaultTagBudget is the number of tags a registry may assign before it
// starts pinning types to the uncacheable state.
const DefaultTagBudget = 1 << 62

// VersionRegistry hands out and invalidates per-type version tags.
//
// A type's tag starts at 0 (not cacheable) and is assigned lazily on the
// first miss that wants to cache it. Bump zeroes the tag of the type and
// every transitive subclass; the next cacheable miss reassigns a fresh
// value. Once the registry's budget is spent, a type asking for a tag is
// pinned: its tag stays 0 forever and its call sites run the slow path.
type VersionRegistry struct {
	max uint64
	log logging.Logger

	mu     sync.Mutex
	pinned map[objmodel.TypeID]struct{}
}

// NewVersionRegistry creates a registry allowed to assign budget more tags.
func NewVersionRegistry(budget uint64, log logging.Logger) *VersionRegistry {
	if log == nil {
		log = logging.NopLogger{}
	}
	return &VersionRegistry{
		max:    nextVersionTag.Load() + budget,
		log:    log,
		pinned: make(map[objmodel.TypeID]struct{}),
	}
}

// EnsureTag returns the type's live tag, assigning one if the type has none
// yet. Returns 0 for pinned types.
func (r *VersionRegistry) EnsureTag(t *objmodel.Type) uint64 {
	if tag := t.VersionTag(); tag != 0 {
		return tag
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if tag := t.VersionTag(); tag != 0 {
		return tag
	}
	if _, dead := r.pinned[t.ID()]; dead {
		return 0
	}
	v := nextVersionTag.Add(1)
	if v > r.max {
		r.pinned[t.ID()] = struct{}{}
		r.log.Warn("version tag budget exhausted, type pinned to slow path",
			logging.Fields{"type": t.Name()})
		return 0
	}
	t.StoreVersionTag(v)
	return v
}

// Bump invalidates the tag of t and of every transitive subclass: a base
// class mutation can change MRO-based resolution for any derived type. The
// store is atomic, so a guard on another thread sees either the old tag or
// 0, never a transient value.
func (r *VersionRegistry) Bump(t *objmodel.Type) {
	t.StoreVersionTag(0)
	seen := map[objmodel.TypeID]bool{t.ID(): true}
	stack := t.Subclasses()
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[s.ID()] {
			continue
		}
		seen[s.ID()] = true
		s.StoreVersionTag(0)
		stack = append(stack, s.Subclasses()...)
	}
}
