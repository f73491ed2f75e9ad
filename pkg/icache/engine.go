// Package icache implements guarded inline caching for attribute access:
// per-call-site monomorphic and polymorphic caches keyed on (type identity,
// version tag), a version tag registry invalidated on type mutation, and
// the deopt bridge that re-resolves through the object model on any guard
// failure.
package icache

import (
	"sync"
	"sync/atomic"

	"attrcache/pkg/logging"
	"attrcache/pkg/objmodel"
)

// Engine owns the call-site table, the version tag registry, and the slow
// path. One engine serves any number of threads; Evaluate takes no locks on
// the hit path.
type Engine struct {
	registry      *VersionRegistry
	log           logging.Logger
	capacity      int
	megaThreshold uint32
	tagBudget     uint64

	shards [siteShardCount]siteShard

	// Types the engine already watches, keyed by TypeID. Lets the deopt
	// path skip re-registration without touching the type's lock.
	watched sync.Map

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes engine events (invalidation, tag exhaustion,
// megamorphic transitions) to log. Nothing is logged on the hit path.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithTagBudget bounds how many version tags the engine's registry may
// assign before degrading further types to the slow path.
func WithTagBudget(n uint64) Option {
	return func(e *Engine) { e.tagBudget = n }
}

// WithPolymorphicCapacity sets how many types a call site caches before
// evicting.
func WithPolymorphicCapacity(n int) Option {
	return func(e *Engine) { e.capacity = n }
}

// WithMegamorphicThreshold sets the eviction churn after which a site stops
// installing entries.
func WithMegamorphicThreshold(n uint32) Option {
	return func(e *Engine) { e.megaThreshold = n }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:           logging.NopLogger{},
		capacity:      DefaultPolymorphicCapacity,
		megaThreshold: DefaultMegamorphicThreshold,
		tagBudget:     DefaultTagBudget,
	}
	for _, o := range opts {
		o(e)
	}
	e.registry = NewVersionRegistry(e.tagBudget, e.log)
	return e
}

// Evaluate is the fast-path entry point. It reads the object's current
// type, the type's live tag, and the site's published cache snapshot, all
// atomically, and executes the cached accessor on a guard hit. Any
// mismatch defers to the deopt bridge; a live tag of 0 forces a permanent
// miss.
func (e *Engine) Evaluate(site *Site, obj *objmodel.Object) (any, error) {
	t := obj.Class()
	if tag := t.VersionTag(); tag != 0 {
		if res, ok := site.pic.Load().lookup(t.ID(), tag); ok {
			site.hits.Add(1)
			e.hits.Add(1)
			v, _, err := e.executeResolved(res, site, obj, t)
			return v, err
		}
	}
	return e.deopt(site, obj, t)
}

// deopt is the bridge from the compiled fast path to full dynamic
// resolution: re-resolve against the type's current state, install or
// refresh the cache entry, and return the value. Absent resolutions and
// lookups serviced by the fallback hook install nothing.
func (e *Engine) deopt(site *Site, obj *objmodel.Object, t *objmodel.Type) (any, error) {
	site.misses.Add(1)
	e.misses.Add(1)

	// Watch first, tag second, resolve third. The watchers must be in
	// place before the tag snapshot is taken: any mutation after this
	// point zeroes the live tag, so the entry installed below can never
	// match a stale guard.
	e.watchChain(t)
	tag := e.registry.EnsureTag(t)
	res := resolve(t, site.name)
	if res.Kind == KindAbsent {
		v, _, err := e.fallbackOrError(site, obj, t)
		return v, err
	}
	v, hookRan, err := e.executeResolved(res, site, obj, t)
	if tag != 0 && !hookRan {
		e.install(site, cacheEntry{typeID: t.ID(), tag: tag, res: res})
	}
	return v, err
}

// executeResolved performs the access a Resolution describes. Non-data
// kinds consult instance storage here, at execution time: instance
// mutation does not bump version tags, so the entry itself must do the
// shadowing check on every call. hookRan reports whether the fallback
// hook serviced the lookup.
func (e *Engine) executeResolved(res Resolution, site *Site, obj *objmodel.Object, t *objmodel.Type) (v any, hookRan bool, err error) {
	switch res.Kind {
	case KindInstanceSlot:
		if v, ok := obj.SlotValue(res.SlotOffset); ok {
			return v, false, nil
		}
		// Declared but never assigned.
		return e.fallbackOrError(site, obj, t)

	case KindInstanceDict:
		if v, ok := obj.DictGet(site.name); ok {
			return v, false, nil
		}
		return e.fallbackOrError(site, obj, t)

	case KindDataDescriptor:
		v, err := res.Descr.Get(obj, t)
		return v, false, err

	case KindNonDataDescriptor:
		if v, ok := obj.DictGet(site.name); ok {
			return v, false, nil
		}
		v, err := res.Descr.Get(obj, t)
		return v, false, err

	case KindClassAttribute:
		if v, ok := obj.DictGet(site.name); ok {
			return v, false, nil
		}
		return res.ClassValue, false, nil

	default:
		return e.fallbackOrError(site, obj, t)
	}
}

// fallbackOrError runs the type's fallback-lookup hook if one is
// installed, else surfaces AttributeError. Hook results are never cached
// and hook errors propagate verbatim.
func (e *Engine) fallbackOrError(site *Site, obj *objmodel.Object, t *objmodel.Type) (any, bool, error) {
	if fb := t.Fallback(); fb != nil {
		v, err := fb(obj, site.name)
		return v, true, err
	}
	return nil, false, &AttributeError{TypeName: t.Name(), Attr: site.name}
}

// install publishes the successor cache snapshot. A racing installer for
// the same site computed an equally correct entry, so last write wins.
func (e *Engine) install(site *Site, entry cacheEntry) {
	old := site.pic.Load()
	next := old.withEntry(entry, e.capacity, e.megaThreshold)
	if next == old {
		return
	}
	site.pic.Store(next)
	if next.state == CacheStateMegamorphic && old.state != CacheStateMegamorphic {
		e.log.Warn("call site went megamorphic",
			logging.Fields{"site": site.id, "attr": site.name, "evictions": next.evictions})
	}
}

// watchChain subscribes the engine to modification events for the type and
// its ancestors, so a base-class mutation reaches the registry even when
// only derived types were ever cached. Must happen before the tag snapshot
// is taken: from then on every mutation bumps the live tag and orphans
// whatever entry the snapshot guards. Already-watched types are skipped
// without touching the type's lock, so a megamorphic site paying this on
// every miss stays contention-free.
func (e *Engine) watchChain(t *objmodel.Type) {
	for _, anc := range t.MRO() {
		if _, ok := e.watched.Load(anc.ID()); ok {
			continue
		}
		anc.AddWatcher(e)
		e.watched.Store(anc.ID(), struct{}{})
	}
}

// TypeModified implements objmodel.Watcher.
func (e *Engine) TypeModified(t *objmodel.Type) { e.InvalidateType(t) }

// InvalidateType is the host-triggered invalidation hook: bump the type's
// version tag (and every subclass's), orphaning all entries guarded on it.
func (e *Engine) InvalidateType(t *objmodel.Type) {
	e.registry.Bump(t)
	e.log.Debug("type invalidated", logging.Fields{"type": t.Name()})
}

// Diagnostics is read-only per-site introspection.
type Diagnostics struct {
	State      CacheState
	EntryCount int
	HitCount   uint64
	MissCount  uint64
}

// Diagnostics reports the current state of a call site's cache.
func (e *Engine) Diagnostics(site *Site) Diagnostics {
	pic := site.pic.Load()
	return Diagnostics{
		State:      pic.state,
		EntryCount: len(pic.entries),
		HitCount:   site.hits.Load(),
		MissCount:  site.misses.Load(),
	}
}

// Stats holds engine-wide cache counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Stats returns the engine-wide hit/miss totals.
func (e *Engine) Stats() Stats {
	return Stats{Hits: e.hits.Load(), Misses: e.misses.Load()}
}
