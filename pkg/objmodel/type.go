package objmodel

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// TypeID is a generation-tagged identity token. IDs are handed out from a
// monotonic counter and never reused, so a stale reference to a destroyed
// type can never be confused with a newer type that happens to occupy the
// same memory.
type TypeID uint64

var nextTypeID atomic.Uint64

// FallbackFunc is the programmable fallback-lookup hook consulted only after
// normal resolution finds nothing (the __getattr__ analogue).
type FallbackFunc func(obj *Object, name string) (any, error)

// Watcher is notified after any mutation of a type that can affect attribute
// resolution. The cache engine registers itself here to trigger tag bumps.
type Watcher interface {
	TypeModified(t *Type)
}

// Type is the host object model's type metadata: class dict, slot layout,
// MRO, subclass links, and the version tag storage the cache engine keys
// its guards on.
type Type struct {
	id   TypeID
	name string

	mu       sync.RWMutex
	bases    []*Type
	mro      []*Type
	dict     map[string]any
	slots    map[string]int
	ownSlots []string
	slotLen  int
	hasDict  bool
	fallback FallbackFunc
	subs     map[TypeID]*Type
	watchers []Watcher

	// Version tag. 0 means "not cacheable"; managed by the version tag
	// registry, never written by host code directly.
	tag atomic.Uint64
}

// TypeOption configures NewType.
type TypeOption func(*typeConfig)

type typeConfig struct {
	slots []string
}

// WithSlots declares fixed instance slots. A slotted type has no instance
// dict, mirroring the usual __slots__ trade-off.
func WithSlots(names ...string) TypeOption {
	return func(c *typeConfig) { c.slots = names }
}

// NewType creates a type with the given bases. The MRO is the C3
// linearization of the bases; an unlinearizable hierarchy is an error.
func NewType(name string, bases []*Type, opts ...TypeOption) (*Type, error) {
	var cfg typeConfig
	for _, o := range opts {
		o(&cfg)
	}

	t := &Type{
		id:   TypeID(nextTypeID.Add(1)),
		name: name,
		dict: make(map[string]any),
		subs: make(map[TypeID]*Type),
	}
	mro, err := linearize(t, bases)
	if err != nil {
		return nil, err
	}
	t.bases = append([]*Type(nil), bases...)
	t.mro = mro
	t.ownSlots = append([]string(nil), cfg.slots...)
	t.buildSlotLayout()
	t.hasDict = len(t.slots) == 0

	for _, b := range bases {
		b.addSubclass(t)
	}
	return t, nil
}

// MustNewType is NewType panicking on error, for hierarchies known to be
// linearizable (tests, fixtures).
func MustNewType(name string, bases []*Type, opts ...TypeOption) *Type {
	t, err := NewType(name, bases, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// buildSlotLayout assigns slot offsets: inherited slots first in reverse MRO
// order, own slots appended. Offsets are per-type; the cache keys entries on
// exact type identity, so layouts need not agree across a hierarchy.
// Caller holds no locks (construction) or t.mu (SetBases).
func (t *Type) buildSlotLayout() {
	layout := make(map[string]int)
	n := 0
	for i := len(t.mro) - 1; i >= 1; i-- {
		anc := t.mro[i]
		for _, name := range anc.slotNamesInOrder() {
			if _, ok := layout[name]; !ok {
				layout[name] = n
				n++
			}
		}
	}
	for _, name := range t.ownSlots {
		if _, ok := layout[name]; !ok {
			layout[name] = n
			n++
		}
	}
	t.slots = layout
	t.slotLen = n
}

func (t *Type) slotNamesInOrder() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, t.slotLen)
	for name, off := range t.slots {
		names[off] = name
	}
	return names
}

func (t *Type) ID() TypeID   { return t.id }
func (t *Type) Name() string { return t.name }

func (t *Type) String() string { return fmt.Sprintf("<type %s#%d>", t.name, t.id) }

// VersionTag returns the live version tag. A single atomic load; safe to
// call from guard evaluation on any thread.
func (t *Type) VersionTag() uint64 { return t.tag.Load() }

// StoreVersionTag publishes a new version tag. Reserved for the version tag
// registry; host code must never call it.
func (t *Type) StoreVersionTag(v uint64) { t.tag.Store(v) }

// MRO returns a snapshot of the method resolution order, self first.
func (t *Type) MRO() []*Type {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Type(nil), t.mro...)
}

// Bases returns a snapshot of the direct bases.
func (t *Type) Bases() []*Type {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Type(nil), t.bases...)
}

// DictGet looks up a name in this type's own class dict.
func (t *Type) DictGet(name string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.dict[name]
	return v, ok
}

// SlotOffset reports the instance slot offset for name in this type's
// layout, if any.
func (t *Type) SlotOffset(name string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	off, ok := t.slots[name]
	return off, ok
}

// OwnsSlot reports whether this type itself declared a slot named name
// (as opposed to inheriting it).
func (t *Type) OwnsSlot(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.ownSlots {
		if s == name {
			return true
		}
	}
	return false
}

// SlotLen returns the instance slot array length for this type.
func (t *Type) SlotLen() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slotLen
}

// HasInstanceDict reports whether instances carry a dict.
func (t *Type) HasInstanceDict() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasDict
}

// Fallback returns the installed fallback-lookup hook, or nil.
func (t *Type) Fallback() FallbackFunc {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fallback
}

// SetFallback installs the fallback-lookup hook. Counts as a
// resolution-affecting mutation.
func (t *Type) SetFallback(fn FallbackFunc) {
	t.mu.Lock()
	t.fallback = fn
	t.mu.Unlock()
	t.notifyModified()
}

// SetAttr assigns a class attribute or descriptor.
func (t *Type) SetAttr(name string, v any) {
	t.mu.Lock()
	t.dict[name] = v
	t.mu.Unlock()
	t.notifyModified()
}

// DelAttr removes a class attribute or descriptor.
func (t *Type) DelAttr(name string) error {
	t.mu.Lock()
	if _, ok := t.dict[name]; !ok {
		t.mu.Unlock()
		return fmt.Errorf("type %s has no attribute %q", t.name, name)
	}
	delete(t.dict, name)
	t.mu.Unlock()
	t.notifyModified()
	return nil
}

// SetBases reassigns the direct bases, relinearizing this type and every
// transitive subclass. Subclasses are processed breadth-first so each
// relinearization sees its ancestors' updated MROs. On failure all MROs
// are rolled back.
func (t *Type) SetBases(bases []*Type) error {
	affected := t.subclassesBFS()

	t.mu.Lock()
	oldBases := t.bases
	t.bases = append([]*Type(nil), bases...)
	t.mu.Unlock()

	oldMROs := make(map[*Type][]*Type, len(affected))
	for _, a := range affected {
		oldMROs[a] = a.MRO()
	}

	for i, a := range affected {
		mro, err := linearize(a, a.Bases())
		if err != nil {
			for j := 0; j < i; j++ {
				prev := affected[j]
				prev.mu.Lock()
				prev.mro = oldMROs[prev]
				prev.buildSlotLayout()
				prev.mu.Unlock()
			}
			t.mu.Lock()
			t.bases = oldBases
			t.mu.Unlock()
			return fmt.Errorf("cannot reassign bases of %s: %w", t.name, err)
		}
		a.mu.Lock()
		a.mro = mro
		a.buildSlotLayout()
		a.mu.Unlock()
	}

	for _, b := range oldBases {
		b.removeSubclass(t)
	}
	for _, b := range bases {
		b.addSubclass(t)
	}
	for _, a := range affected {
		a.notifyModified()
	}
	return nil
}

// subclassesBFS returns t followed by its transitive subclasses in
// breadth-first order, so ancestors precede descendants.
func (t *Type) subclassesBFS() []*Type {
	seen := map[TypeID]bool{t.id: true}
	out := []*Type{t}
	for i := 0; i < len(out); i++ {
		for _, s := range out[i].Subclasses() {
			if !seen[s.id] {
				seen[s.id] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Subclasses returns a snapshot of the direct subclasses.
func (t *Type) Subclasses() []*Type {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Type, 0, len(t.subs))
	for _, s := range t.subs {
		out = append(out, s)
	}
	return out
}

func (t *Type) addSubclass(s *Type) {
	t.mu.Lock()
	t.subs[s.id] = s
	t.mu.Unlock()
}

func (t *Type) removeSubclass(s *Type) {
	t.mu.Lock()
	delete(t.subs, s.id)
	t.mu.Unlock()
}

// AddWatcher registers a modification watcher. Idempotent per watcher.
func (t *Type) AddWatcher(w Watcher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, have := range t.watchers {
		if have == w {
			return
		}
	}
	t.watchers = append(t.watchers, w)
}

// notifyModified fires watchers outside the type lock so a watcher may walk
// the hierarchy (tag bumps cascade through subclasses).
func (t *Type) notifyModified() {
	t.mu.RLock()
	ws := append([]Watcher(nil), t.watchers...)
	t.mu.RUnlock()
	for _, w := range ws {
		w.TypeModified(t)
	}
}

// linearize computes the C3 linearization of t over bases.
func linearize(t *Type, bases []*Type) ([]*Type, error) {
	seqs := make([][]*Type, 0, len(bases)+1)
	for _, b := range bases {
		seqs = append(seqs, b.MRO())
	}
	if len(bases) > 0 {
		seqs = append(seqs, append([]*Type(nil), bases...))
	}
	merged, err := c3Merge(seqs)
	if err != nil {
		return nil, fmt.Errorf("cannot linearize %s: %w", t.name, err)
	}
	return append([]*Type{t}, merged...), nil
}

func c3Merge(seqs [][]*Type) ([]*Type, error) {
	var out []*Type
	for {
		seqs = dropEmpty(seqs)
		if len(seqs) == 0 {
			return out, nil
		}
		var head *Type
		for _, seq := range seqs {
			cand := seq[0]
			if inTail(cand, seqs) {
				continue
			}
			head = cand
			break
		}
		if head == nil {
			return nil, fmt.Errorf("inconsistent MRO")
		}
		out = append(out, head)
		for i, seq := range seqs {
			if len(seq) > 0 && seq[0] == head {
				seqs[i] = seq[1:]
			}
		}
	}
}

func dropEmpty(seqs [][]*Type) [][]*Type {
	out := seqs[:0]
	for _, s := range seqs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func inTail(t *Type, seqs [][]*Type) bool {
	for _, seq := range seqs {
		for _, s := range seq[1:] {
			if s == t {
				return true
			}
		}
	}
	return false
}
