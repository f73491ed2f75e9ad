package objmodel

import (
	"fmt"
	"sync/atomic"
)

// Object is a host instance: a class pointer, a fixed slot array sized by
// the class's slot layout, and (for dict-carrying types) an instance dict.
//
// Readers never lock. The class pointer is atomic because the class may be
// reassigned at runtime; the dict is an atomically published copy-on-write
// map; each slot cell is an atomic pointer so an in-progress write is never
// observed half-done. Value-level races (two writers to the same attribute)
// resolve last-write-wins, which is all the host promises.
type Object struct {
	class atomic.Pointer[Type]
	slots []atomic.Pointer[any]
	dict  atomic.Pointer[map[string]any]
}

// NewObject allocates an instance of t with empty attribute storage.
func NewObject(t *Type) *Object {
	o := &Object{}
	o.class.Store(t)
	o.slots = make([]atomic.Pointer[any], t.SlotLen())
	if t.HasInstanceDict() {
		m := map[string]any{}
		o.dict.Store(&m)
	}
	return o
}

// Class returns the object's current type.
func (o *Object) Class() *Type { return o.class.Load() }

// SetClass reassigns the object's type. The new type must have a
// layout-compatible slot array.
func (o *Object) SetClass(t *Type) error {
	cur := o.class.Load()
	if t.SlotLen() != cur.SlotLen() || t.HasInstanceDict() != cur.HasInstanceDict() {
		return fmt.Errorf("cannot assign class %s to instance of %s: incompatible layout", t.Name(), cur.Name())
	}
	o.class.Store(t)
	return nil
}

// SlotValue reads the slot at offset off. ok is false for an unset slot or
// an offset outside the layout.
func (o *Object) SlotValue(off int) (any, bool) {
	if off < 0 || off >= len(o.slots) {
		return nil, false
	}
	p := o.slots[off].Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// DictGet reads an instance-dict entry.
func (o *Object) DictGet(name string) (any, bool) {
	m := o.dict.Load()
	if m == nil {
		return nil, false
	}
	v, ok := (*m)[name]
	return v, ok
}

// SetAttr writes an instance attribute: into the slot if the class layout
// declares one for name, otherwise into the instance dict. A data
// descriptor on the class intercepts the write.
func (o *Object) SetAttr(name string, v any) error {
	t := o.Class()
	for _, anc := range t.MRO() {
		if entry, ok := anc.DictGet(name); ok {
			if dd, isData := entry.(DataDescriptor); isData {
				return dd.Set(o, v)
			}
			break
		}
	}
	if off, ok := t.SlotOffset(name); ok {
		p := new(any)
		*p = v
		o.slots[off].Store(p)
		return nil
	}
	return o.dictSet(name, v)
}

// DelAttr removes an instance attribute (unsets slot or deletes dict key).
func (o *Object) DelAttr(name string) error {
	t := o.Class()
	if off, ok := t.SlotOffset(name); ok {
		if o.slots[off].Load() == nil {
			return fmt.Errorf("%s object has no attribute %q", t.Name(), name)
		}
		o.slots[off].Store(nil)
		return nil
	}
	for {
		old := o.dict.Load()
		if old == nil {
			return fmt.Errorf("%s object has no attribute %q", t.Name(), name)
		}
		if _, ok := (*old)[name]; !ok {
			return fmt.Errorf("%s object has no attribute %q", t.Name(), name)
		}
		next := make(map[string]any, len(*old))
		for k, v := range *old {
			if k != name {
				next[k] = v
			}
		}
		if o.dict.CompareAndSwap(old, &next) {
			return nil
		}
	}
}

// ReplaceDict swaps the whole instance dict, the __dict__ reassignment
// analogue.
func (o *Object) ReplaceDict(m map[string]any) error {
	if o.dict.Load() == nil {
		return fmt.Errorf("%s object has no instance dict", o.Class().Name())
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	o.dict.Store(&cp)
	return nil
}

func (o *Object) dictSet(name string, v any) error {
	for {
		old := o.dict.Load()
		if old == nil {
			return fmt.Errorf("%s object has no attribute storage for %q", o.Class().Name(), name)
		}
		next := make(map[string]any, len(*old)+1)
		for k, val := range *old {
			next[k] = val
		}
		next[name] = v
		if o.dict.CompareAndSwap(old, &next) {
			return nil
		}
	}
}
