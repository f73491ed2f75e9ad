package icache

import (
	"attrcache/pkg/objmodel"
)

// ResolutionKind classifies how an attribute read is serviced once the
// type-level walk has run. The ordering logic lives in resolve; execution
// of each kind lives on the engine.
type ResolutionKind uint8

const (
	KindAbsent ResolutionKind = iota
	KindInstanceSlot
	KindInstanceDict
	KindDataDescriptor
	KindNonDataDescriptor
	KindClassAttribute
)

func (k ResolutionKind) String() string {
	switch k {
	case KindInstanceSlot:
		return "instance-slot"
	case KindInstanceDict:
		return "instance-dict"
	case KindDataDescriptor:
		return "data-descriptor"
	case KindNonDataDescriptor:
		return "non-data-descriptor"
	case KindClassAttribute:
		return "class-attribute"
	default:
		return "absent"
	}
}

// Resolution is the resolved accessor for (type, name). Immutable once
// built; cache entries embed it by value.
type Resolution struct {
	Kind       ResolutionKind
	SlotOffset int                 // KindInstanceSlot
	Descr      objmodel.Descriptor // KindDataDescriptor, KindNonDataDescriptor
	ClassValue any                 // KindClassAttribute
}

// resolve walks the MRO and classifies the access, honoring descriptor
// precedence:
//
//  1. the first MRO entry for the name decides the class-level candidate;
//     a slot declared by an ancestor counts as a data-descriptor-level hit,
//  2. a data descriptor always wins over instance storage,
//  3. anything else yields to instance storage at execution time,
//  4. nothing found anywhere resolves to the instance dict if the type has
//     one, else Absent.
//
// The ordering is a correctness requirement, not an optimisation:
// descriptors come and go between calls and instance storage is mutable
// data, so the per-instance checks are deferred to execution.
func resolve(t *objmodel.Type, name string) Resolution {
	for _, anc := range t.MRO() {
		if v, ok := anc.DictGet(name); ok {
			if objmodel.IsDataDescriptor(v) {
				return Resolution{Kind: KindDataDescriptor, Descr: v.(objmodel.Descriptor)}
			}
			if d, ok := v.(objmodel.Descriptor); ok {
				return Resolution{Kind: KindNonDataDescriptor, Descr: d}
			}
			return Resolution{Kind: KindClassAttribute, ClassValue: v}
		}
		if anc.OwnsSlot(name) {
			if off, ok := t.SlotOffset(name); ok {
				return Resolution{Kind: KindInstanceSlot, SlotOffset: off}
			}
		}
	}
	if t.HasInstanceDict() {
		return Resolution{Kind: KindInstanceDict}
	}
	return Resolution{Kind: KindAbsent}
}
