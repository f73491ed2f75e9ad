package objmodel

import "fmt"

func errReadOnly(obj *Object, what string) error {
	return fmt.Errorf("cannot set read-only %s on %s instance", what, obj.Class().Name())
}

// Descriptor is an attribute-resolution hook stored in a class dict.
// A descriptor that only implements Descriptor is non-data: instance
// storage shadows it.
type Descriptor interface {
	Get(obj *Object, owner *Type) (any, error)
}

// DataDescriptor additionally defines write behavior and therefore takes
// precedence over instance storage.
type DataDescriptor interface {
	Descriptor
	Set(obj *Object, v any) error
}

// Property is the data-descriptor convenience type (the property
// analogue). A nil Setter still counts as data: the write hook exists and
// rejects assignment.
type Property struct {
	Getter func(obj *Object) (any, error)
	Setter func(obj *Object, v any) error
}

func (p *Property) Get(obj *Object, _ *Type) (any, error) {
	return p.Getter(obj)
}

func (p *Property) Set(obj *Object, v any) error {
	if p.Setter == nil {
		return errReadOnly(obj, "property")
	}
	return p.Setter(obj, v)
}

// Computed is the non-data-descriptor convenience type: a read hook with no
// write behavior.
type Computed struct {
	Getter func(obj *Object) (any, error)
}

func (c *Computed) Get(obj *Object, _ *Type) (any, error) {
	return c.Getter(obj)
}

// IsDataDescriptor reports whether a class dict value is a data descriptor.
func IsDataDescriptor(v any) bool {
	_, ok := v.(DataDescriptor)
	return ok
}

// IsDescriptor reports whether a class dict value is any descriptor.
func IsDescriptor(v any) bool {
	_, ok := v.(Descriptor)
	return ok
}
