package icache

import "fmt"

// AttributeError is the only user-visible failure of the subsystem: the
// attribute was absent after full resolution and no fallback hook produced
// a value. Guard misses, evictions, and tag invalidation are internal
// control flow and never surface as errors.
type AttributeError struct {
	TypeName string
	Attr     string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("%s object has no attribute %q", e.TypeName, e.Attr)
}
