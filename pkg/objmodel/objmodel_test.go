package objmodel

import (
	"testing"
)

func TestTypeIdentityNeverReused(t *testing.T) {
	a := MustNewType("A", nil)
	b := MustNewType("B", nil)
	if a.ID() == b.ID() {
		t.Fatalf("expected distinct type ids, got %d for both", a.ID())
	}
	if b.ID() <= a.ID() {
		t.Errorf("expected monotonically increasing ids, got a=%d b=%d", a.ID(), b.ID())
	}
}

func TestMROLinearOrder(t *testing.T) {
	base := MustNewType("Base", nil)
	mid := MustNewType("Mid", []*Type{base})
	leaf := MustNewType("Leaf", []*Type{mid})

	mro := leaf.MRO()
	want := []*Type{leaf, mid, base}
	if len(mro) != len(want) {
		t.Fatalf("MRO length mismatch, expected %d, got %d", len(want), len(mro))
	}
	for i := range want {
		if mro[i] != want[i] {
			t.Errorf("MRO[%d] = %s, expected %s", i, mro[i].Name(), want[i].Name())
		}
	}
}

func TestMRODiamond(t *testing.T) {
	// C3: D, B, C, A for the classic diamond
	a := MustNewType("A", nil)
	b := MustNewType("B", []*Type{a})
	c := MustNewType("C", []*Type{a})
	d := MustNewType("D", []*Type{b, c})

	mro := d.MRO()
	names := make([]string, len(mro))
	for i, m := range mro {
		names[i] = m.Name()
	}
	want := []string{"D", "B", "C", "A"}
	for i := range want {
		if i >= len(names) || names[i] != want[i] {
			t.Fatalf("diamond MRO mismatch, expected %v, got %v", want, names)
		}
	}
}

func TestMROInconsistentHierarchy(t *testing.T) {
	a := MustNewType("A", nil)
	b := MustNewType("B", nil)
	x := MustNewType("X", []*Type{a, b})
	y := MustNewType("Y", []*Type{b, a})
	if _, err := NewType("Z", []*Type{x, y}); err == nil {
		t.Errorf("expected linearization error for conflicting base orders")
	}
}

func TestSlotLayout(t *testing.T) {
	base := MustNewType("Base", nil, WithSlots("x"))
	derived := MustNewType("Derived", []*Type{base}, WithSlots("y"))

	if off, ok := base.SlotOffset("x"); !ok || off != 0 {
		t.Errorf("expected base slot x at offset 0, got %d (ok=%v)", off, ok)
	}
	offX, okX := derived.SlotOffset("x")
	offY, okY := derived.SlotOffset("y")
	if !okX || !okY {
		t.Fatalf("derived must see both slots, got x ok=%v y ok=%v", okX, okY)
	}
	if offX == offY {
		t.Errorf("slots x and y share offset %d", offX)
	}
	if derived.SlotLen() != 2 {
		t.Errorf("expected slot array length 2, got %d", derived.SlotLen())
	}
	if derived.HasInstanceDict() {
		t.Errorf("slotted type must not carry an instance dict")
	}
	if !derived.OwnsSlot("y") || derived.OwnsSlot("x") {
		t.Errorf("OwnsSlot must report declared slots only")
	}
}

func TestObjectSlotStorage(t *testing.T) {
	pt := MustNewType("Point", nil, WithSlots("x", "y"))
	p := NewObject(pt)

	if _, ok := p.SlotValue(0); ok {
		t.Errorf("expected unset slot before first assignment")
	}
	if err := p.SetAttr("x", 10); err != nil {
		t.Fatalf("SetAttr(x): %v", err)
	}
	off, _ := pt.SlotOffset("x")
	v, ok := p.SlotValue(off)
	if !ok || v.(int) != 10 {
		t.Errorf("expected slot x = 10, got %v (ok=%v)", v, ok)
	}
	if err := p.DelAttr("x"); err != nil {
		t.Fatalf("DelAttr(x): %v", err)
	}
	if _, ok := p.SlotValue(off); ok {
		t.Errorf("expected slot unset after DelAttr")
	}
}

func TestObjectDictStorage(t *testing.T) {
	ct := MustNewType("C", nil)
	o := NewObject(ct)

	if err := o.SetAttr("val", 42); err != nil {
		t.Fatalf("SetAttr: %v", err)
	}
	if v, ok := o.DictGet("val"); !ok || v.(int) != 42 {
		t.Errorf("expected dict val = 42, got %v (ok=%v)", v, ok)
	}
	if err := o.ReplaceDict(map[string]any{"val": 99}); err != nil {
		t.Fatalf("ReplaceDict: %v", err)
	}
	if v, _ := o.DictGet("val"); v.(int) != 99 {
		t.Errorf("expected replaced dict val = 99, got %v", v)
	}
}

func TestSetAttrThroughDataDescriptor(t *testing.T) {
	ct := MustNewType("C", nil)
	var wrote any
	ct.SetAttr("x", &Property{
		Getter: func(*Object) (any, error) { return "descr", nil },
		Setter: func(_ *Object, v any) error { wrote = v; return nil },
	})
	o := NewObject(ct)
	if err := o.SetAttr("x", 7); err != nil {
		t.Fatalf("SetAttr through descriptor: %v", err)
	}
	if wrote != 7 {
		t.Errorf("expected setter to receive 7, got %v", wrote)
	}
	if _, ok := o.DictGet("x"); ok {
		t.Errorf("descriptor write must not touch the instance dict")
	}
}

func TestSetClassCompatibleLayout(t *testing.T) {
	a := MustNewType("A", nil, WithSlots("x"))
	b := MustNewType("B", nil, WithSlots("x"))
	o := NewObject(b)
	if err := o.SetAttr("x", 30); err != nil {
		t.Fatal(err)
	}
	if err := o.SetClass(a); err != nil {
		t.Fatalf("layout-compatible SetClass failed: %v", err)
	}
	if o.Class() != a {
		t.Errorf("expected class A after reassignment")
	}
	off, _ := a.SlotOffset("x")
	if v, ok := o.SlotValue(off); !ok || v.(int) != 30 {
		t.Errorf("expected slot value preserved across class swap, got %v (ok=%v)", v, ok)
	}

	wide := MustNewType("Wide", nil, WithSlots("x", "y"))
	if err := o.SetClass(wide); err == nil {
		t.Errorf("expected incompatible-layout SetClass to fail")
	}
}

type recordingWatcher struct {
	modified []*Type
}

func (w *recordingWatcher) TypeModified(t *Type) { w.modified = append(w.modified, t) }

func TestWatcherFiresOnMutation(t *testing.T) {
	ct := MustNewType("C", nil)
	w := &recordingWatcher{}
	ct.AddWatcher(w)
	ct.AddWatcher(w) // idempotent

	ct.SetAttr("a", 1)
	if err := ct.DelAttr("a"); err != nil {
		t.Fatal(err)
	}
	ct.SetFallback(func(*Object, string) (any, error) { return nil, nil })
	if len(w.modified) != 3 {
		t.Errorf("expected 3 modification events, got %d", len(w.modified))
	}
}

func TestSetBasesRelinearizes(t *testing.T) {
	base1 := MustNewType("Base1", nil)
	base1.SetAttr("attr", "from_base1")
	base2 := MustNewType("Base2", nil)
	base2.SetAttr("attr", "from_base2")

	c := MustNewType("C", []*Type{base1})
	sub := MustNewType("Sub", []*Type{c})

	if err := c.SetBases([]*Type{base2}); err != nil {
		t.Fatalf("SetBases: %v", err)
	}
	mro := c.MRO()
	if len(mro) != 2 || mro[1] != base2 {
		t.Errorf("expected C MRO [C Base2], got %v", mro)
	}
	// Subclass MRO relinearized too.
	subMRO := sub.MRO()
	if len(subMRO) != 3 || subMRO[2] != base2 {
		t.Errorf("expected Sub MRO to end in Base2, got %v", subMRO)
	}
	// Subclass links moved.
	for _, s := range base1.Subclasses() {
		if s == c {
			t.Errorf("C still registered as subclass of Base1")
		}
	}
	found := false
	for _, s := range base2.Subclasses() {
		if s == c {
			found = true
		}
	}
	if !found {
		t.Errorf("C not registered as subclass of Base2")
	}
}
