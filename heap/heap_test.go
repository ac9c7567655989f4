package heap

import (
	"go/constant"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"

	"github.com/stretchr/testify/assert"
)

// fakeAlloc is a minimal ssa.Value stand-in for allocation sites in tests
// that do not need a full SSA-built program. *ssa.Alloc itself requires a
// built function; these unit tests only exercise Model's identity and
// type-canonicalization logic, so a trivial Value is enough.
type fakeAlloc struct {
	ssa.Value
	name string
	typ  types.Type
}

func (f *fakeAlloc) Type() types.Type { return f.typ }
func (f *fakeAlloc) String() string   { return f.name }

func TestGetObjDistinctSitesDistinctObjects(t *testing.T) {
	m := NewModel()
	s1 := &fakeAlloc{name: "s1", typ: types.Typ[types.Int]}
	s2 := &fakeAlloc{name: "s2", typ: types.Typ[types.Int]}

	o1 := m.GetObj(s1)
	o2 := m.GetObj(s2)
	o1Again := m.GetObj(s1)

	assert.NotEqual(t, o1, o2)
	assert.Equal(t, o1, o1Again)
	assert.Equal(t, types.Typ[types.Int], m.TypeOf(o1))
}

func TestGetObjContextDistinguishesHeapContext(t *testing.T) {
	m := NewModel()
	s := &fakeAlloc{name: "s", typ: types.Typ[types.String]}

	insensitive := m.GetObjContext(s, nil)
	ctxA := m.GetObjContext(s, "ctxA")
	ctxB := m.GetObjContext(s, "ctxB")
	ctxAAgain := m.GetObjContext(s, "ctxA")

	assert.NotEqual(t, insensitive, ctxA)
	assert.NotEqual(t, ctxA, ctxB)
	assert.Equal(t, ctxA, ctxAAgain)
}

func TestMergeStringConstants(t *testing.T) {
	m := NewModel()
	m.MergeStringConstants = true

	c1 := ssa.NewConst(constant.MakeString("hello"), types.Typ[types.String])
	c2 := ssa.NewConst(constant.MakeString("hello"), types.Typ[types.String])
	c3 := ssa.NewConst(constant.MakeString("world"), types.Typ[types.String])

	assert.Equal(t, m.GetObj(c1), m.GetObj(c2), "equal string literals must merge to one object")
	assert.NotEqual(t, m.GetObj(c1), m.GetObj(c3))
}

func TestNewSyntheticIsIdempotentByTag(t *testing.T) {
	m := NewModel()

	o1 := m.NewSynthetic("reflect.Value", types.Typ[types.UnsafePointer])
	o2 := m.NewSynthetic("reflect.Value", types.Typ[types.UnsafePointer])
	o3 := m.NewSynthetic("taint.source", types.Typ[types.String])

	assert.Equal(t, o1, o2, "the same tag must resolve to the same synthetic object")
	assert.NotEqual(t, o1, o3)
	assert.Equal(t, types.Typ[types.UnsafePointer], m.TypeOf(o1))
}

func TestSyntheticObjectsDoNotCollideWithRealSites(t *testing.T) {
	m := NewModel()
	real := m.GetObj(&fakeAlloc{name: "s", typ: types.Typ[types.Int]})
	syn := m.NewSynthetic("s", types.Typ[types.Int])

	assert.NotEqual(t, real, syn, "a synthetic tag must not alias a real site with the same string form")
}

func TestMergeAllConstants(t *testing.T) {
	m := NewModel()
	m.MergeStringConstants = true
	m.MergeAllConstants = true

	c1 := ssa.NewConst(constant.MakeString("a"), types.Typ[types.String])
	c2 := ssa.NewConst(constant.MakeString("b"), types.Typ[types.String])

	assert.Equal(t, m.GetObj(c1), m.GetObj(c2), "merge-all-constants collapses every literal to one object")
}
