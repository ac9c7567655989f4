package ctxt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolInternsStructurallyEqualContexts(t *testing.T) {
	p := NewPool()

	c1 := p.Intern("a", "b")
	c2 := p.Intern("a", "b")
	c3 := p.Intern("a", "c")

	assert.Same(t, c1, c2, "structurally equal element sequences must share one *Context")
	assert.NotSame(t, c1, c3)
	assert.Equal(t, 2, c1.Len())
}

func TestPoolEmptyIsDistinguished(t *testing.T) {
	p := NewPool()
	require.Equal(t, 0, p.Empty().Len())
	assert.Same(t, p.Empty(), p.Intern())
}

func TestPoolAppendTruncates(t *testing.T) {
	p := NewPool()
	base := p.Intern("site1")

	appended := p.Append(base, "site2", 2)
	require.Equal(t, 2, appended.Len())
	assert.Equal(t, []any{"site2", "site1"}, appended.Elems())

	truncated := p.Append(appended, "site3", 2)
	assert.Equal(t, []any{"site3", "site2"}, truncated.Elems(), "k-truncation keeps only the most recent k elements")
}

func TestPoolTruncate(t *testing.T) {
	p := NewPool()
	c := p.Intern("a", "b", "c")

	assert.Same(t, c, p.Truncate(c, 0), "k<=0 means unbounded")
	got := p.Truncate(c, 2)
	assert.Equal(t, []any{"a", "b"}, got.Elems())
}
