package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_NextName(t *testing.T) {
	ctx := NewContext("Patient")
	assert.Equal(t, "cte_0", ctx.NextName())
	assert.Equal(t, "cte_1", ctx.NextName())
	assert.Equal(t, "cte_2", ctx.NextName())

	// Each context numbers independently.
	other := NewContext("Patient")
	assert.Equal(t, "cte_0", other.NextName())
}

func TestContext_ScopeLookup(t *testing.T) {
	ctx := NewContext("Patient")
	assert.False(t, ctx.InScope())

	guard := ctx.PushScope(map[string]binding{
		"this": {expr: "t.element", typeName: "HumanName", kind: kindJSON},
	})
	assert.True(t, ctx.InScope())

	b, ok := ctx.LookupVar("this")
	require.True(t, ok)
	assert.Equal(t, "t.element", b.expr)

	_, ok = ctx.LookupVar("total")
	assert.False(t, ok)

	guard.Release()
	assert.False(t, ctx.InScope())
}

func TestContext_NestedScopesShadow(t *testing.T) {
	ctx := NewContext("Patient")

	outer := ctx.PushScope(map[string]binding{
		"this": {expr: "outer.element"},
	})
	inner := ctx.PushScope(map[string]binding{
		"this": {expr: "inner.element"},
	})

	b, ok := ctx.LookupVar("this")
	require.True(t, ok)
	assert.Equal(t, "inner.element", b.expr)

	inner.Release()
	b, ok = ctx.LookupVar("this")
	require.True(t, ok)
	assert.Equal(t, "outer.element", b.expr)

	outer.Release()
	_, ok = ctx.LookupVar("this")
	assert.False(t, ok)
}

func TestContext_InnerScopeSeesOuterBindings(t *testing.T) {
	ctx := NewContext("Patient")

	outer := ctx.PushScope(map[string]binding{
		"total": {expr: "a.element"},
	})
	defer outer.Release()
	inner := ctx.PushScope(map[string]binding{
		"this": {expr: "t.element"},
	})
	defer inner.Release()

	b, ok := ctx.LookupVar("total")
	require.True(t, ok)
	assert.Equal(t, "a.element", b.expr)
}

func TestScopeGuard_ReleaseTrimsNestedScopes(t *testing.T) {
	ctx := NewContext("Patient")

	outer := ctx.PushScope(map[string]binding{"this": {expr: "a.element"}})
	ctx.PushScope(map[string]binding{"this": {expr: "b.element"}})

	// Releasing the outer guard discards the unreleased inner scope too.
	outer.Release()
	assert.False(t, ctx.InScope())
	_, ok := ctx.LookupVar("this")
	assert.False(t, ok)
}

func TestScopeGuard_ReleaseIsIdempotent(t *testing.T) {
	ctx := NewContext("Patient")
	guard := ctx.PushScope(map[string]binding{"this": {expr: "x"}})
	guard.Release()
	guard.Release()
	assert.False(t, ctx.InScope())
}
