package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markb/fhirsql/internal/dialect"
)

func simpleFragment(name, expr string, deps ...string) Fragment {
	return Fragment{Name: name, Expression: expr, Dependencies: deps}
}

func TestAssemble_Chain(t *testing.T) {
	frags := []Fragment{
		simpleFragment("cte_0", "SELECT id, resource AS element, 1 AS ord FROM patient"),
		simpleFragment("cte_1", "SELECT t.id, t.element, t.ord FROM cte_0 t", "cte_0"),
	}

	sql, err := Assemble(frags, dialect.SQLite{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "WITH cte_0 AS ("))
	assert.Contains(t, sql, "cte_1 AS (")
	assert.True(t, strings.HasSuffix(sql, "SELECT id, element AS value FROM cte_1 ORDER BY id, ord"))
}

func TestAssemble_Empty(t *testing.T) {
	_, err := Assemble(nil, dialect.SQLite{})
	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)
}

func TestAssemble_DuplicateName(t *testing.T) {
	frags := []Fragment{
		simpleFragment("cte_0", "SELECT 1"),
		simpleFragment("cte_0", "SELECT 2"),
	}
	_, err := Assemble(frags, dialect.SQLite{})
	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Error(), "duplicate")
}

func TestAssemble_ForwardReference(t *testing.T) {
	frags := []Fragment{
		simpleFragment("cte_0", "SELECT t.id FROM cte_1 t", "cte_1"),
		simpleFragment("cte_1", "SELECT 1"),
	}
	_, err := Assemble(frags, dialect.SQLite{})
	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Error(), "before its definition")
}

func TestAssemble_SelfReference(t *testing.T) {
	// Only recursive fragments may mention themselves.
	frags := []Fragment{
		{Name: "cte_0", Expression: "SELECT t.id FROM cte_0 t", Dependencies: []string{"cte_0"}},
	}
	_, err := Assemble(frags, dialect.SQLite{})
	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)

	frags[0].Recursive = true
	sql, err := Assemble(frags, dialect.SQLite{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sql, "WITH RECURSIVE "))
}

func TestAssemble_SubsetWrap(t *testing.T) {
	base := simpleFragment("cte_0", "SELECT id, resource AS element, 1 AS ord FROM patient")
	sub := Fragment{Name: "cte_1", SourceTable: "cte_0", Dependencies: []string{"cte_0"}}
	sub.setMeta(MetaSubsetFilter, "t.ord = (SELECT max(s.ord) FROM {src} s WHERE s.id = t.id)")

	sql, err := Assemble([]Fragment{base, sub}, dialect.SQLite{})
	require.NoError(t, err)

	assert.NotContains(t, sql, "{src}")
	assert.Contains(t, sql, "FROM cte_0 s")
	assert.Contains(t, sql, "row_number() OVER (PARTITION BY t.id ORDER BY t.ord)")
}

func TestAssemble_UnnestWrap(t *testing.T) {
	base := simpleFragment("cte_0", "SELECT id, resource AS element, 1 AS ord FROM patient")
	un := Fragment{
		Name:           "cte_1",
		Expression:     "(t.element -> 'name')",
		SourceTable:    "cte_0",
		RequiresUnnest: true,
		Dependencies:   []string{"cte_0"},
	}

	sql, err := Assemble([]Fragment{base, un}, dialect.PostgreSQL{})
	require.NoError(t, err)
	assert.Contains(t, sql, "jsonb_array_elements")
	assert.Contains(t, sql, "u.val AS element")

	sql, err = Assemble([]Fragment{base, un}, dialect.SQLite{})
	require.NoError(t, err)
	assert.Contains(t, sql, "json_each")
	assert.Contains(t, sql, "u.value AS element")
}

func TestAssemble_MissingExpression(t *testing.T) {
	_, err := Assemble([]Fragment{{Name: "cte_0"}}, dialect.SQLite{})
	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)
}
