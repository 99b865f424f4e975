package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"postgres", "postgres", false},
		{"postgresql", "postgres", false},
		{"pg", "postgres", false},
		{"sqlite", "sqlite", false},
		{"sqlite3", "sqlite", false},
		{"mysql", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestQuoting(t *testing.T) {
	pg := PostgreSQL{}
	lite := SQLite{}

	assert.Equal(t, `"patient"`, pg.QuoteIdentifier("patient"))
	assert.Equal(t, `"patient"`, lite.QuoteIdentifier("patient"))
	assert.Equal(t, `"we""ird"`, lite.QuoteIdentifier(`we"ird`))

	assert.Equal(t, "'it''s'", lite.QuoteLiteral("it's"))
	assert.Contains(t, pg.QuoteLiteral("it's"), "it''s")
}

func TestBoolLiteral(t *testing.T) {
	assert.Equal(t, "TRUE", PostgreSQL{}.BoolLiteral(true))
	assert.Equal(t, "FALSE", PostgreSQL{}.BoolLiteral(false))
	assert.Equal(t, "1", SQLite{}.BoolLiteral(true))
	assert.Equal(t, "0", SQLite{}.BoolLiteral(false))
}

func TestExtractJSONField(t *testing.T) {
	pg := PostgreSQL{}.ExtractJSONField("t.element", []string{"name", "family"})
	assert.Contains(t, pg, "-> 'name'")
	assert.Contains(t, pg, "-> 'family'")

	lite := SQLite{}.ExtractJSONField("t.element", []string{"name", "family"})
	assert.Contains(t, lite, "json_extract")
	assert.Contains(t, lite, "$.name.family")
}

func TestUnnestJSONArray(t *testing.T) {
	un := PostgreSQL{}.UnnestJSONArray("x")
	assert.Contains(t, un.Join, "jsonb_array_elements")
	assert.Contains(t, un.Join, "WITH ORDINALITY")
	assert.Equal(t, "u.val", un.Value)
	assert.Equal(t, "u.idx", un.Ordinal)

	un = SQLite{}.UnnestJSONArray("x")
	assert.Contains(t, un.Join, "json_each")
	assert.Equal(t, "u.value", un.Value)
	assert.Equal(t, "(u.key + 1)", un.Ordinal)
}

func TestUnnestWrapsScalars(t *testing.T) {
	// Non-array inputs must expand as one-element collections.
	un := PostgreSQL{}.UnnestJSONArray("x")
	assert.Contains(t, un.Join, "jsonb_build_array")

	un = SQLite{}.UnnestJSONArray("x")
	assert.Contains(t, un.Join, "json_array")
}

func TestJSONTypePredicate(t *testing.T) {
	pg := PostgreSQL{}
	assert.Contains(t, pg.JSONTypePredicate("v", "boolean"), "jsonb_typeof")
	assert.Contains(t, pg.JSONTypePredicate("v", "integer"), "NOT LIKE")

	lite := SQLite{}
	assert.Contains(t, lite.JSONTypePredicate("v", "string"), "typeof")
	assert.Contains(t, lite.JSONTypePredicate("v", "object"), "json_type")
}

func TestSetOpKeyword(t *testing.T) {
	for _, d := range []Dialect{PostgreSQL{}, SQLite{}} {
		assert.Equal(t, "UNION", d.SetOpKeyword(SetUnion))
		assert.Equal(t, "UNION ALL", d.SetOpKeyword(SetUnionAll))
		assert.Equal(t, "INTERSECT", d.SetOpKeyword(SetIntersect))
		assert.Equal(t, "EXCEPT", d.SetOpKeyword(SetExcept))
	}
}

func TestStringPosition(t *testing.T) {
	assert.Equal(t, "position('a' in v)", PostgreSQL{}.StringPosition("'a'", "v"))
	assert.Equal(t, "instr(v, 'a')", SQLite{}.StringPosition("'a'", "v"))
}
