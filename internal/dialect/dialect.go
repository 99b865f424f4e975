// Package dialect abstracts the syntax differences between the supported SQL
// engines. Dialects are pure syntax: they know how a target engine spells
// JSON extraction, array unnesting, casts, and set operations, and nothing
// about FHIRPath semantics. Any behavioral (not merely syntactic) divergence
// between implementations is a defect.
package dialect

import "fmt"

// SetOp identifies a collection set operation.
type SetOp int

const (
	SetUnion SetOp = iota
	SetUnionAll
	SetIntersect
	SetExcept
)

// Unnest describes the pieces of a lateral array expansion: the FROM-clause
// join fragment plus the expressions that read the expanded value and its
// 1-based ordinal. The join fragment references the expansion under the
// alias "u".
type Unnest struct {
	Join    string
	Value   string
	Ordinal string
}

// Dialect is the capability surface the translator and assembler compile
// against.
type Dialect interface {
	// Name returns the dialect's canonical name.
	Name() string

	// QuoteIdentifier quotes an SQL identifier.
	QuoteIdentifier(name string) string
	// QuoteLiteral quotes a string literal.
	QuoteLiteral(value string) string
	// BoolLiteral renders a boolean literal.
	BoolLiteral(v bool) string

	// ExtractJSONField navigates object fields, returning a JSON-typed
	// expression. Segments are unquoted field names.
	ExtractJSONField(expr string, segments []string) string
	// ExtractPrimitiveValue coalesces a FHIR primitive to its scalar text:
	// prefer the bare scalar, else the extended object's value field.
	ExtractPrimitiveValue(expr string) string
	// CanonicalJSON renders an expression in a form with structural
	// equality, for set operations and distinct.
	CanonicalJSON(expr string) string
	// JSONTypePredicate tests a JSON value's kind. Kind is one of
	// "string", "integer", "decimal", "boolean", "object", "array".
	JSONTypePredicate(expr, kind string) string

	// UnnestJSONArray laterally expands a JSON array expression. Scalar
	// inputs expand as one-element collections; null inputs expand to no
	// rows.
	UnnestJSONArray(arrayExpr string) Unnest

	// CastToDouble casts an expression to a double-precision number.
	CastToDouble(expr string) string
	// CastToInteger casts an expression to an integer.
	CastToInteger(expr string) string
	// CastToText casts an expression to text.
	CastToText(expr string) string
	// TruncateToInt truncates a number toward zero.
	TruncateToInt(expr string) string

	// Truthy converts a JSON-sourced value to an SQL boolean condition.
	Truthy(expr string) string

	// SetOpKeyword returns the SQL keyword realizing a set operation over
	// two row streams.
	SetOpKeyword(op SetOp) string

	// StringPosition returns an expression yielding the 1-based position of
	// needle within haystack, 0 when absent.
	StringPosition(needle, haystack string) string

	// CurrentTimestamp, CurrentDate, and CurrentTime return expressions
	// producing the current moment as ISO 8601 text in UTC.
	CurrentTimestamp() string
	CurrentDate() string
	CurrentTime() string
}

// Parse resolves a dialect by name.
func Parse(name string) (Dialect, error) {
	switch name {
	case "postgres", "postgresql", "pg":
		return PostgreSQL{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q (supported: postgres, sqlite)", name)
	}
}
