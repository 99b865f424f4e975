package dialect

import (
	"fmt"
	"strings"
)

// SQLite targets SQLite 3.38+ (JSON functions built in) with the resource
// column holding JSON text. Scalar values extracted from JSON arrive as
// native SQLite values, so the JSON predicates guard with json_valid.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLite) QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func (SQLite) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (SQLite) ExtractJSONField(expr string, segments []string) string {
	path := "$"
	for _, seg := range segments {
		path += "." + seg
	}
	return fmt.Sprintf("(CASE WHEN json_valid(%s) THEN json_extract(%s, '%s') END)",
		expr, expr, strings.ReplaceAll(path, "'", "''"))
}

func (SQLite) ExtractPrimitiveValue(expr string) string {
	return fmt.Sprintf(
		"(CASE WHEN json_valid(%s) AND json_type(%s) = 'object' THEN json_extract(%s, '$.value') ELSE %s END)",
		expr, expr, expr, expr)
}

func (SQLite) CanonicalJSON(expr string) string {
	return fmt.Sprintf(
		"(CASE WHEN json_valid(%s) AND json_type(%s) IN ('object', 'array') THEN json(%s) ELSE %s END)",
		expr, expr, expr, expr)
}

func (SQLite) JSONTypePredicate(expr, kind string) string {
	switch kind {
	case "string":
		return fmt.Sprintf("(typeof(%s) = 'text' AND NOT (json_valid(%s) AND json_type(%s) IN ('object', 'array')))",
			expr, expr, expr)
	case "integer":
		return fmt.Sprintf("typeof(%s) = 'integer'", expr)
	case "decimal":
		return fmt.Sprintf("typeof(%s) IN ('integer', 'real')", expr)
	case "boolean":
		// JSON booleans extract to 0/1 integers.
		return fmt.Sprintf("(typeof(%s) = 'integer' AND %s IN (0, 1))", expr, expr)
	case "object":
		return fmt.Sprintf("(json_valid(%s) AND json_type(%s) = 'object')", expr, expr)
	case "array":
		return fmt.Sprintf("(json_valid(%s) AND json_type(%s) = 'array')", expr, expr)
	default:
		return "0"
	}
}

func (SQLite) UnnestJSONArray(arrayExpr string) Unnest {
	// Scalars expand as one-element collections; json_each over NULL yields
	// no rows.
	wrapped := fmt.Sprintf(
		"(CASE WHEN %s IS NULL THEN NULL"+
			" WHEN json_valid(%s) AND json_type(%s) = 'array' THEN %s"+
			" WHEN json_valid(%s) AND json_type(%s) = 'object' THEN json_array(json(%s))"+
			" ELSE json_array(%s) END)",
		arrayExpr, arrayExpr, arrayExpr, arrayExpr, arrayExpr, arrayExpr, arrayExpr, arrayExpr)
	return Unnest{
		Join:    fmt.Sprintf("CROSS JOIN json_each(%s) AS u", wrapped),
		Value:   "u.value",
		Ordinal: "(u.key + 1)",
	}
}

func (SQLite) CastToDouble(expr string) string {
	return fmt.Sprintf("CAST(%s AS REAL)", expr)
}

func (SQLite) CastToInteger(expr string) string {
	return fmt.Sprintf("CAST(%s AS INTEGER)", expr)
}

func (SQLite) CastToText(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (SQLite) TruncateToInt(expr string) string {
	return fmt.Sprintf("CAST(%s AS INTEGER)", expr)
}

func (s SQLite) Truthy(expr string) string {
	prim := s.ExtractPrimitiveValue(expr)
	return fmt.Sprintf("(%s IN (1, 'true'))", prim)
}

func (SQLite) SetOpKeyword(op SetOp) string {
	switch op {
	case SetUnionAll:
		return "UNION ALL"
	case SetIntersect:
		return "INTERSECT"
	case SetExcept:
		return "EXCEPT"
	default:
		return "UNION"
	}
}

func (SQLite) StringPosition(needle, haystack string) string {
	return fmt.Sprintf("instr(%s, %s)", haystack, needle)
}

func (SQLite) CurrentTimestamp() string {
	return "(strftime('%Y-%m-%dT%H:%M:%f', 'now') || 'Z')"
}

func (SQLite) CurrentDate() string {
	return "date('now')"
}

func (SQLite) CurrentTime() string {
	return "strftime('%H:%M:%f', 'now')"
}
