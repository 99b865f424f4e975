package dialect

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgreSQL targets PostgreSQL 13+ with the resource column typed jsonb.
type PostgreSQL struct{}

func (PostgreSQL) Name() string { return "postgres" }

func (PostgreSQL) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

func (PostgreSQL) QuoteLiteral(value string) string {
	return pq.QuoteLiteral(value)
}

func (PostgreSQL) BoolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (PostgreSQL) ExtractJSONField(expr string, segments []string) string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(expr)
	for _, seg := range segments {
		sb.WriteString(" -> ")
		sb.WriteString(pq.QuoteLiteral(seg))
	}
	sb.WriteString(")")
	return sb.String()
}

func (PostgreSQL) ExtractPrimitiveValue(expr string) string {
	return fmt.Sprintf(
		"(CASE WHEN jsonb_typeof(%s) = 'object' THEN %s ->> 'value' ELSE %s #>> '{}' END)",
		expr, expr, expr)
}

func (PostgreSQL) CanonicalJSON(expr string) string {
	// jsonb equality is already structural.
	return expr
}

func (PostgreSQL) JSONTypePredicate(expr, kind string) string {
	switch kind {
	case "string":
		return fmt.Sprintf("jsonb_typeof(%s) = 'string'", expr)
	case "integer":
		return fmt.Sprintf("(jsonb_typeof(%s) = 'number' AND (%s #>> '{}') NOT LIKE '%%.%%')", expr, expr)
	case "decimal":
		return fmt.Sprintf("jsonb_typeof(%s) = 'number'", expr)
	case "boolean":
		return fmt.Sprintf("jsonb_typeof(%s) = 'boolean'", expr)
	case "object":
		return fmt.Sprintf("jsonb_typeof(%s) = 'object'", expr)
	case "array":
		return fmt.Sprintf("jsonb_typeof(%s) = 'array'", expr)
	default:
		return "FALSE"
	}
}

func (PostgreSQL) UnnestJSONArray(arrayExpr string) Unnest {
	// Scalars expand as one-element collections; jsonb_array_elements is
	// strict, so a NULL input yields no rows.
	wrapped := fmt.Sprintf(
		"(CASE WHEN jsonb_typeof(%s) = 'array' THEN %s WHEN %s IS NULL THEN NULL ELSE jsonb_build_array(%s) END)",
		arrayExpr, arrayExpr, arrayExpr, arrayExpr)
	return Unnest{
		Join:    fmt.Sprintf("CROSS JOIN LATERAL jsonb_array_elements(%s) WITH ORDINALITY AS u(val, idx)", wrapped),
		Value:   "u.val",
		Ordinal: "u.idx",
	}
}

func (PostgreSQL) CastToDouble(expr string) string {
	return fmt.Sprintf("(%s)::double precision", expr)
}

func (PostgreSQL) CastToInteger(expr string) string {
	return fmt.Sprintf("(%s)::bigint", expr)
}

func (PostgreSQL) CastToText(expr string) string {
	return fmt.Sprintf("(%s)::text", expr)
}

func (PostgreSQL) TruncateToInt(expr string) string {
	return fmt.Sprintf("trunc(%s)", expr)
}

func (p PostgreSQL) Truthy(expr string) string {
	return fmt.Sprintf("(%s)::boolean", p.ExtractPrimitiveValue(expr))
}

func (PostgreSQL) SetOpKeyword(op SetOp) string {
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

func (PostgreSQL) StringPosition(needle, haystack string) string {
	return fmt.Sprintf("position(%s in %s)", needle, haystack)
}

func (PostgreSQL) CurrentTimestamp() string {
	return "to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM-DD\"T\"HH24:MI:SS.MS\"Z\"')"
}

func (PostgreSQL) CurrentDate() string {
	return "to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
}

func (PostgreSQL) CurrentTime() string {
	return "to_char(now() AT TIME ZONE 'UTC', 'HH24:MI:SS.MS')"
}
