package sqlgen

import (
	"fmt"

	"github.com/markb/fhirsql/internal/fhirpath"
	"github.com/markb/fhirsql/internal/typemeta"
)

// scalarValue is a row-level SQL expression with its SQL kind and, when
// known, the FHIR type it carries. array marks a JSON array of typeName
// elements; the operator layer gives those membership semantics.
type scalarValue struct {
	sql      string
	kind     valueKind
	typeName string
	array    bool
}

// scalar translates an expression in scalar mode: a single SQL expression
// evaluated per row, with lambda variables resolved from the active scope.
// Expressions that require their own row pipeline are rejected.
func (t *Translator) scalar(e fhirpath.Expr) (scalarValue, error) {
	sv, ok, err := t.tryScalar(e)
	if err != nil {
		return scalarValue{}, err
	}
	if !ok {
		return scalarValue{}, newTranslationError(ErrUnsupportedExpression, e.Source(),
			"expression cannot be evaluated as a row-level value")
	}
	return sv, nil
}

// tryScalar attempts scalar translation. ok=false means the expression is
// collection-valued and needs pipeline translation; err is reserved for
// conditions fatal in either mode.
func (t *Translator) tryScalar(e fhirpath.Expr) (scalarValue, bool, error) {
	switch n := e.(type) {
	case *fhirpath.Literal:
		sv, err := t.scalarLiteral(n)
		if err != nil {
			return scalarValue{}, false, err
		}
		return sv, true, nil

	case *fhirpath.ParenExpr:
		sv, ok, err := t.tryScalar(n.Expr)
		if !ok || err != nil {
			return scalarValue{}, ok, err
		}
		sv.sql = "(" + sv.sql + ")"
		return sv, true, nil

	case *fhirpath.UnaryOp:
		sv, ok, err := t.tryScalar(n.Operand)
		if !ok || err != nil {
			return scalarValue{}, ok, err
		}
		if n.Op == "-" {
			return scalarValue{sql: "-(" + t.asNumber(sv) + ")", kind: kindNumber, typeName: sv.typeName}, true, nil
		}
		return sv, true, nil

	case *fhirpath.VarRef:
		sv, err := t.scalarVar(n)
		if err != nil {
			return scalarValue{}, false, err
		}
		return sv, true, nil

	case *fhirpath.Identifier:
		return t.scalarPath(e)

	case *fhirpath.BinaryOp:
		if n.Op == "." {
			if call, isCall := n.Right.(*fhirpath.FunctionCall); isCall {
				recv, ok, err := t.tryScalar(n.Left)
				if !ok || err != nil {
					return scalarValue{}, ok, err
				}
				if recv.array {
					// Function calls over array members need the pipeline.
					return scalarValue{}, false, nil
				}
				return t.scalarCall(call, &recv)
			}
			return t.scalarPath(e)
		}
		ls, lok, err := t.tryScalar(n.Left)
		if err != nil {
			return scalarValue{}, false, err
		}
		rs, rok, err := t.tryScalar(n.Right)
		if err != nil {
			return scalarValue{}, false, err
		}
		if !lok || !rok {
			return scalarValue{}, false, nil
		}
		sv, err := t.combineScalars(n.Op, ls, rs, n.Left, n.Right)
		if err != nil {
			return scalarValue{}, false, err
		}
		return sv, true, nil

	case *fhirpath.FunctionCall:
		return t.scalarCall(n, nil)

	case *fhirpath.TypeOp:
		sv, ok, err := t.tryScalar(n.Operand)
		if !ok || err != nil {
			return scalarValue{}, ok, err
		}
		if sv.array {
			return scalarValue{}, false, nil
		}
		return t.scalarTypeOp(n, sv)

	default:
		// Indexing and anything else collection-shaped.
		return scalarValue{}, false, nil
	}
}

// scalarLiteral renders a literal as a SQL constant.
func (t *Translator) scalarLiteral(n *fhirpath.Literal) (scalarValue, error) {
	switch n.Kind {
	case fhirpath.LitEmpty:
		return scalarValue{sql: "NULL", kind: kindJSON}, nil
	case fhirpath.LitBoolean:
		return scalarValue{sql: t.d.BoolLiteral(n.Value == "true"), kind: kindBool, typeName: "boolean"}, nil
	case fhirpath.LitString:
		return scalarValue{sql: t.d.QuoteLiteral(n.Value), kind: kindText, typeName: "string"}, nil
	case fhirpath.LitInteger:
		return scalarValue{sql: n.Value, kind: kindNumber, typeName: "integer"}, nil
	case fhirpath.LitDecimal:
		return scalarValue{sql: n.Value, kind: kindNumber, typeName: "decimal"}, nil
	case fhirpath.LitQuantity:
		// The unit has no SQL representation; the magnitude participates
		// in arithmetic and comparison.
		return scalarValue{sql: n.Value, kind: kindNumber, typeName: "decimal"}, nil
	case fhirpath.LitDate:
		return scalarValue{sql: t.d.QuoteLiteral(n.Value), kind: kindText, typeName: "date"}, nil
	case fhirpath.LitDateTime:
		return scalarValue{sql: t.d.QuoteLiteral(n.Value), kind: kindText, typeName: "dateTime"}, nil
	case fhirpath.LitTime:
		return scalarValue{sql: t.d.QuoteLiteral(n.Value), kind: kindText, typeName: "time"}, nil
	default:
		return scalarValue{}, newTranslationError(ErrInvalidLiteral, n.Source(),
			"unrepresentable literal %q", n.Text)
	}
}

// scalarVar resolves a lambda variable from the active scope stack.
func (t *Translator) scalarVar(n *fhirpath.VarRef) (scalarValue, error) {
	if !t.ctx.InScope() {
		return scalarValue{}, newTranslationError(ErrUnboundVariable, n.Source(),
			"variable $%s used outside any lambda scope", n.Name)
	}
	b, ok := t.ctx.LookupVar(n.Name)
	if !ok {
		return scalarValue{}, newTranslationError(ErrUnboundVariable, n.Source(),
			"variable $%s is not bound in this scope", n.Name)
	}
	return scalarValue{sql: b.expr, kind: b.kind, typeName: b.typeName}, nil
}

// scalarPath resolves a pure member path relative to $this. Only available
// inside a lambda scope; choice elements and arrays mid-path force pipeline
// mode, while a trailing array member stays row-level as its JSON array.
func (t *Translator) scalarPath(e fhirpath.Expr) (scalarValue, bool, error) {
	segs, ok := pathSegments(e)
	if !ok || !t.ctx.InScope() {
		return scalarValue{}, false, nil
	}
	this, bound := t.ctx.LookupVar("this")
	if !bound {
		return scalarValue{}, false, nil
	}

	cur := this.typeName
	fields := make([]string, 0, len(segs))
	for i, seg := range segs {
		info, known := t.reg.Element(cur, seg)
		if !known {
			if cur != "" {
				t.diag("unknown element %s.%s, treated as complex", cur, seg)
			}
			fields = append(fields, seg)
			cur = ""
			continue
		}
		if info.IsChoice() {
			return scalarValue{}, false, nil
		}
		if info.Array {
			// A trailing array member stays row-level as its JSON array;
			// arrays mid-path need real unnesting.
			if i != len(segs)-1 {
				return scalarValue{}, false, nil
			}
			return scalarValue{
				sql:      t.d.ExtractJSONField(this.expr, append(fields, seg)),
				kind:     kindJSON,
				typeName: info.Type,
				array:    true,
			}, true, nil
		}
		fields = append(fields, seg)
		cur = info.Type
	}

	return scalarValue{
		sql:      t.d.ExtractJSONField(this.expr, fields),
		kind:     kindJSON,
		typeName: cur,
	}, true, nil
}

// pathSegments flattens a chain of '.' operators over plain identifiers,
// optionally rooted at $this.
func pathSegments(e fhirpath.Expr) ([]string, bool) {
	switch n := e.(type) {
	case *fhirpath.Identifier:
		return []string{n.Name}, true
	case *fhirpath.VarRef:
		if n.Name == "this" {
			return nil, true
		}
		return nil, false
	case *fhirpath.ParenExpr:
		return pathSegments(n.Expr)
	case *fhirpath.BinaryOp:
		if n.Op != "." {
			return nil, false
		}
		left, ok := pathSegments(n.Left)
		if !ok {
			return nil, false
		}
		right, ok := pathSegments(n.Right)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	default:
		return nil, false
	}
}

// scalarTypeOp applies is/as to a scalar operand.
func (t *Translator) scalarTypeOp(n *fhirpath.TypeOp, sv scalarValue) (scalarValue, bool, error) {
	desc, known := t.reg.Lookup(n.TypeName)
	if !known {
		t.diag("unknown type %s, treated as complex", n.TypeName)
		desc = typemeta.Descriptor{Name: n.TypeName, Family: typemeta.FamilyComplex}
	}
	pred, err := t.typePredicate(sv.sql, desc, known)
	if err != nil {
		return scalarValue{}, false, newTranslationError(ErrUnsupportedExpression, n.Source(), "%v", err)
	}
	if n.Op == "is" {
		return scalarValue{sql: pred, kind: kindBool, typeName: "boolean"}, true, nil
	}
	return scalarValue{
		sql:      fmt.Sprintf("CASE WHEN %s THEN %s END", pred, sv.sql),
		kind:     sv.kind,
		typeName: desc.Name,
	}, true, nil
}

// asText coerces a scalar value to SQL text.
func (t *Translator) asText(sv scalarValue) string {
	switch sv.kind {
	case kindText:
		return sv.sql
	case kindJSON:
		return t.d.ExtractPrimitiveValue(sv.sql)
	default:
		return t.d.CastToText(sv.sql)
	}
}

// asNumber coerces a scalar value to a SQL double.
func (t *Translator) asNumber(sv scalarValue) string {
	switch sv.kind {
	case kindNumber:
		return sv.sql
	case kindJSON:
		return t.d.CastToDouble(t.d.ExtractPrimitiveValue(sv.sql))
	default:
		return t.d.CastToDouble(sv.sql)
	}
}

// asBool coerces a scalar value to a SQL boolean predicate.
func (t *Translator) asBool(sv scalarValue) string {
	switch sv.kind {
	case kindBool:
		return sv.sql
	case kindNumber:
		return fmt.Sprintf("(%s <> 0)", sv.sql)
	case kindText:
		return fmt.Sprintf("(%s = 'true')", sv.sql)
	default:
		return t.d.Truthy(sv.sql)
	}
}

// staticStringOf reports the literal string content of an expression when
// it is statically known, unwrapping parentheses.
func staticStringOf(e fhirpath.Expr) (string, bool) {
	switch n := e.(type) {
	case *fhirpath.Literal:
		if n.Kind == fhirpath.LitString {
			return n.Value, true
		}
	case *fhirpath.ParenExpr:
		return staticStringOf(n.Expr)
	}
	return "", false
}

// temporalLiteralOf unwraps a temporal literal operand, if any.
func temporalLiteralOf(e fhirpath.Expr) (*fhirpath.Literal, bool) {
	switch n := e.(type) {
	case *fhirpath.Literal:
		switch n.Kind {
		case fhirpath.LitDate, fhirpath.LitDateTime, fhirpath.LitTime:
			return n, true
		}
	case *fhirpath.ParenExpr:
		return temporalLiteralOf(n.Expr)
	}
	return nil, false
}

// nullLiteralOf reports whether the expression is the empty collection
// literal.
func nullLiteralOf(e fhirpath.Expr) bool {
	switch n := e.(type) {
	case *fhirpath.Literal:
		return n.Kind == fhirpath.LitEmpty
	case *fhirpath.ParenExpr:
		return nullLiteralOf(n.Expr)
	}
	return false
}
