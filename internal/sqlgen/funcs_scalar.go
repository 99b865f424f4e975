package sqlgen

import (
	"fmt"

	"github.com/markb/fhirsql/internal/fhirpath"
)

// scalarCall evaluates a function call in scalar mode. recv is the
// receiver value, nil for bare calls; bare calls inside a lambda receive
// $this. Collection functions report ok=false.
func (t *Translator) scalarCall(n *fhirpath.FunctionCall, recv *scalarValue) (scalarValue, bool, error) {
	id, ok := resolveFunc(n.Name)
	if !ok {
		return scalarValue{}, false, newTranslationError(ErrUnsupportedExpression, n.Source(),
			"unknown function %s()", n.Name)
	}
	if recv == nil && funcNeedsReceiver(id) {
		if this, bound := t.ctx.LookupVar("this"); bound {
			r := scalarValue{sql: this.expr, kind: this.kind, typeName: this.typeName}
			recv = &r
		} else {
			return scalarValue{}, false, nil
		}
	}
	return t.applyScalarFunc(id, n, recv)
}

// funcNeedsReceiver reports whether a function is meaningless without an
// input value.
func funcNeedsReceiver(id FuncID) bool {
	switch id {
	case FuncIif, FuncNow, FuncToday, FuncTimeOfDay:
		return false
	}
	return true
}

// applyScalarFunc renders one row-level function over a scalar receiver.
func (t *Translator) applyScalarFunc(id FuncID, n *fhirpath.FunctionCall, recv *scalarValue) (scalarValue, bool, error) {
	arg := func(i int) (scalarValue, error) { return t.scalar(n.Args[i]) }

	boolResult := func(sql string) (scalarValue, bool, error) {
		return scalarValue{sql: sql, kind: kindBool, typeName: "boolean"}, true, nil
	}
	textResult := func(sql string) (scalarValue, bool, error) {
		return scalarValue{sql: sql, kind: kindText, typeName: "string"}, true, nil
	}
	numResult := func(sql, typeName string) (scalarValue, bool, error) {
		return scalarValue{sql: sql, kind: kindNumber, typeName: typeName}, true, nil
	}

	switch id {
	case FuncNot:
		if err := wantArgs(n, 0, 0); err != nil {
			return scalarValue{}, false, err
		}
		return boolResult(fmt.Sprintf("(NOT %s)", t.asBool(*recv)))

	case FuncExists:
		if len(n.Args) > 0 {
			return scalarValue{}, false, nil
		}
		return boolResult(fmt.Sprintf("((%s) IS NOT NULL)", recv.sql))

	case FuncEmpty:
		return boolResult(fmt.Sprintf("((%s) IS NULL)", recv.sql))

	case FuncCount:
		return numResult(fmt.Sprintf("(CASE WHEN (%s) IS NULL THEN 0 ELSE 1 END)", recv.sql), "integer")

	case FuncFirst, FuncLast, FuncSingle, FuncDistinct:
		// A scalar is its own singleton collection.
		return *recv, true, nil

	case FuncIif:
		if err := wantArgs(n, 2, 3); err != nil {
			return scalarValue{}, false, err
		}
		sv, err := t.scalarIif(n)
		if err != nil {
			return scalarValue{}, false, err
		}
		return sv, true, nil

	case FuncToString:
		return textResult(t.asText(*recv))
	case FuncToInteger:
		return numResult(t.d.CastToInteger(t.asText(*recv)), "integer")
	case FuncToDecimal:
		return numResult(t.d.CastToDouble(t.asText(*recv)), "decimal")

	case FuncLower:
		return textResult(fmt.Sprintf("lower(%s)", t.asText(*recv)))
	case FuncUpper:
		return textResult(fmt.Sprintf("upper(%s)", t.asText(*recv)))
	case FuncLength:
		return numResult(fmt.Sprintf("length(%s)", t.asText(*recv)), "integer")

	case FuncStartsWith:
		if err := wantArgs(n, 1, 1); err != nil {
			return scalarValue{}, false, err
		}
		p, err := arg(0)
		if err != nil {
			return scalarValue{}, false, err
		}
		v, pt := t.asText(*recv), t.asText(p)
		return boolResult(fmt.Sprintf("(substr(%s, 1, length(%s)) = %s)", v, pt, pt))

	case FuncEndsWith:
		if err := wantArgs(n, 1, 1); err != nil {
			return scalarValue{}, false, err
		}
		p, err := arg(0)
		if err != nil {
			return scalarValue{}, false, err
		}
		v, pt := t.asText(*recv), t.asText(p)
		return boolResult(fmt.Sprintf("(substr(%s, length(%s) - length(%s) + 1) = %s)", v, v, pt, pt))

	case FuncContains:
		if err := wantArgs(n, 1, 1); err != nil {
			return scalarValue{}, false, err
		}
		p, err := arg(0)
		if err != nil {
			return scalarValue{}, false, err
		}
		return boolResult(fmt.Sprintf("(%s > 0)", t.d.StringPosition(t.asText(p), t.asText(*recv))))

	case FuncIndexOf:
		if err := wantArgs(n, 1, 1); err != nil {
			return scalarValue{}, false, err
		}
		p, err := arg(0)
		if err != nil {
			return scalarValue{}, false, err
		}
		return numResult(fmt.Sprintf("(%s - 1)", t.d.StringPosition(t.asText(p), t.asText(*recv))), "integer")

	case FuncSubstring:
		if err := wantArgs(n, 1, 2); err != nil {
			return scalarValue{}, false, err
		}
		start, err := arg(0)
		if err != nil {
			return scalarValue{}, false, err
		}
		if len(n.Args) == 2 {
			count, err := arg(1)
			if err != nil {
				return scalarValue{}, false, err
			}
			return textResult(fmt.Sprintf("substr(%s, (%s) + 1, %s)",
				t.asText(*recv), t.asNumber(start), t.asNumber(count)))
		}
		return textResult(fmt.Sprintf("substr(%s, (%s) + 1)", t.asText(*recv), t.asNumber(start)))

	case FuncReplace:
		if err := wantArgs(n, 2, 2); err != nil {
			return scalarValue{}, false, err
		}
		pat, err := arg(0)
		if err != nil {
			return scalarValue{}, false, err
		}
		sub, err := arg(1)
		if err != nil {
			return scalarValue{}, false, err
		}
		return textResult(fmt.Sprintf("replace(%s, %s, %s)", t.asText(*recv), t.asText(pat), t.asText(sub)))

	case FuncAbs:
		return numResult(fmt.Sprintf("abs(%s)", t.asNumber(*recv)), recv.typeName)
	case FuncCeiling:
		return numResult(fmt.Sprintf("CAST(ceil(%s) AS INTEGER)", t.asNumber(*recv)), "integer")
	case FuncFloor:
		return numResult(fmt.Sprintf("CAST(floor(%s) AS INTEGER)", t.asNumber(*recv)), "integer")
	case FuncSqrt:
		return numResult(fmt.Sprintf("sqrt(%s)", t.asNumber(*recv)), "decimal")
	case FuncTruncate:
		return numResult(t.d.TruncateToInt(t.asNumber(*recv)), "integer")

	case FuncRound:
		if err := wantArgs(n, 0, 1); err != nil {
			return scalarValue{}, false, err
		}
		if len(n.Args) == 1 {
			digits, err := arg(0)
			if err != nil {
				return scalarValue{}, false, err
			}
			d := t.asNumber(digits)
			// round(double, int) is not portable; scale through powers of ten.
			return numResult(fmt.Sprintf("(round((%s) * power(10, %s)) / power(10, %s))",
				t.asNumber(*recv), d, d), "decimal")
		}
		return numResult(fmt.Sprintf("round(%s)", t.asNumber(*recv)), "decimal")

	case FuncNow:
		return scalarValue{sql: t.d.CurrentTimestamp(), kind: kindText, typeName: "dateTime"}, true, nil
	case FuncToday:
		return scalarValue{sql: t.d.CurrentDate(), kind: kindText, typeName: "date"}, true, nil
	case FuncTimeOfDay:
		return scalarValue{sql: t.d.CurrentTime(), kind: kindText, typeName: "time"}, true, nil

	default:
		// Collection-shaped functions have no scalar form.
		return scalarValue{}, false, nil
	}
}

// scalarIif renders a conditional over row-level operands. A missing else
// branch yields empty.
func (t *Translator) scalarIif(n *fhirpath.FunctionCall) (scalarValue, error) {
	cond, err := t.scalar(n.Args[0])
	if err != nil {
		return scalarValue{}, err
	}
	thenV, err := t.scalar(n.Args[1])
	if err != nil {
		return scalarValue{}, err
	}
	elseV := scalarValue{sql: "NULL", kind: thenV.kind, typeName: thenV.typeName}
	if len(n.Args) == 3 {
		elseV, err = t.scalar(n.Args[2])
		if err != nil {
			return scalarValue{}, err
		}
	}

	thenSQL, elseSQL := thenV.sql, elseV.sql
	kind, typ := thenV.kind, thenV.typeName
	if elseV.kind != thenV.kind && elseV.sql != "NULL" {
		thenSQL, elseSQL = t.asText(thenV), t.asText(elseV)
		kind, typ = kindText, ""
	}
	return scalarValue{
		sql:      fmt.Sprintf("(CASE WHEN %s THEN %s ELSE %s END)", t.asBool(cond), thenSQL, elseSQL),
		kind:     kind,
		typeName: typ,
	}, nil
}

// fnRowwise maps a row-level function over every element of the current
// collection.
func (t *Translator) fnRowwise(id FuncID, n *fhirpath.FunctionCall) error {
	recv := scalarValue{sql: t.currentValue("t"), kind: t.currentKind, typeName: t.ctx.CurrentType}

	guard := t.bindIteration("t")
	sv, ok, err := t.applyScalarFunc(id, n, &recv)
	guard.Release()
	if err != nil {
		return err
	}
	if !ok {
		return newTranslationError(ErrUnsupportedExpression, n.Source(),
			"%s() is not supported in this position", n.Name)
	}

	t.emitSimple(fmt.Sprintf(
		"SELECT t.id, %s AS element, t.ord FROM %s t WHERE (%s) IS NOT NULL",
		sv.sql, t.ctx.Table, sv.sql),
		t.ctx.Table)
	t.ctx.Path = nil
	t.ctx.Choice = nil
	t.ctx.ElementColumn = "element"
	t.ctx.CurrentType = sv.typeName
	t.currentKind = sv.kind
	return nil
}
