package sqlgen

import (
	"fmt"

	"github.com/markb/fhirsql/internal/fhirpath"
)

// navState snapshots the navigation portion of the context so operand
// subtrees can be translated from the root record.
type navState struct {
	table      string
	path       []string
	choice     *choiceState
	elemCol    string
	curType    string
	kind       valueKind
}

func (t *Translator) saveNav() navState {
	return navState{
		table:   t.ctx.Table,
		path:    append([]string{}, t.ctx.Path...),
		choice:  t.ctx.Choice,
		elemCol: t.ctx.ElementColumn,
		curType: t.ctx.CurrentType,
		kind:    t.currentKind,
	}
}

func (t *Translator) restoreNav(s navState) {
	t.ctx.Table = s.table
	t.ctx.Path = s.path
	t.ctx.Choice = s.choice
	t.ctx.ElementColumn = s.elemCol
	t.ctx.CurrentType = s.curType
	t.currentKind = s.kind
}

func (t *Translator) resetNavToBase() {
	t.ctx.Table = t.ctx.BaseCTE
	t.ctx.Path = nil
	t.ctx.Choice = nil
	t.ctx.ElementColumn = "element"
	t.ctx.CurrentType = t.ctx.ResourceType
	t.currentKind = kindJSON
}

// materializeValues flushes pending navigation and extracts primitive
// values, so the current CTE's element column holds directly comparable
// scalars whenever the type allows it.
func (t *Translator) materializeValues() {
	needExtract := t.currentKind == kindJSON && t.reg.IsPrimitive(t.ctx.CurrentType)
	if !t.hasPending() && !needExtract {
		return
	}
	val := t.currentValue("t")
	if needExtract {
		val = t.d.ExtractPrimitiveValue(val)
		t.currentKind = kindText
	}
	t.emitSimple(
		fmt.Sprintf("SELECT t.id, %s AS element, t.ord FROM %s t WHERE %s IS NOT NULL",
			val, t.ctx.Table, val),
		t.ctx.Table)
	t.ctx.Path = nil
	t.ctx.Choice = nil
}

// pipelineOperand translates an operand subtree as its own pipeline rooted
// at the base record, returning the resulting CTE with extracted values.
// Navigation state is restored; the CTE counter keeps advancing so names
// stay unique.
func (t *Translator) pipelineOperand(e fhirpath.Expr) (table string, kind valueKind, typeName string, err error) {
	saved := t.saveNav()
	t.resetNavToBase()
	if err = t.visit(e); err == nil {
		t.materializeValues()
		table = t.ctx.Table
		kind = t.currentKind
		typeName = t.ctx.CurrentType
	}
	t.restoreNav(saved)
	return table, kind, typeName, err
}

// visitOperator compiles a non-path binary operator in pipeline position.
func (t *Translator) visitOperator(n *fhirpath.BinaryOp) error {
	switch n.Op {
	case "|":
		return t.visitSetOp(n)
	case "in":
		return t.visitMembership(n.Left, n.Right, n)
	case "contains":
		return t.visitMembership(n.Right, n.Left, n)
	}

	ls, lok, err := t.tryScalar(n.Left)
	if err != nil {
		return err
	}
	rs, rok, err := t.tryScalar(n.Right)
	if err != nil {
		return err
	}

	// Constant fold at the record level when both sides are scalar.
	if lok && rok {
		sv, err := t.combineScalars(n.Op, ls, rs, n.Left, n.Right)
		if err != nil {
			return err
		}
		t.emitSimple(
			fmt.Sprintf("SELECT b.id, %s AS element, 1 AS ord FROM %s b WHERE (%s) IS NOT NULL",
				sv.sql, t.ctx.BaseCTE, sv.sql),
			t.ctx.BaseCTE)
		t.ctx.CurrentType = sv.typeName
		t.currentKind = sv.kind
		t.ctx.Path = nil
		t.ctx.Choice = nil
		return nil
	}

	// At least one pipeline side: join per-record values on id. Operand
	// collections are treated as singletons, so the join is pinned to the
	// first element and every record yields at most one output row.
	var (
		lTable, rTable string
		lKind, rKind   valueKind
		lType, rType   string
	)
	if !lok {
		lTable, lKind, lType, err = t.pipelineOperand(n.Left)
		if err != nil {
			return err
		}
		ls = scalarValue{sql: "l.element", kind: lKind, typeName: lType}
	}
	if !rok {
		rTable, rKind, rType, err = t.pipelineOperand(n.Right)
		if err != nil {
			return err
		}
		rs = scalarValue{sql: "r.element", kind: rKind, typeName: rType}
	}

	sv, err := t.combineScalars(n.Op, ls, rs, n.Left, n.Right)
	if err != nil {
		return err
	}

	from := t.ctx.BaseCTE + " b"
	deps := []string{t.ctx.BaseCTE}
	if lTable != "" {
		from += fmt.Sprintf(" LEFT JOIN %s l ON l.id = b.id AND l.ord = 1", lTable)
		deps = append(deps, lTable)
	}
	if rTable != "" {
		from += fmt.Sprintf(" LEFT JOIN %s r ON r.id = b.id AND r.ord = 1", rTable)
		deps = append(deps, rTable)
	}

	raw := t.emitSimple(
		fmt.Sprintf("SELECT b.id, %s AS element, 1 AS ord FROM %s", sv.sql, from),
		deps...)
	t.emitSimple(
		fmt.Sprintf("SELECT t.id, t.element, t.ord FROM %s t WHERE t.element IS NOT NULL", raw),
		raw)
	t.ctx.CurrentType = sv.typeName
	t.currentKind = sv.kind
	t.ctx.Path = nil
	t.ctx.Choice = nil
	return nil
}

// combineScalars renders one binary operator over two row-level values.
func (t *Translator) combineScalars(op string, ls, rs scalarValue, leftNode, rightNode fhirpath.Expr) (scalarValue, error) {
	if ls.array || rs.array {
		return t.combineWithArray(op, ls, rs, leftNode, rightNode)
	}

	// Temporal literals compare by precision range.
	if isComparisonOp(op) || op == "=" || op == "!=" {
		if lit, ok := temporalLiteralOf(rightNode); ok {
			if _, lok := temporalLiteralOf(leftNode); !lok {
				sql, err := t.temporalCompare(op, t.asText(ls), lit, false)
				if err != nil {
					return scalarValue{}, err
				}
				return scalarValue{sql: sql, kind: kindBool, typeName: "boolean"}, nil
			}
		} else if lit, ok := temporalLiteralOf(leftNode); ok {
			sql, err := t.temporalCompare(op, t.asText(rs), lit, true)
			if err != nil {
				return scalarValue{}, err
			}
			return scalarValue{sql: sql, kind: kindBool, typeName: "boolean"}, nil
		}
	}

	switch op {
	case "=", "!=":
		if nullLiteralOf(leftNode) || nullLiteralOf(rightNode) {
			// Equality with the empty collection is empty.
			return scalarValue{sql: "NULL", kind: kindBool, typeName: "boolean"}, nil
		}
		cmp := "="
		if op == "!=" {
			cmp = "<>"
		}
		l, r := t.comparablePair(ls, rs, leftNode, rightNode)
		return scalarValue{
			sql:      fmt.Sprintf("(%s %s %s)", l, cmp, r),
			kind:     kindBool,
			typeName: "boolean",
		}, nil

	case "~", "!~":
		sql := t.equivalence(ls, rs, leftNode, rightNode)
		if op == "!~" {
			sql = fmt.Sprintf("NOT %s", sql)
		}
		return scalarValue{sql: sql, kind: kindBool, typeName: "boolean"}, nil

	case "<", "<=", ">", ">=":
		var l, r string
		if isTextual(ls) || isTextual(rs) {
			l, r = t.asText(ls), t.asText(rs)
		} else {
			l, r = t.asNumber(ls), t.asNumber(rs)
		}
		return scalarValue{
			sql:      fmt.Sprintf("(%s %s %s)", l, op, r),
			kind:     kindBool,
			typeName: "boolean",
		}, nil

	case "+":
		if isStringTyped(ls) && isStringTyped(rs) {
			return scalarValue{
				sql:      fmt.Sprintf("(%s || %s)", t.asText(ls), t.asText(rs)),
				kind:     kindText,
				typeName: "string",
			}, nil
		}
		fallthrough
	case "-", "*", "/":
		return scalarValue{
			sql:      fmt.Sprintf("(%s %s %s)", t.asNumber(ls), op, t.asNumber(rs)),
			kind:     kindNumber,
			typeName: "decimal",
		}, nil

	case "&":
		return scalarValue{
			sql:      fmt.Sprintf("(coalesce(%s, '') || coalesce(%s, ''))", t.asText(ls), t.asText(rs)),
			kind:     kindText,
			typeName: "string",
		}, nil

	case "div":
		return scalarValue{
			sql:      t.d.TruncateToInt(fmt.Sprintf("(%s) / (%s)", t.asNumber(ls), t.asNumber(rs))),
			kind:     kindNumber,
			typeName: "integer",
		}, nil

	case "mod":
		return scalarValue{
			sql:      fmt.Sprintf("(%s %% %s)", t.d.CastToInteger(t.asText(ls)), t.d.CastToInteger(t.asText(rs))),
			kind:     kindNumber,
			typeName: "integer",
		}, nil

	case "and":
		return scalarValue{sql: fmt.Sprintf("(%s AND %s)", t.asBool(ls), t.asBool(rs)), kind: kindBool, typeName: "boolean"}, nil
	case "or":
		return scalarValue{sql: fmt.Sprintf("(%s OR %s)", t.asBool(ls), t.asBool(rs)), kind: kindBool, typeName: "boolean"}, nil
	case "xor":
		return scalarValue{sql: fmt.Sprintf("(%s <> %s)", t.asBool(ls), t.asBool(rs)), kind: kindBool, typeName: "boolean"}, nil
	case "implies":
		return scalarValue{sql: fmt.Sprintf("(NOT %s OR %s)", t.asBool(ls), t.asBool(rs)), kind: kindBool, typeName: "boolean"}, nil

	default:
		return scalarValue{}, newTranslationError(ErrUnsupportedExpression, op,
			"operator %s is not supported", op)
	}
}

// combineWithArray handles operators whose operand is an array-valued
// member path. Equality and membership hold when any element matches;
// other operators have no collection reading at the row level.
func (t *Translator) combineWithArray(op string, ls, rs scalarValue, leftNode, rightNode fhirpath.Expr) (scalarValue, error) {
	switch op {
	case "=", "!=":
		if ls.array != rs.array {
			arr, item := ls, rs
			if rs.array {
				arr, item = rs, ls
			}
			return t.arrayAnyMatch(arr, item, op == "!="), nil
		}
	case "in":
		if rs.array && !ls.array {
			return t.arrayAnyMatch(rs, ls, false), nil
		}
	case "contains":
		if ls.array && !rs.array {
			return t.arrayAnyMatch(ls, rs, false), nil
		}
	}

	node := leftNode
	if rs.array {
		node = rightNode
	}
	return scalarValue{}, newTranslationError(ErrUnsupportedExpression, node.Source(),
		"operator %s is not supported over a collection-valued member", op)
}

// arrayAnyMatch renders a correlated EXISTS over the unnested array,
// comparing each element to the item value.
func (t *Translator) arrayAnyMatch(arr, item scalarValue, negate bool) scalarValue {
	un := t.d.UnnestJSONArray(arr.sql)
	elem := scalarValue{sql: un.Value, kind: kindJSON, typeName: arr.typeName}
	l, r := t.comparablePair(elem, item, nil, nil)
	sql := fmt.Sprintf("EXISTS (SELECT 1 FROM (SELECT 1) AS z %s WHERE %s = %s)", un.Join, l, r)
	if negate {
		sql = fmt.Sprintf("NOT %s", sql)
	}
	return scalarValue{sql: sql, kind: kindBool, typeName: "boolean"}
}

// comparablePair coerces both operands of = / != to a common SQL type.
func (t *Translator) comparablePair(ls, rs scalarValue, leftNode, rightNode fhirpath.Expr) (string, string) {
	switch {
	case ls.kind == kindNumber || rs.kind == kindNumber:
		return t.asNumber(ls), t.asNumber(rs)
	case ls.kind == kindBool || rs.kind == kindBool:
		return t.asBool(ls), t.asBool(rs)
	case ls.kind == kindText || rs.kind == kindText:
		return t.asText(ls), t.asText(rs)
	default:
		return t.d.CanonicalJSON(ls.sql), t.d.CanonicalJSON(rs.sql)
	}
}

// equivalence implements ~ with its null rules: both empty is true, one
// empty is false, strings compare case-insensitively.
func (t *Translator) equivalence(ls, rs scalarValue, leftNode, rightNode fhirpath.Expr) string {
	_, lStatic := staticStringOf(leftNode)
	_, rStatic := staticStringOf(rightNode)

	var l, r string
	switch {
	case lStatic || rStatic || (isStringTyped(ls) && isStringTyped(rs)):
		l = fmt.Sprintf("lower(%s)", t.asText(ls))
		r = fmt.Sprintf("lower(%s)", t.asText(rs))
	case ls.kind == kindNumber || rs.kind == kindNumber:
		l, r = t.asNumber(ls), t.asNumber(rs)
	case ls.kind == kindBool || rs.kind == kindBool:
		l, r = t.asBool(ls), t.asBool(rs)
	case ls.kind == kindJSON && rs.kind == kindJSON:
		l, r = t.d.CanonicalJSON(ls.sql), t.d.CanonicalJSON(rs.sql)
	default:
		l, r = t.asText(ls), t.asText(rs)
	}

	return fmt.Sprintf(
		"(CASE WHEN (%s) IS NULL AND (%s) IS NULL THEN %s WHEN (%s) IS NULL OR (%s) IS NULL THEN %s ELSE %s = %s END)",
		ls.sql, rs.sql, t.d.BoolLiteral(true),
		ls.sql, rs.sql, t.d.BoolLiteral(false),
		l, r)
}

func isComparisonOp(op string) bool {
	switch op {
	case "<", "<=", ">", ">=":
		return true
	}
	return false
}

// isTextual reports whether comparison of this value should be lexical.
func isTextual(sv scalarValue) bool {
	if sv.kind == kindText {
		return true
	}
	switch sv.typeName {
	case "string", "code", "uri", "url", "canonical", "id", "oid", "uuid",
		"markdown", "base64Binary", "date", "dateTime", "time", "instant":
		return true
	}
	return false
}

// isStringTyped reports whether a value is string-like for concatenation
// and case-insensitive equivalence.
func isStringTyped(sv scalarValue) bool {
	if sv.kind == kindText {
		return sv.typeName == "" || isTextual(sv)
	}
	if sv.kind != kindJSON {
		return false
	}
	switch sv.typeName {
	case "string", "code", "uri", "url", "canonical", "id", "markdown":
		return true
	}
	return false
}

// visitSetOp implements '|': distinct union of both sides per record,
// renumbered deterministically by canonical value.
func (t *Translator) visitSetOp(n *fhirpath.BinaryOp) error {
	lTable, lKind, lType, err := t.pipelineOperand(n.Left)
	if err != nil {
		return err
	}
	rTable, rKind, rType, err := t.pipelineOperand(n.Right)
	if err != nil {
		return err
	}

	lElem, rElem := "l.element", "r.element"
	kind := lKind
	typ := lType
	if lKind != rKind || lType != rType {
		// Mixed-kind branches unify as text.
		lElem = t.asText(scalarValue{sql: lElem, kind: lKind, typeName: lType})
		rElem = t.asText(scalarValue{sql: rElem, kind: rKind, typeName: rType})
		kind = kindText
		typ = ""
	}

	lKey := t.sortKey(lElem, kind)
	rKey := t.sortKey(rElem, kind)

	t.emitSimple(fmt.Sprintf(
		"SELECT u.id, u.element, row_number() OVER (PARTITION BY u.id ORDER BY u.sort_key) AS ord "+
			"FROM (SELECT l.id, %s AS element, %s AS sort_key FROM %s l "+
			"UNION SELECT r.id, %s, %s FROM %s r) u",
		lElem, lKey, lTable, rElem, rKey, rTable),
		lTable, rTable)
	t.ctx.CurrentType = typ
	t.currentKind = kind
	t.ctx.Path = nil
	t.ctx.Choice = nil
	return nil
}

// sortKey renders a deterministic text ordering key for a value.
func (t *Translator) sortKey(elem string, kind valueKind) string {
	if kind == kindJSON {
		return t.d.CanonicalJSON(elem)
	}
	return t.d.CastToText(elem)
}

// visitMembership implements in/contains via a correlated existence test.
func (t *Translator) visitMembership(item, container fhirpath.Expr, n *fhirpath.BinaryOp) error {
	if nullLiteralOf(item) {
		t.emitSimple(
			fmt.Sprintf("SELECT b.id, NULL AS element, 1 AS ord FROM %s b WHERE 1 = 0", t.ctx.BaseCTE),
			t.ctx.BaseCTE)
		t.ctx.CurrentType = "boolean"
		t.currentKind = kindBool
		return nil
	}

	cTable, cKind, cType, err := t.pipelineOperand(container)
	if err != nil {
		return err
	}
	cVal := scalarValue{sql: "c.element", kind: cKind, typeName: cType}

	is, iok, err := t.tryScalar(item)
	if err != nil {
		return err
	}

	if iok {
		l, r := t.comparablePair(cVal, is, container, item)
		t.emitSimple(fmt.Sprintf(
			"SELECT b.id, EXISTS (SELECT 1 FROM %s c WHERE c.id = b.id AND %s = %s) AS element, 1 AS ord FROM %s b",
			cTable, l, r, t.ctx.BaseCTE),
			t.ctx.BaseCTE, cTable)
	} else {
		iTable, iKind, iType, err := t.pipelineOperand(item)
		if err != nil {
			return err
		}
		iVal := scalarValue{sql: "i.element", kind: iKind, typeName: iType}
		l, r := t.comparablePair(cVal, iVal, container, item)
		t.emitSimple(fmt.Sprintf(
			"SELECT i.id, EXISTS (SELECT 1 FROM %s c WHERE c.id = i.id AND %s = %s) AS element, i.ord FROM %s i",
			cTable, l, r, iTable),
			iTable, cTable)
	}
	t.ctx.CurrentType = "boolean"
	t.currentKind = kindBool
	t.ctx.Path = nil
	t.ctx.Choice = nil
	return nil
}
