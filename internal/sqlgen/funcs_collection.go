package sqlgen

import (
	"fmt"

	"github.com/markb/fhirsql/internal/dialect"
	"github.com/markb/fhirsql/internal/fhirpath"
)

// visitFunction dispatches a function call in pipeline position. Function
// identity is resolved once against the closed registry; unknown names are
// rejected before any SQL is produced.
func (t *Translator) visitFunction(n *fhirpath.FunctionCall) error {
	id, ok := resolveFunc(n.Name)
	if !ok {
		return newTranslationError(ErrUnsupportedExpression, n.Source(),
			"unknown function %s()", n.Name)
	}

	switch id {
	case FuncWhere:
		return t.fnWhere(n)
	case FuncSelect:
		return t.fnSelect(n)
	case FuncExists:
		return t.fnExists(n)
	case FuncAll:
		return t.fnAll(n)
	case FuncEmpty:
		return t.fnEmpty(n)
	case FuncNot:
		return t.fnNot(n)
	case FuncCount:
		return t.fnCount(n)
	case FuncDistinct:
		return t.fnDistinct(n)
	case FuncIsDistinct:
		return t.fnIsDistinct(n)
	case FuncFirst, FuncLast, FuncTail, FuncSkip, FuncTake, FuncSingle:
		return t.fnSubset(id, n)
	case FuncUnion, FuncCombine, FuncIntersect, FuncExclude:
		return t.fnSetOp(id, n)
	case FuncOfType:
		return t.fnOfType(n)
	case FuncIif:
		return t.fnIif(n)
	case FuncAggregate:
		return t.fnAggregate(n)
	case FuncRepeat:
		return t.fnRepeat(n)
	case FuncGetResourceKey:
		return t.fnGetResourceKey(n)
	default:
		// Row-level value functions apply to each element in place.
		return t.fnRowwise(id, n)
	}
}

func wantArgs(n *fhirpath.FunctionCall, min, max int) error {
	if len(n.Args) < min || len(n.Args) > max {
		return newTranslationError(ErrParseAssumptionViolated, n.Source(),
			"%s() takes %d to %d arguments, got %d", n.Name, min, max, len(n.Args))
	}
	return nil
}

// bindIteration pushes a lambda scope over the current collection, with
// the row addressed through the given alias.
func (t *Translator) bindIteration(rowAlias string) *ScopeGuard {
	return t.ctx.PushScope(map[string]binding{
		"this":  {expr: t.currentValue(rowAlias), typeName: t.ctx.CurrentType, kind: t.currentKind},
		"index": {expr: "(" + rowAlias + ".ord - 1)", typeName: "integer", kind: kindNumber},
	})
}

// fnWhere filters the current collection by a row-level criteria.
func (t *Translator) fnWhere(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 1, 1); err != nil {
		return err
	}
	guard := t.bindIteration("t")
	pred, err := t.scalar(n.Args[0])
	guard.Release()
	if err != nil {
		return err
	}
	t.emitSimple(fmt.Sprintf(
		"SELECT t.id, t.%s, row_number() OVER (PARTITION BY t.id ORDER BY t.ord) AS ord FROM %s t WHERE %s",
		t.ctx.ElementColumn, t.ctx.Table, t.asBool(pred)),
		t.ctx.Table)
	return nil
}

// fnSelect projects each element. A pure member path projects by plain
// navigation; any other row-level expression maps values in place.
func (t *Translator) fnSelect(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 1, 1); err != nil {
		return err
	}
	if segs, ok := pathSegments(n.Args[0]); ok {
		for _, seg := range segs {
			if err := t.visitIdentifier(&fhirpath.Identifier{Name: seg}); err != nil {
				return err
			}
		}
		return nil
	}

	guard := t.bindIteration("t")
	sv, err := t.scalar(n.Args[0])
	guard.Release()
	if err != nil {
		return err
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

// fnExists collapses the collection to a per-record boolean. An optional
// criteria argument filters first.
func (t *Translator) fnExists(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 0, 1); err != nil {
		return err
	}
	if len(n.Args) == 1 {
		if err := t.fnWhere(&fhirpath.FunctionCall{Pos: n.Pos, Name: "where", Args: n.Args, Text: n.Text}); err != nil {
			return err
		}
	}
	val := t.currentValue("c")
	t.emitSimple(fmt.Sprintf(
		"SELECT b.id, EXISTS (SELECT 1 FROM %s c WHERE c.id = b.id AND %s IS NOT NULL) AS element, 1 AS ord FROM %s b",
		t.ctx.Table, val, t.ctx.BaseCTE),
		t.ctx.BaseCTE, t.ctx.Table)
	t.markAggregate()
	t.setBooleanResult()
	return nil
}

// fnEmpty is the negation of exists().
func (t *Translator) fnEmpty(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 0, 0); err != nil {
		return err
	}
	val := t.currentValue("c")
	t.emitSimple(fmt.Sprintf(
		"SELECT b.id, NOT EXISTS (SELECT 1 FROM %s c WHERE c.id = b.id AND %s IS NOT NULL) AS element, 1 AS ord FROM %s b",
		t.ctx.Table, val, t.ctx.BaseCTE),
		t.ctx.BaseCTE, t.ctx.Table)
	t.markAggregate()
	t.setBooleanResult()
	return nil
}

// fnAll tests the criteria over every element; true on empty input.
func (t *Translator) fnAll(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 1, 1); err != nil {
		return err
	}
	guard := t.bindIteration("c")
	pred, err := t.scalar(n.Args[0])
	guard.Release()
	if err != nil {
		return err
	}
	t.emitSimple(fmt.Sprintf(
		"SELECT b.id, NOT EXISTS (SELECT 1 FROM %s c WHERE c.id = b.id AND NOT coalesce(%s, %s)) AS element, 1 AS ord FROM %s b",
		t.ctx.Table, t.asBool(pred), t.d.BoolLiteral(false), t.ctx.BaseCTE),
		t.ctx.BaseCTE, t.ctx.Table)
	t.markAggregate()
	t.setBooleanResult()
	return nil
}

// fnNot negates each boolean value in place.
func (t *Translator) fnNot(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 0, 0); err != nil {
		return err
	}
	val := scalarValue{sql: t.currentValue("t"), kind: t.currentKind, typeName: t.ctx.CurrentType}
	b := t.asBool(val)
	t.emitSimple(fmt.Sprintf(
		"SELECT t.id, NOT %s AS element, t.ord FROM %s t WHERE %s IS NOT NULL",
		b, t.ctx.Table, val.sql),
		t.ctx.Table)
	t.setBooleanResult()
	return nil
}

func (t *Translator) setBooleanResult() {
	t.ctx.CurrentType = "boolean"
	t.currentKind = kindBool
	t.ctx.Path = nil
	t.ctx.Choice = nil
	t.ctx.ElementColumn = "element"
}

// markAggregate flags the most recent fragment as collapsing the
// collection to one row per record.
func (t *Translator) markAggregate() {
	if len(t.frags) > 0 {
		t.frags[len(t.frags)-1].IsAggregate = true
	}
}

// fnCount collapses to a per-record element count, zero included.
func (t *Translator) fnCount(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 0, 0); err != nil {
		return err
	}
	t.materializeValues()
	t.emitSimple(fmt.Sprintf(
		"SELECT b.id, count(c.id) AS element, 1 AS ord FROM %s b LEFT JOIN %s c ON c.id = b.id GROUP BY b.id",
		t.ctx.BaseCTE, t.ctx.Table),
		t.ctx.BaseCTE, t.ctx.Table)
	t.markAggregate()
	t.ctx.CurrentType = "integer"
	t.currentKind = kindNumber
	return nil
}

// fnDistinct deduplicates the collection, renumbering by canonical value.
func (t *Translator) fnDistinct(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 0, 0); err != nil {
		return err
	}
	t.materializeValues()
	key := t.sortKey("t.element", t.currentKind)
	t.emitSimple(fmt.Sprintf(
		"SELECT u.id, u.element, row_number() OVER (PARTITION BY u.id ORDER BY u.sort_key) AS ord "+
			"FROM (SELECT DISTINCT t.id, t.element, %s AS sort_key FROM %s t) u",
		key, t.ctx.Table),
		t.ctx.Table)
	return nil
}

// fnIsDistinct reports whether the collection holds no duplicate values.
func (t *Translator) fnIsDistinct(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 0, 0); err != nil {
		return err
	}
	t.materializeValues()
	key := t.sortKey("c.element", t.currentKind)
	t.emitSimple(fmt.Sprintf(
		"SELECT b.id, count(c.id) = count(DISTINCT %s) AS element, 1 AS ord FROM %s b LEFT JOIN %s c ON c.id = b.id GROUP BY b.id",
		key, t.ctx.BaseCTE, t.ctx.Table),
		t.ctx.BaseCTE, t.ctx.Table)
	t.markAggregate()
	t.setBooleanResult()
	return nil
}

// fnSubset implements the positional selectors as ordinal filters over the
// materialized collection.
func (t *Translator) fnSubset(id FuncID, n *fhirpath.FunctionCall) error {
	max := 0
	if id == FuncSkip || id == FuncTake {
		max = 1
	}
	if err := wantArgs(n, max, max); err != nil {
		return err
	}
	t.materialize()

	var filter string
	switch id {
	case FuncFirst:
		filter = "t.ord = 1"
	case FuncLast:
		filter = "t.ord = (SELECT max(s.ord) FROM {src} s WHERE s.id = t.id)"
	case FuncTail:
		filter = "t.ord > 1"
	case FuncSingle:
		filter = "t.ord = 1 AND (SELECT max(s.ord) FROM {src} s WHERE s.id = t.id) = 1"
	case FuncSkip, FuncTake:
		count, err := t.scalar(n.Args[0])
		if err != nil {
			return err
		}
		if id == FuncSkip {
			filter = fmt.Sprintf("t.ord > (%s)", t.asNumber(count))
		} else {
			filter = fmt.Sprintf("t.ord <= (%s)", t.asNumber(count))
		}
	}
	t.emitSubset(filter, t.ctx.Table)
	return nil
}

// fnSetOp merges the current collection with the argument pipeline.
func (t *Translator) fnSetOp(id FuncID, n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 1, 1); err != nil {
		return err
	}
	t.materializeValues()
	lTable, lKind, lType := t.ctx.Table, t.currentKind, t.ctx.CurrentType

	rTable, rKind, rType, err := t.pipelineOperand(n.Args[0])
	if err != nil {
		return err
	}

	lElem, rElem := "l.element", "r.element"
	kind := lKind
	typ := lType
	if lKind != rKind || lType != rType {
		lElem = t.asText(scalarValue{sql: lElem, kind: lKind, typeName: lType})
		rElem = t.asText(scalarValue{sql: rElem, kind: rKind, typeName: rType})
		kind = kindText
		typ = ""
	}
	lKey := t.sortKey(lElem, kind)
	rKey := t.sortKey(rElem, kind)

	switch id {
	case FuncUnion:
		t.emitSimple(fmt.Sprintf(
			"SELECT u.id, u.element, row_number() OVER (PARTITION BY u.id ORDER BY u.sort_key) AS ord "+
				"FROM (SELECT l.id, %s AS element, %s AS sort_key FROM %s l %s SELECT r.id, %s, %s FROM %s r) u",
			lElem, lKey, lTable, t.d.SetOpKeyword(dialect.SetUnion), rElem, rKey, rTable),
			lTable, rTable)

	case FuncCombine:
		t.emitSimple(fmt.Sprintf(
			"SELECT u.id, u.element, row_number() OVER (PARTITION BY u.id ORDER BY u.side, u.ord) AS ord "+
				"FROM (SELECT l.id, %s AS element, 1 AS side, l.ord FROM %s l %s SELECT r.id, %s, 2, r.ord FROM %s r) u",
			lElem, lTable, t.d.SetOpKeyword(dialect.SetUnionAll), rElem, rTable),
			lTable, rTable)

	case FuncIntersect:
		t.emitSimple(fmt.Sprintf(
			"SELECT u.id, u.element, row_number() OVER (PARTITION BY u.id ORDER BY u.sort_key) AS ord "+
				"FROM (SELECT l.id, %s AS element, %s AS sort_key FROM %s l %s SELECT r.id, %s, %s FROM %s r) u",
			lElem, lKey, lTable, t.d.SetOpKeyword(dialect.SetIntersect), rElem, rKey, rTable),
			lTable, rTable)

	case FuncExclude:
		// Order and duplicates of the left side survive.
		t.emitSimple(fmt.Sprintf(
			"SELECT l.id, %s AS element, row_number() OVER (PARTITION BY l.id ORDER BY l.ord) AS ord FROM %s l "+
				"WHERE NOT EXISTS (SELECT 1 FROM %s r WHERE r.id = l.id AND %s = %s)",
			lElem, lTable, rTable, lKey, rKey),
			lTable, rTable)
	}

	t.ctx.CurrentType = typ
	t.currentKind = kind
	return nil
}

// fnOfType filters the collection to one type.
func (t *Translator) fnOfType(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 1, 1); err != nil {
		return err
	}
	typeName, ok := typeNameOf(n.Args[0])
	if !ok {
		return newTranslationError(ErrParseAssumptionViolated, n.Source(),
			"ofType() requires a type specifier")
	}
	return t.applyTypeOp("ofType", typeName, n.Source())
}

// typeNameOf reads a (possibly qualified) type specifier argument.
func typeNameOf(e fhirpath.Expr) (string, bool) {
	segs, ok := pathSegments(e)
	if !ok || len(segs) == 0 {
		return "", false
	}
	return segs[len(segs)-1], true
}

// fnIif evaluates a record-level conditional.
func (t *Translator) fnIif(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 2, 3); err != nil {
		return err
	}
	sv, err := t.scalarIif(n)
	if err != nil {
		return err
	}
	t.emitSimple(fmt.Sprintf(
		"SELECT b.id, %s AS element, 1 AS ord FROM %s b WHERE (%s) IS NOT NULL",
		sv.sql, t.ctx.BaseCTE, sv.sql),
		t.ctx.BaseCTE)
	t.ctx.CurrentType = sv.typeName
	t.currentKind = sv.kind
	t.ctx.Path = nil
	t.ctx.Choice = nil
	return nil
}

// fnAggregate folds the collection left to right through a recursive CTE.
// The accumulator travels in the element column, the fold step in ord.
func (t *Translator) fnAggregate(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 1, 2); err != nil {
		return err
	}
	t.materializeValues()
	items := t.ctx.Table
	itemKind := t.currentKind
	itemType := t.ctx.CurrentType

	init := scalarValue{sql: "NULL", kind: kindJSON}
	if len(n.Args) == 2 {
		var err error
		init, err = t.scalar(n.Args[1])
		if err != nil {
			return err
		}
	}

	guard := t.ctx.PushScope(map[string]binding{
		"this":  {expr: "t.element", typeName: itemType, kind: itemKind},
		"index": {expr: "(t.ord - 1)", typeName: "integer", kind: kindNumber},
		"total": {expr: "a.element", typeName: init.typeName, kind: init.kind},
	})
	step, err := t.scalar(n.Args[0])
	guard.Release()
	if err != nil {
		return err
	}

	// Keep the anchor and recursive terms type-compatible.
	initSQL := init.sql
	if init.kind != step.kind {
		initSQL = t.coerce(init, step.kind)
	}

	base := t.ctx.BaseCTE
	agg := t.emitRecursive(func(self string) string {
		return fmt.Sprintf(
			"SELECT b.id, %s AS element, 0 AS ord FROM %s b "+
				"UNION ALL "+
				"SELECT a.id, %s AS element, a.ord + 1 AS ord FROM %s a JOIN %s t ON t.id = a.id AND t.ord = a.ord + 1",
			initSQL, base, step.sql, self, items)
	}, base, items)

	t.emitSimple(fmt.Sprintf(
		"SELECT a.id, a.element, 1 AS ord FROM %s a WHERE a.ord = (SELECT count(*) FROM %s c WHERE c.id = a.id)",
		agg, items),
		agg, items)
	t.markAggregate()
	t.ctx.CurrentType = step.typeName
	t.currentKind = step.kind
	t.ctx.Path = nil
	t.ctx.Choice = nil
	return nil
}

// coerce renders a value under a target SQL kind.
func (t *Translator) coerce(sv scalarValue, kind valueKind) string {
	switch kind {
	case kindNumber:
		return t.asNumber(sv)
	case kindText:
		return t.asText(sv)
	case kindBool:
		return t.asBool(sv)
	default:
		return sv.sql
	}
}

// fnRepeat applies a member projection transitively, collecting every
// level of the closure. Descent is bounded by MaxRecursionDepth; JSON
// documents are finite trees, so the bound is a backstop.
func (t *Translator) fnRepeat(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 1, 1); err != nil {
		return err
	}
	t.repeatDepth++
	if t.repeatDepth > MaxRecursionDepth {
		return newTranslationError(ErrRecursionLimitExceeded, n.Source(),
			"repeat() expansion exceeds the depth limit of %d", MaxRecursionDepth)
	}
	segs, ok := pathSegments(n.Args[0])
	if !ok || len(segs) == 0 {
		return newTranslationError(ErrUnsupportedExpression, n.Source(),
			"repeat() supports member path projections only")
	}

	// Seed: one projection step by plain navigation.
	elemType := t.ctx.CurrentType
	for _, seg := range segs {
		if err := t.visitIdentifier(&fhirpath.Identifier{Name: seg}); err != nil {
			return err
		}
		elemType = t.ctx.CurrentType
	}
	t.materialize()
	seed := t.ctx.Table

	proj := t.d.ExtractJSONField("a.element", segs)
	un := t.d.UnnestJSONArray(proj)

	rec := t.emitRecursive(func(self string) string {
		return fmt.Sprintf(
			"SELECT t.id, t.element, t.ord, 0 AS depth FROM %s t "+
				"UNION ALL "+
				"SELECT a.id, %s AS element, %s AS ord, a.depth + 1 AS depth FROM %s a %s WHERE a.depth < %d",
			seed, un.Value, un.Ordinal, self, un.Join, MaxRecursionDepth)
	}, seed)

	key := t.sortKey("u.element", kindJSON)
	t.emitSimple(fmt.Sprintf(
		"SELECT u.id, u.element, row_number() OVER (PARTITION BY u.id ORDER BY u.min_depth, u.min_ord, %s) AS ord "+
			"FROM (SELECT r.id, r.element, min(r.depth) AS min_depth, min(r.ord) AS min_ord FROM %s r GROUP BY r.id, r.element) u",
		key, rec),
		rec)
	t.ctx.CurrentType = elemType
	t.currentKind = kindJSON
	return nil
}

// fnGetResourceKey exposes the record key as a value.
func (t *Translator) fnGetResourceKey(n *fhirpath.FunctionCall) error {
	if err := wantArgs(n, 0, 0); err != nil {
		return err
	}
	t.emitSimple(fmt.Sprintf(
		"SELECT b.id, b.id AS element, 1 AS ord FROM %s b", t.ctx.BaseCTE),
		t.ctx.BaseCTE)
	t.ctx.CurrentType = "string"
	t.currentKind = kindText
	t.ctx.Path = nil
	t.ctx.Choice = nil
	return nil
}
