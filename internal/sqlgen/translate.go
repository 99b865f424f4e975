// Package sqlgen compiles FHIRPath ASTs into SQL for execution against a
// JSON resource store. The translator walks the normalized tree emitting
// composable fragments; the assembler stitches them into one
// dependency-ordered chain of CTEs.
//
// Compilation is synchronous and stateless across calls: every Translate
// invocation constructs its own context, and the only shared collaborator,
// the type registry, is read-only.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/markb/fhirsql/internal/dialect"
	"github.com/markb/fhirsql/internal/fhirpath"
	"github.com/markb/fhirsql/internal/typemeta"
)

// MaxRecursionDepth bounds repeat() expansion, both in the emitted SQL's
// depth column and at translation time.
const MaxRecursionDepth = 100

// valueKind tracks the SQL-level type of a computed value.
type valueKind int

const (
	kindJSON valueKind = iota
	kindText
	kindNumber
	kindBool
)

// Result is the outcome of a successful translation.
type Result struct {
	Fragments []Fragment
	// Diagnostics records non-fatal conditions (unknown type or element
	// names treated as complex values).
	Diagnostics []string
}

// Translator walks one AST producing fragments. It is single-use: create
// one per Translate call.
type Translator struct {
	d     dialect.Dialect
	reg   *typemeta.Registry
	ctx   *Context
	frags []Fragment
	diags []string

	// currentKind tracks the SQL kind of the current collection's values;
	// kindJSON means values still need primitive extraction at the end.
	currentKind valueKind

	repeatDepth int
}

// Translate compiles a normalized AST for the given root resource type.
func Translate(ast fhirpath.Expr, resourceType string, d dialect.Dialect) (*Result, error) {
	return TranslateWith(ast, resourceType, d, typemeta.Default())
}

// TranslateWith is Translate with an explicit type registry.
func TranslateWith(ast fhirpath.Expr, resourceType string, d dialect.Dialect, reg *typemeta.Registry) (*Result, error) {
	if ast == nil {
		return nil, newTranslationError(ErrParseAssumptionViolated, "", "nil AST")
	}
	t := &Translator{
		d:   d,
		reg: reg,
		ctx: NewContext(resourceType),
	}
	t.emitBase()

	if err := t.visit(ast); err != nil {
		return nil, err
	}
	if err := t.finalize(); err != nil {
		return nil, err
	}

	return &Result{Fragments: t.frags, Diagnostics: t.diags}, nil
}

// Compile parses, translates, and assembles an expression in one step.
func Compile(expression, resourceType string, d dialect.Dialect) (string, error) {
	ast, err := fhirpath.Parse(expression)
	if err != nil {
		return "", err
	}
	res, err := Translate(ast, resourceType, d)
	if err != nil {
		return "", err
	}
	return Assemble(res.Fragments, d)
}

func (t *Translator) diag(format string, args ...any) {
	t.diags = append(t.diags, fmt.Sprintf(format, args...))
}

// resourceTable returns the quoted table holding the root resource type,
// one row per record with columns id and resource.
func (t *Translator) resourceTable() string {
	return t.d.QuoteIdentifier(strings.ToLower(t.ctx.ResourceType))
}

// emitBase emits the CTE selecting one row per source record.
func (t *Translator) emitBase() {
	name := t.ctx.NextName()
	t.frags = append(t.frags, Fragment{
		Name:        name,
		Expression:  fmt.Sprintf("SELECT id, resource AS element, 1 AS ord FROM %s", t.resourceTable()),
		SourceTable: t.resourceTable(),
	})
	t.ctx.BaseCTE = name
	t.ctx.Table = name
	t.ctx.CurrentType = t.ctx.ResourceType
}

// emitSimple appends a plain fragment defined by a full SELECT.
func (t *Translator) emitSimple(expression string, deps ...string) string {
	name := t.ctx.NextName()
	t.frags = append(t.frags, Fragment{
		Name:         name,
		Expression:   expression,
		SourceTable:  firstOr(deps, ""),
		Dependencies: deps,
	})
	t.ctx.Table = name
	return name
}

// emitUnnest appends a lateral-expansion fragment over arrayExpr, written
// against alias t of the source CTE.
func (t *Translator) emitUnnest(arrayExpr, source string) string {
	name := t.ctx.NextName()
	f := Fragment{
		Name:           name,
		Expression:     arrayExpr,
		SourceTable:    source,
		RequiresUnnest: true,
		Dependencies:   []string{source},
	}
	f.setMeta(MetaOrderingColumns, "t.ord")
	t.frags = append(t.frags, f)
	t.ctx.Table = name
	return name
}

// emitSubset appends a fragment filtering on the ordering column. The
// filter is written against alias t; "{src}" expands to the source name.
func (t *Translator) emitSubset(filter, source string) string {
	name := t.ctx.NextName()
	f := Fragment{
		Name:         name,
		SourceTable:  source,
		Dependencies: []string{source},
	}
	f.setMeta(MetaSubsetFilter, filter)
	f.setMeta(MetaCurrentElementColumn, t.ctx.ElementColumn)
	t.frags = append(t.frags, f)
	t.ctx.Table = name
	return name
}

// emitRecursive appends a self-referencing fragment. The expression refers
// to the fragment's own name, supplied to the caller for substitution.
func (t *Translator) emitRecursive(build func(self string) string, deps ...string) string {
	name := t.ctx.NextName()
	t.frags = append(t.frags, Fragment{
		Name:         name,
		Expression:   build(name),
		SourceTable:  firstOr(deps, ""),
		Recursive:    true,
		Dependencies: deps,
	})
	t.ctx.Table = name
	return name
}

func firstOr(items []string, fallback string) string {
	if len(items) > 0 {
		return items[0]
	}
	return fallback
}

// currentValue returns the SQL expression reading the current element value
// under the given row alias, applying any pending JSON path and choice
// coalescing.
func (t *Translator) currentValue(alias string) string {
	base := alias + "." + t.ctx.ElementColumn
	if t.ctx.Choice != nil {
		alts := make([]string, 0, len(t.ctx.Choice.alts))
		for _, alt := range t.ctx.Choice.alts {
			segs := append(append([]string{}, t.ctx.Path...), t.ctx.Choice.field+titleize(alt))
			alts = append(alts, t.d.ExtractJSONField(base, segs))
		}
		if len(alts) == 1 {
			return alts[0]
		}
		return "coalesce(" + strings.Join(alts, ", ") + ")"
	}
	if len(t.ctx.Path) > 0 {
		return t.d.ExtractJSONField(base, t.ctx.Path)
	}
	return base
}

// hasPending reports whether navigation state is waiting to be materialized.
func (t *Translator) hasPending() bool {
	return len(t.ctx.Path) > 0 || t.ctx.Choice != nil
}

// materialize flushes pending navigation into a CTE so the current
// collection is directly addressable as rows of (id, element, ord).
func (t *Translator) materialize() {
	if !t.hasPending() {
		return
	}
	val := t.currentValue("t")
	t.emitSimple(
		fmt.Sprintf("SELECT t.id, %s AS element, t.ord FROM %s t WHERE %s IS NOT NULL",
			val, t.ctx.Table, val),
		t.ctx.Table)
	t.ctx.Path = nil
	t.ctx.Choice = nil
}

// finalize emits the terminal fragment: pending navigation is flushed and
// primitive values are coalesced to their scalar form.
func (t *Translator) finalize() error {
	t.materializeValues()
	return nil
}

// visit dispatches over the closed node set.
func (t *Translator) visit(e fhirpath.Expr) error {
	switch n := e.(type) {
	case *fhirpath.BinaryOp:
		if n.Op == "." {
			if err := t.visit(n.Left); err != nil {
				return err
			}
			return t.visitSegment(n.Right)
		}
		return t.visitOperator(n)
	case *fhirpath.UnaryOp:
		return t.visitScalarRoot(n)
	case *fhirpath.Identifier:
		return t.visitIdentifier(n)
	case *fhirpath.Literal:
		return t.visitLiteral(n)
	case *fhirpath.FunctionCall:
		return t.visitFunction(n)
	case *fhirpath.TypeOp:
		return t.visitTypeOp(n)
	case *fhirpath.VarRef:
		return t.visitVarRef(n)
	case *fhirpath.ConstRef:
		return t.visitConstRef(n)
	case *fhirpath.IndexExpr:
		return t.visitIndex(n)
	case *fhirpath.ParenExpr:
		return t.visit(n.Expr)
	default:
		return newTranslationError(ErrParseAssumptionViolated, e.Source(),
			"unexpected AST node %T", e)
	}
}

// visitSegment handles the right side of a '.' operator.
func (t *Translator) visitSegment(e fhirpath.Expr) error {
	switch n := e.(type) {
	case *fhirpath.Identifier:
		return t.visitIdentifier(n)
	case *fhirpath.FunctionCall:
		return t.visitFunction(n)
	case *fhirpath.VarRef:
		return t.visitVarRef(n)
	default:
		return newTranslationError(ErrParseAssumptionViolated, e.Source(),
			"unexpected path segment %T", e)
	}
}

// atRoot reports whether navigation is still at the untouched root record.
func (t *Translator) atRoot() bool {
	return t.ctx.Table == t.ctx.BaseCTE && !t.hasPending() &&
		t.ctx.CurrentType == t.ctx.ResourceType
}

// visitIdentifier resolves one path segment against the current type.
func (t *Translator) visitIdentifier(n *fhirpath.Identifier) error {
	// The root resource type at the head of an expression is a no-op.
	if t.atRoot() && n.Name == t.ctx.ResourceType {
		return nil
	}

	// A pending choice must resolve before further navigation.
	if t.ctx.Choice != nil {
		t.materialize()
	}

	info, ok := t.reg.Element(t.ctx.CurrentType, n.Name)
	if !ok {
		if t.ctx.CurrentType != "" {
			t.diag("unknown element %s.%s, treated as complex", t.ctx.CurrentType, n.Name)
		}
		t.ctx.Path = append(t.ctx.Path, n.Name)
		t.ctx.CurrentType = ""
		t.currentKind = kindJSON
		return nil
	}

	if info.IsChoice() {
		t.ctx.Choice = &choiceState{field: n.Name, alts: info.Choice}
		t.ctx.CurrentType = info.Type
		t.currentKind = kindJSON
		return nil
	}

	if info.Array {
		segs := append(append([]string{}, t.ctx.Path...), n.Name)
		arrayExpr := t.d.ExtractJSONField("t."+t.ctx.ElementColumn, segs)
		t.emitUnnest(arrayExpr, t.ctx.Table)
		t.ctx.Path = nil
		t.ctx.ElementColumn = "element"
		t.ctx.CurrentType = info.Type
		t.currentKind = kindJSON
		return nil
	}

	t.ctx.Path = append(t.ctx.Path, n.Name)
	t.ctx.CurrentType = info.Type
	t.currentKind = kindJSON
	return nil
}

// visitLiteral starts a pipeline from a literal value: one row per source
// record carrying the constant.
func (t *Translator) visitLiteral(n *fhirpath.Literal) error {
	if n.Kind == fhirpath.LitEmpty {
		t.emitSimple(
			fmt.Sprintf("SELECT b.id, NULL AS element, 1 AS ord FROM %s b WHERE 1 = 0", t.ctx.BaseCTE),
			t.ctx.BaseCTE)
		t.ctx.CurrentType = ""
		t.currentKind = kindJSON
		return nil
	}

	sv, err := t.scalarLiteral(n)
	if err != nil {
		return err
	}
	t.emitSimple(
		fmt.Sprintf("SELECT b.id, %s AS element, 1 AS ord FROM %s b", sv.sql, t.ctx.BaseCTE),
		t.ctx.BaseCTE)
	t.ctx.CurrentType = literalTypeName(n)
	t.currentKind = sv.kind
	t.ctx.Path = nil
	t.ctx.Choice = nil
	return nil
}

// visitScalarRoot compiles a scalar-only expression (unary minus, pure
// literal arithmetic) as a per-record constant pipeline.
func (t *Translator) visitScalarRoot(e fhirpath.Expr) error {
	sv, err := t.scalar(e)
	if err != nil {
		return err
	}
	t.emitSimple(
		fmt.Sprintf("SELECT b.id, %s AS element, 1 AS ord FROM %s b", sv.sql, t.ctx.BaseCTE),
		t.ctx.BaseCTE)
	t.ctx.CurrentType = ""
	t.currentKind = sv.kind
	t.ctx.Path = nil
	t.ctx.Choice = nil
	return nil
}

// visitVarRef handles a lambda variable in pipeline position. $this refers
// to the current collection and is a no-op; any variable outside an active
// scope is fatal.
func (t *Translator) visitVarRef(n *fhirpath.VarRef) error {
	if !t.ctx.InScope() {
		return newTranslationError(ErrUnboundVariable, n.Source(),
			"variable $%s used outside any lambda scope", n.Name)
	}
	if n.Name == "this" {
		return nil
	}
	b, ok := t.ctx.LookupVar(n.Name)
	if !ok {
		return newTranslationError(ErrUnboundVariable, n.Source(),
			"variable $%s is not bound in this scope", n.Name)
	}
	t.emitSimple(
		fmt.Sprintf("SELECT t.id, %s AS element, t.ord FROM %s t", b.expr, t.ctx.Table),
		t.ctx.Table)
	t.ctx.CurrentType = b.typeName
	t.currentKind = b.kind
	return nil
}

// visitConstRef handles external constants. %resource restarts navigation
// at the root record.
func (t *Translator) visitConstRef(n *fhirpath.ConstRef) error {
	if n.Name == "resource" || n.Name == "rootResource" {
		t.ctx.Table = t.ctx.BaseCTE
		t.ctx.Path = nil
		t.ctx.Choice = nil
		t.ctx.ElementColumn = "element"
		t.ctx.CurrentType = t.ctx.ResourceType
		t.currentKind = kindJSON
		return nil
	}
	return newTranslationError(ErrUnsupportedExpression, n.Source(),
		"unknown external constant %%%s", n.Name)
}

// visitIndex implements collection indexing: filter on the ordinal.
func (t *Translator) visitIndex(n *fhirpath.IndexExpr) error {
	if err := t.visit(n.Target); err != nil {
		return err
	}
	t.materialize()

	idx, err := t.scalar(n.Index)
	if err != nil {
		return err
	}
	t.emitSubset(fmt.Sprintf("t.ord = (%s) + 1", idx.sql), t.ctx.Table)
	return nil
}

// visitTypeOp implements is/as; ofType() routes here as well.
func (t *Translator) visitTypeOp(n *fhirpath.TypeOp) error {
	if err := t.visit(n.Operand); err != nil {
		return err
	}
	return t.applyTypeOp(n.Op, n.TypeName, n.Source())
}

// applyTypeOp applies a type test or filter to the current collection.
func (t *Translator) applyTypeOp(op, typeName, source string) error {
	desc, known := t.reg.Lookup(typeName)
	if !known {
		t.diag("unknown type %s, treated as complex", typeName)
		desc = typemeta.Descriptor{Name: typeName, Family: typemeta.FamilyComplex}
	}

	// A pending choice element resolves directly to the suffixed field.
	if t.ctx.Choice != nil {
		ch := t.ctx.Choice
		if alt, ok := matchChoiceAlt(ch.alts, desc.Name); ok {
			segs := append(append([]string{}, t.ctx.Path...), ch.field+titleize(alt))
			val := t.d.ExtractJSONField("t."+t.ctx.ElementColumn, segs)
			switch op {
			case "is":
				t.emitSimple(
					fmt.Sprintf("SELECT t.id, %s IS NOT NULL AS element, 1 AS ord FROM %s t",
						val, t.ctx.Table),
					t.ctx.Table)
				t.ctx.CurrentType = "boolean"
				t.currentKind = kindBool
			default: // as, ofType
				t.emitSimple(
					fmt.Sprintf("SELECT t.id, %s AS element, t.ord FROM %s t WHERE %s IS NOT NULL",
						val, t.ctx.Table, val),
					t.ctx.Table)
				t.ctx.CurrentType = alt
				t.currentKind = kindJSON
			}
			t.ctx.Path = nil
			t.ctx.Choice = nil
			return nil
		}
		// No matching alternative: is → false, as/ofType → empty.
		t.materialize()
		if op == "is" {
			t.emitSimple(
				fmt.Sprintf("SELECT t.id, %s AS element, 1 AS ord FROM %s t",
					t.d.BoolLiteral(false), t.ctx.Table),
				t.ctx.Table)
			t.ctx.CurrentType = "boolean"
			t.currentKind = kindBool
			return nil
		}
		t.emitSimple(
			fmt.Sprintf("SELECT t.id, t.element, t.ord FROM %s t WHERE 1 = 0", t.ctx.Table),
			t.ctx.Table)
		return nil
	}

	t.materialize()
	pred, err := t.typePredicate("t.element", desc, known)
	if err != nil {
		return newTranslationError(ErrUnsupportedExpression, source, "%v", err)
	}

	if op == "is" {
		t.emitSimple(
			fmt.Sprintf("SELECT t.id, %s AS element, 1 AS ord FROM %s t", pred, t.ctx.Table),
			t.ctx.Table)
		t.ctx.CurrentType = "boolean"
		t.currentKind = kindBool
		return nil
	}

	t.emitSimple(
		fmt.Sprintf("SELECT t.id, t.element, row_number() OVER (PARTITION BY t.id ORDER BY t.ord) AS ord FROM %s t WHERE %s",
			t.ctx.Table, pred),
		t.ctx.Table)
	t.ctx.CurrentType = desc.Name
	t.currentKind = kindJSON
	return nil
}

// typePredicate builds the SQL test for membership in a type.
func (t *Translator) typePredicate(expr string, desc typemeta.Descriptor, known bool) (string, error) {
	if !known {
		return t.d.JSONTypePredicate(expr, "object"), nil
	}
	switch desc.Family {
	case typemeta.FamilyResource:
		tag := t.d.ExtractPrimitiveValue(t.d.ExtractJSONField(expr, []string{"resourceType"}))
		return fmt.Sprintf("%s = %s", tag, t.d.QuoteLiteral(desc.Name)), nil
	case typemeta.FamilyComplex:
		return t.d.JSONTypePredicate(expr, "object"), nil
	default:
		return t.primitiveTypePredicate(expr, desc.Name), nil
	}
}

// primitiveTypePredicate maps a FHIR primitive type onto a JSON kind test.
func (t *Translator) primitiveTypePredicate(expr, typeName string) string {
	switch typeName {
	case "boolean":
		return t.d.JSONTypePredicate(expr, "boolean")
	case "integer", "unsignedInt", "positiveInt":
		return t.d.JSONTypePredicate(expr, "integer")
	case "decimal":
		return t.d.JSONTypePredicate(expr, "decimal")
	default:
		// All remaining primitives are string-encoded.
		return t.d.JSONTypePredicate(expr, "string")
	}
}

// matchChoiceAlt finds the choice alternative matching a type name.
func matchChoiceAlt(alts []string, typeName string) (string, bool) {
	for _, alt := range alts {
		if strings.EqualFold(alt, typeName) {
			return alt, true
		}
	}
	return "", false
}

// titleize upper-cases the first rune, forming choice field suffixes.
func titleize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// literalTypeName maps a literal kind to its FHIR type name.
func literalTypeName(n *fhirpath.Literal) string {
	switch n.Kind {
	case fhirpath.LitBoolean:
		return "boolean"
	case fhirpath.LitString:
		return "string"
	case fhirpath.LitInteger:
		return "integer"
	case fhirpath.LitDecimal, fhirpath.LitQuantity:
		return "decimal"
	case fhirpath.LitDate:
		return "date"
	case fhirpath.LitDateTime:
		return "dateTime"
	case fhirpath.LitTime:
		return "time"
	default:
		return ""
	}
}
