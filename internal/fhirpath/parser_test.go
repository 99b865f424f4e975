package fhirpath

import (
	"testing"
)

func parseOrFail(t *testing.T, input string) Expr {
	t.Helper()
	expr, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", input, err)
	}
	return expr
}

func TestParse_PathChain(t *testing.T) {
	expr := parseOrFail(t, "Patient.name.given")

	outer, ok := expr.(*BinaryOp)
	if !ok || outer.Op != "." {
		t.Fatalf("expected dot chain, got %T", expr)
	}
	right, ok := outer.Right.(*Identifier)
	if !ok || right.Name != "given" {
		t.Fatalf("rightmost segment = %v, want given", outer.Right)
	}
	inner, ok := outer.Left.(*BinaryOp)
	if !ok || inner.Op != "." {
		t.Fatalf("expected nested dot, got %T", outer.Left)
	}
	if head, ok := inner.Left.(*Identifier); !ok || head.Name != "Patient" {
		t.Fatalf("head = %v, want Patient", inner.Left)
	}
}

func TestParse_FunctionCall(t *testing.T) {
	expr := parseOrFail(t, "name.where(use = 'official')")

	dot := expr.(*BinaryOp)
	call, ok := dot.Right.(*FunctionCall)
	if !ok {
		t.Fatalf("expected function call, got %T", dot.Right)
	}
	if call.Name != "where" || len(call.Args) != 1 {
		t.Fatalf("call = %s/%d args, want where/1", call.Name, len(call.Args))
	}
	pred, ok := call.Args[0].(*BinaryOp)
	if !ok || pred.Op != "=" {
		t.Fatalf("criteria = %v, want equality", call.Args[0])
	}
}

func TestParse_Precedence(t *testing.T) {
	// 'and' binds looser than '=', so the root must be 'and'.
	expr := parseOrFail(t, "a = 1 and b = 2")
	root, ok := expr.(*BinaryOp)
	if !ok || root.Op != "and" {
		t.Fatalf("root = %v, want and", expr)
	}
	if l, ok := root.Left.(*BinaryOp); !ok || l.Op != "=" {
		t.Fatalf("left = %v, want equality", root.Left)
	}

	// '*' binds tighter than '+'.
	expr = parseOrFail(t, "1 + 2 * 3")
	root = expr.(*BinaryOp)
	if root.Op != "+" {
		t.Fatalf("root op = %s, want +", root.Op)
	}
	if r, ok := root.Right.(*BinaryOp); !ok || r.Op != "*" {
		t.Fatalf("right = %v, want multiplication", root.Right)
	}
}

func TestParse_UnionPrecedence(t *testing.T) {
	// '|' binds tighter than '='.
	expr := parseOrFail(t, "a | b = c")
	root := expr.(*BinaryOp)
	if root.Op != "=" {
		t.Fatalf("root op = %s, want =", root.Op)
	}
	if l, ok := root.Left.(*BinaryOp); !ok || l.Op != "|" {
		t.Fatalf("left = %v, want union", root.Left)
	}
}

func TestParse_Indexer(t *testing.T) {
	expr := parseOrFail(t, "name[0].given")
	dot := expr.(*BinaryOp)
	idx, ok := dot.Left.(*IndexExpr)
	if !ok {
		t.Fatalf("expected indexer, got %T", dot.Left)
	}
	lit, ok := idx.Index.(*Literal)
	if !ok || lit.Kind != LitInteger || lit.Value != "0" {
		t.Fatalf("index = %v, want integer 0", idx.Index)
	}
}

func TestParse_TypeOperators(t *testing.T) {
	expr := parseOrFail(t, "value is Quantity")
	op, ok := expr.(*TypeOp)
	if !ok || op.Op != "is" || op.TypeName != "Quantity" {
		t.Fatalf("got %v, want is Quantity", expr)
	}

	expr = parseOrFail(t, "value as FHIR.Quantity")
	op = expr.(*TypeOp)
	if op.Op != "as" || op.TypeName != "FHIR.Quantity" {
		t.Fatalf("got %s %s, want as FHIR.Quantity", op.Op, op.TypeName)
	}
}

func TestParse_KeywordsAsMemberNames(t *testing.T) {
	// 'contains' is an operator keyword but also a valid member/function.
	expr := parseOrFail(t, "name.contains('Pete')")
	dot := expr.(*BinaryOp)
	call, ok := dot.Right.(*FunctionCall)
	if !ok || call.Name != "contains" {
		t.Fatalf("got %v, want contains() call", dot.Right)
	}

	expr = parseOrFail(t, "CodeSystem.contains")
	dot = expr.(*BinaryOp)
	id, ok := dot.Right.(*Identifier)
	if !ok || id.Name != "contains" {
		t.Fatalf("got %v, want contains member", dot.Right)
	}
}

func TestParse_Literals(t *testing.T) {
	tests := []struct {
		input string
		kind  LiteralKind
		value string
		unit  string
	}{
		{"'abc'", LitString, "abc", ""},
		{"42", LitInteger, "42", ""},
		{"3.14", LitDecimal, "3.14", ""},
		{"true", LitBoolean, "true", ""},
		{"@2013-01-02", LitDate, "2013-01-02", ""},
		{"@2015-02-04T14:34:28", LitDateTime, "2015-02-04T14:34:28", ""},
		{"@T14:34", LitTime, "14:34", ""},
		{"4.5 'mg'", LitQuantity, "4.5", "mg"},
		{"6 days", LitQuantity, "6", "days"},
		{"{}", LitEmpty, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr := parseOrFail(t, tt.input)
			lit, ok := expr.(*Literal)
			if !ok {
				t.Fatalf("got %T, want literal", expr)
			}
			if lit.Kind != tt.kind || lit.Value != tt.value || lit.Unit != tt.unit {
				t.Errorf("got (%d, %q, %q), want (%d, %q, %q)",
					lit.Kind, lit.Value, lit.Unit, tt.kind, tt.value, tt.unit)
			}
		})
	}
}

func TestParse_Variables(t *testing.T) {
	expr := parseOrFail(t, "where($this = 'x')")
	call := expr.(*FunctionCall)
	pred := call.Args[0].(*BinaryOp)
	v, ok := pred.Left.(*VarRef)
	if !ok || v.Name != "this" {
		t.Fatalf("got %v, want $this", pred.Left)
	}
}

func TestParse_ExternalConstant(t *testing.T) {
	expr := parseOrFail(t, "%resource.id")
	dot := expr.(*BinaryOp)
	c, ok := dot.Left.(*ConstRef)
	if !ok || c.Name != "resource" {
		t.Fatalf("got %v, want %%resource", dot.Left)
	}
}

func TestParse_UnaryMinus(t *testing.T) {
	expr := parseOrFail(t, "-5")
	u, ok := expr.(*UnaryOp)
	if !ok || u.Op != "-" {
		t.Fatalf("got %v, want unary minus", expr)
	}
}

func TestParse_Parenthesized(t *testing.T) {
	expr := parseOrFail(t, "(1 | 2 | 3).count()")
	dot := expr.(*BinaryOp)
	if _, ok := dot.Left.(*ParenExpr); !ok {
		t.Fatalf("got %T, want parenthesized group", dot.Left)
	}
	call := dot.Right.(*FunctionCall)
	if call.Name != "count" {
		t.Fatalf("got %s, want count", call.Name)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []string{
		"",
		"name.",
		"name..given",
		"where(",
		"a = ",
		"name[0",
		"(a",
		"1 2",
		"value is",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) should fail", input)
			}
		})
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	_, err := Parse("name..given")
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("got %T, want *ParseError", err)
	}
	if pe.Pos.Offset != 5 {
		t.Errorf("error offset = %d, want 5", pe.Pos.Offset)
	}
}
