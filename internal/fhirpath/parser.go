package fhirpath

import "strings"

// Parser parses a FHIRPath expression into an AST.
type Parser struct {
	input   string
	lexer   *Lexer
	current Token
	peek    Token
}

// NewParser creates a new parser for the given expression.
func NewParser(input string) *Parser {
	p := &Parser{
		input: input,
		lexer: NewLexer(input),
	}
	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the input as a complete expression.
func Parse(input string) (Expr, error) {
	p := NewParser(input)
	expr, err := p.ParseExpr()
	if err != nil {
		return nil, err
	}
	if !p.curIs(TokenEOF) {
		return nil, &ParseError{
			Message: "unexpected trailing input: " + p.current.Value,
			Pos:     p.current.Pos,
			Source:  input,
		}
	}
	return expr, nil
}

func (p *Parser) nextToken() {
	p.current = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) curIs(t TokenType) bool {
	return p.current.Type == t
}

func (p *Parser) expect(t TokenType) error {
	if !p.curIs(t) {
		err := NewExpectedError(TokenTypeName(t), TokenTypeName(p.current.Type), p.current.Pos)
		err.Source = p.input
		return err
	}
	p.nextToken()
	return nil
}

// textFrom returns the source text between a start position and the current
// token, with surrounding whitespace trimmed.
func (p *Parser) textFrom(start Position) string {
	end := p.current.Pos.Offset
	if end > len(p.input) {
		end = len(p.input)
	}
	if start.Offset >= end {
		return ""
	}
	return strings.TrimSpace(p.input[start.Offset:end])
}

// Operator precedence levels (higher = tighter binding).
const (
	precLowest     = 0
	precImplies    = 1
	precOrXor      = 2
	precAnd        = 3
	precMembership = 4
	precEquality   = 5
	precComparison = 6
	precUnion      = 7
	precType       = 8
	precAddSub     = 9
	precMulDiv     = 10
)

func precedence(t TokenType) int {
	switch t {
	case TokenImplies:
		return precImplies
	case TokenOr, TokenXor:
		return precOrXor
	case TokenAnd:
		return precAnd
	case TokenIn, TokenContains:
		return precMembership
	case TokenEq, TokenNe, TokenEquiv, TokenNequiv:
		return precEquality
	case TokenLt, TokenLe, TokenGt, TokenGe:
		return precComparison
	case TokenPipe:
		return precUnion
	case TokenIs, TokenAs:
		return precType
	case TokenPlus, TokenMinus, TokenAmp:
		return precAddSub
	case TokenStar, TokenSlash, TokenDiv, TokenMod:
		return precMulDiv
	default:
		return precLowest
	}
}

// ParseExpr parses a single expression.
func (p *Parser) ParseExpr() (Expr, error) {
	return p.parseExpr(precLowest)
}

// parseExpr is the Pratt parser entry point.
func (p *Parser) parseExpr(minPrec int) (Expr, error) {
	start := p.current.Pos

	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		prec := precedence(p.current.Type)
		if prec <= minPrec {
			return left, nil
		}

		// Type operators take a type specifier, not an expression.
		if p.curIs(TokenIs) || p.curIs(TokenAs) {
			op := p.current.Value
			p.nextToken()
			typeName, err := p.parseTypeSpecifier()
			if err != nil {
				return nil, err
			}
			left = &TypeOp{
				Pos:      start,
				Op:       op,
				Operand:  left,
				TypeName: typeName,
				Text:     p.textFrom(start),
			}
			continue
		}

		op := p.current.Value
		p.nextToken()
		right, err := p.parseExpr(prec)
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{
			Pos:   start,
			Op:    op,
			Left:  left,
			Right: right,
			Text:  p.textFrom(start),
		}
	}
}

// parseUnary parses a unary expression (-x, +x) or a postfix chain.
func (p *Parser) parseUnary() (Expr, error) {
	if p.curIs(TokenMinus) || p.curIs(TokenPlus) {
		start := p.current.Pos
		op := p.current.Value
		p.nextToken()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Pos: start, Op: op, Operand: operand, Text: p.textFrom(start)}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any number of path
// segments, function invocations, and indexers.
func (p *Parser) parsePostfix() (Expr, error) {
	start := p.current.Pos

	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.curIs(TokenDot):
			p.nextToken()
			seg, err := p.parseInvocation()
			if err != nil {
				return nil, err
			}
			expr = &BinaryOp{
				Pos:   start,
				Op:    ".",
				Left:  expr,
				Right: seg,
				Text:  p.textFrom(start),
			}
		case p.curIs(TokenLBracket):
			p.nextToken()
			idx, err := p.ParseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			expr = &IndexExpr{
				Pos:    start,
				Target: expr,
				Index:  idx,
				Text:   p.textFrom(start),
			}
		default:
			return expr, nil
		}
	}
}

// parseInvocation parses the segment after a '.': an identifier, a function
// call, or a lambda variable. Keywords double as ordinary member names here
// (e.g. name.contains(...), value.div).
func (p *Parser) parseInvocation() (Expr, error) {
	pos := p.current.Pos

	if p.curIs(TokenVariable) {
		name := p.current.Value
		p.nextToken()
		return &VarRef{Pos: pos, Name: name}, nil
	}

	name, delimited, ok := p.identLike()
	if !ok {
		err := NewExpectedError("identifier", TokenTypeName(p.current.Type), p.current.Pos)
		err.Source = p.input
		return nil, err
	}
	p.nextToken()

	if p.curIs(TokenLParen) {
		return p.parseCallArgs(pos, name)
	}
	return &Identifier{Pos: pos, Name: name, Delimited: delimited}, nil
}

// identLike reports whether the current token can serve as an identifier,
// returning its name. Keyword tokens are valid member and function names.
func (p *Parser) identLike() (name string, delimited, ok bool) {
	switch p.current.Type {
	case TokenIdent:
		return p.current.Value, false, true
	case TokenQIdent:
		return p.current.Value, true, true
	case TokenContains, TokenIs, TokenAs, TokenIn, TokenDiv, TokenMod,
		TokenAnd, TokenOr, TokenXor, TokenImplies, TokenTrue, TokenFalse:
		return p.current.Value, false, true
	default:
		return "", false, false
	}
}

// parseCallArgs parses '(' args ')' for a function whose name is consumed.
func (p *Parser) parseCallArgs(pos Position, name string) (Expr, error) {
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var args []Expr
	if !p.curIs(TokenRParen) {
		for {
			arg, err := p.ParseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.curIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	return &FunctionCall{
		Pos:  pos,
		Name: name,
		Args: args,
		Text: p.textFrom(pos),
	}, nil
}

// parsePrimary parses a literal, identifier, function call, variable,
// constant, parenthesized expression, or empty collection.
func (p *Parser) parsePrimary() (Expr, error) {
	pos := p.current.Pos

	switch p.current.Type {
	case TokenString:
		lit := &Literal{Pos: pos, Kind: LitString, Value: p.current.Value, Text: p.current.Literal}
		p.nextToken()
		return lit, nil

	case TokenNumber:
		return p.parseNumberOrQuantity()

	case TokenTrue, TokenFalse:
		lit := &Literal{Pos: pos, Kind: LitBoolean, Value: p.current.Value, Text: p.current.Value}
		p.nextToken()
		return lit, nil

	case TokenDate:
		lit := &Literal{Pos: pos, Kind: LitDate, Value: p.current.Value, Text: p.current.Literal}
		p.nextToken()
		return lit, nil

	case TokenDateTime:
		lit := &Literal{Pos: pos, Kind: LitDateTime, Value: p.current.Value, Text: p.current.Literal}
		p.nextToken()
		return lit, nil

	case TokenTime:
		lit := &Literal{Pos: pos, Kind: LitTime, Value: p.current.Value, Text: p.current.Literal}
		p.nextToken()
		return lit, nil

	case TokenVariable:
		v := &VarRef{Pos: pos, Name: p.current.Value}
		p.nextToken()
		return v, nil

	case TokenConstant:
		c := &ConstRef{Pos: pos, Name: p.current.Value}
		p.nextToken()
		return c, nil

	case TokenLBrace:
		p.nextToken()
		if err := p.expect(TokenRBrace); err != nil {
			return nil, err
		}
		return &Literal{Pos: pos, Kind: LitEmpty, Text: "{}"}, nil

	case TokenLParen:
		p.nextToken()
		inner, err := p.ParseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &ParenExpr{Pos: pos, Expr: inner, Text: p.textFrom(pos)}, nil
	}

	if name, delimited, ok := p.identLike(); ok {
		p.nextToken()
		if p.curIs(TokenLParen) {
			return p.parseCallArgs(pos, name)
		}
		return &Identifier{Pos: pos, Name: name, Delimited: delimited}, nil
	}

	err := NewParseError("unexpected token "+TokenTypeName(p.current.Type), p.current.Pos)
	err.Source = p.input
	return nil, err
}

// calendar units usable as quantity units without quoting.
var calendarUnits = map[string]bool{
	"year": true, "years": true,
	"month": true, "months": true,
	"week": true, "weeks": true,
	"day": true, "days": true,
	"hour": true, "hours": true,
	"minute": true, "minutes": true,
	"second": true, "seconds": true,
	"millisecond": true, "milliseconds": true,
}

// parseNumberOrQuantity parses a numeric literal, promoting it to a quantity
// when a unit follows (4.5 'mg', 6 days).
func (p *Parser) parseNumberOrQuantity() (Expr, error) {
	pos := p.current.Pos
	value := p.current.Value
	text := p.current.Literal
	kind := LitInteger
	if strings.Contains(value, ".") {
		kind = LitDecimal
	}
	p.nextToken()

	if p.curIs(TokenString) {
		unit := p.current.Value
		full := text + " " + p.current.Literal
		p.nextToken()
		return &Literal{Pos: pos, Kind: LitQuantity, Value: value, Unit: unit, Text: full}, nil
	}
	if p.curIs(TokenIdent) && calendarUnits[p.current.Value] {
		unit := p.current.Value
		full := text + " " + unit
		p.nextToken()
		return &Literal{Pos: pos, Kind: LitQuantity, Value: value, Unit: unit, Text: full}, nil
	}

	return &Literal{Pos: pos, Kind: kind, Value: value, Text: text}, nil
}

// parseTypeSpecifier parses a possibly qualified type name (Patient,
// FHIR.Patient, System.String).
func (p *Parser) parseTypeSpecifier() (string, error) {
	name, _, ok := p.identLike()
	if !ok {
		err := NewExpectedError("type name", TokenTypeName(p.current.Type), p.current.Pos)
		err.Source = p.input
		return "", err
	}
	p.nextToken()

	parts := []string{name}
	for p.curIs(TokenDot) {
		p.nextToken()
		part, _, ok := p.identLike()
		if !ok {
			err := NewExpectedError("type name", TokenTypeName(p.current.Type), p.current.Pos)
			err.Source = p.input
			return "", err
		}
		p.nextToken()
		parts = append(parts, part)
	}
	return strings.Join(parts, "."), nil
}
