// Package fhirpath provides lexing and parsing of FHIRPath expressions.
package fhirpath

import "fmt"

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenIdent    // identifier (unquoted)
	TokenQIdent   // delimited identifier (`name`)
	TokenString   // string literal ('value')
	TokenNumber   // numeric literal (123, 45.67)
	TokenDate     // date literal (@2020-03-05)
	TokenDateTime // datetime literal (@2020-03-05T10:30:00Z)
	TokenTime     // time literal (@T14:30)
	TokenVariable // lambda variable ($this, $index, $total)
	TokenConstant // external constant (%resource)

	// Operators
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenAmp     // &
	TokenPipe    // |
	TokenEq      // =
	TokenNe      // !=
	TokenEquiv   // ~
	TokenNequiv  // !~
	TokenLt      // <
	TokenLe      // <=
	TokenGt      // >
	TokenGe      // >=

	// Punctuation
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }
	TokenComma    // ,
	TokenDot      // .

	// Keywords
	TokenAnd
	TokenOr
	TokenXor
	TokenImplies
	TokenIs
	TokenAs
	TokenIn
	TokenContains
	TokenDiv
	TokenMod
	TokenTrue
	TokenFalse
)

// Token represents a lexical token with its position.
type Token struct {
	Type    TokenType
	Value   string
	Pos     Position
	Literal string // original source text, including quoting
}

// Position represents a position in the source expression.
type Position struct {
	Offset int // byte offset
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("col %d", p.Column)
}

// keywords maps keyword strings to token types. FHIRPath keywords are
// case-sensitive.
var keywords = map[string]TokenType{
	"and":      TokenAnd,
	"or":       TokenOr,
	"xor":      TokenXor,
	"implies":  TokenImplies,
	"is":       TokenIs,
	"as":       TokenAs,
	"in":       TokenIn,
	"contains": TokenContains,
	"div":      TokenDiv,
	"mod":      TokenMod,
	"true":     TokenTrue,
	"false":    TokenFalse,
}

// tokenNames maps token types to human-readable names for error messages.
var tokenNames = map[TokenType]string{
	TokenEOF:      "end of expression",
	TokenError:    "error",
	TokenIdent:    "identifier",
	TokenQIdent:   "delimited identifier",
	TokenString:   "string",
	TokenNumber:   "number",
	TokenDate:     "date",
	TokenDateTime: "datetime",
	TokenTime:     "time",
	TokenVariable: "variable",
	TokenConstant: "constant",
	TokenPlus:     "'+'",
	TokenMinus:    "'-'",
	TokenStar:     "'*'",
	TokenSlash:    "'/'",
	TokenAmp:      "'&'",
	TokenPipe:     "'|'",
	TokenEq:       "'='",
	TokenNe:       "'!='",
	TokenEquiv:    "'~'",
	TokenNequiv:   "'!~'",
	TokenLt:       "'<'",
	TokenLe:       "'<='",
	TokenGt:       "'>'",
	TokenGe:       "'>='",
	TokenLParen:   "'('",
	TokenRParen:   "')'",
	TokenLBracket: "'['",
	TokenRBracket: "']'",
	TokenLBrace:   "'{'",
	TokenRBrace:   "'}'",
	TokenComma:    "','",
	TokenDot:      "'.'",
	TokenAnd:      "'and'",
	TokenOr:       "'or'",
	TokenXor:      "'xor'",
	TokenImplies:  "'implies'",
	TokenIs:       "'is'",
	TokenAs:       "'as'",
	TokenIn:       "'in'",
	TokenContains: "'contains'",
	TokenDiv:      "'div'",
	TokenMod:      "'mod'",
	TokenTrue:     "'true'",
	TokenFalse:    "'false'",
}

// TokenTypeName returns a human-readable name for a token type.
func TokenTypeName(t TokenType) string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}
