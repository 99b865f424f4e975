package fhirpath

import "strings"

// Lexer tokenizes a FHIRPath expression.
type Lexer struct {
	input   string
	pos     int // current position in input
	readPos int // reading position (after current char)
	ch      byte
	col     int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.col++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Column: l.col}
}

// NextToken returns the next token in the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}
	case l.ch == '(':
		l.readChar()
		return Token{Type: TokenLParen, Value: "(", Pos: pos}
	case l.ch == ')':
		l.readChar()
		return Token{Type: TokenRParen, Value: ")", Pos: pos}
	case l.ch == '[':
		l.readChar()
		return Token{Type: TokenLBracket, Value: "[", Pos: pos}
	case l.ch == ']':
		l.readChar()
		return Token{Type: TokenRBracket, Value: "]", Pos: pos}
	case l.ch == '{':
		l.readChar()
		return Token{Type: TokenLBrace, Value: "{", Pos: pos}
	case l.ch == '}':
		l.readChar()
		return Token{Type: TokenRBrace, Value: "}", Pos: pos}
	case l.ch == ',':
		l.readChar()
		return Token{Type: TokenComma, Value: ",", Pos: pos}
	case l.ch == '.':
		l.readChar()
		return Token{Type: TokenDot, Value: ".", Pos: pos}
	case l.ch == '+':
		l.readChar()
		return Token{Type: TokenPlus, Value: "+", Pos: pos}
	case l.ch == '-':
		l.readChar()
		return Token{Type: TokenMinus, Value: "-", Pos: pos}
	case l.ch == '*':
		l.readChar()
		return Token{Type: TokenStar, Value: "*", Pos: pos}
	case l.ch == '/':
		l.readChar()
		return Token{Type: TokenSlash, Value: "/", Pos: pos}
	case l.ch == '&':
		l.readChar()
		return Token{Type: TokenAmp, Value: "&", Pos: pos}
	case l.ch == '|':
		l.readChar()
		return Token{Type: TokenPipe, Value: "|", Pos: pos}
	case l.ch == '=':
		l.readChar()
		return Token{Type: TokenEq, Value: "=", Pos: pos}
	case l.ch == '~':
		l.readChar()
		return Token{Type: TokenEquiv, Value: "~", Pos: pos}
	case l.ch == '!':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenNe, Value: "!=", Pos: pos}
		}
		if l.peekChar() == '~' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenNequiv, Value: "!~", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenError, Value: "!", Pos: pos}
	case l.ch == '<':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenLe, Value: "<=", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenLt, Value: "<", Pos: pos}
	case l.ch == '>':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenGe, Value: ">=", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenGt, Value: ">", Pos: pos}
	case l.ch == '\'':
		return l.readString()
	case l.ch == '`':
		return l.readDelimitedIdentifier()
	case l.ch == '@':
		return l.readTemporal()
	case l.ch == '$':
		return l.readVariable()
	case l.ch == '%':
		return l.readConstant()
	case isDigit(l.ch):
		return l.readNumber()
	case isIdentStart(l.ch):
		return l.readIdentifier()
	default:
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Value: string(ch), Pos: pos}
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != 0 && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for l.ch != 0 {
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar()
					l.readChar()
					break
				}
				l.readChar()
			}
		default:
			return
		}
	}
}

// readString reads a single-quoted string literal with escape sequences.
func (l *Lexer) readString() Token {
	pos := l.position()
	start := l.pos
	l.readChar() // consume opening quote

	var sb strings.Builder
	for l.ch != 0 && l.ch != '\'' {
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case '\'':
				sb.WriteByte('\'')
			case '"':
				sb.WriteByte('"')
			case '`':
				sb.WriteByte('`')
			case '\\':
				sb.WriteByte('\\')
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'f':
				sb.WriteByte('\f')
			default:
				sb.WriteByte(l.ch)
			}
			l.readChar()
			continue
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}

	if l.ch != '\'' {
		return Token{Type: TokenError, Value: "unterminated string", Pos: pos}
	}
	l.readChar() // consume closing quote

	return Token{Type: TokenString, Value: sb.String(), Pos: pos, Literal: l.input[start:l.pos]}
}

// readDelimitedIdentifier reads a backtick-delimited identifier.
func (l *Lexer) readDelimitedIdentifier() Token {
	pos := l.position()
	start := l.pos
	l.readChar() // consume opening backtick

	var sb strings.Builder
	for l.ch != 0 && l.ch != '`' {
		sb.WriteByte(l.ch)
		l.readChar()
	}

	if l.ch != '`' {
		return Token{Type: TokenError, Value: "unterminated identifier", Pos: pos}
	}
	l.readChar()

	return Token{Type: TokenQIdent, Value: sb.String(), Pos: pos, Literal: l.input[start:l.pos]}
}

// readTemporal reads a date, datetime, or time literal introduced by '@'.
func (l *Lexer) readTemporal() Token {
	pos := l.position()
	start := l.pos
	l.readChar() // consume '@'

	isTime := false
	if l.ch == 'T' {
		isTime = true
		l.readChar()
	}

	for isDigit(l.ch) || l.ch == '-' || l.ch == ':' || l.ch == '.' || l.ch == '+' || l.ch == 'Z' || l.ch == 'T' {
		if l.ch == 'T' {
			isTime = true // datetime separator; partial time may follow
		}
		// A '+' can only continue a timezone offset inside a datetime.
		if l.ch == '+' && !strings.Contains(l.input[start:l.pos], "T") {
			break
		}
		l.readChar()
	}

	text := l.input[start:l.pos]
	value := text[1:] // drop '@'

	if strings.HasPrefix(value, "T") {
		return Token{Type: TokenTime, Value: value[1:], Pos: pos, Literal: text}
	}
	if isTime {
		return Token{Type: TokenDateTime, Value: value, Pos: pos, Literal: text}
	}
	return Token{Type: TokenDate, Value: value, Pos: pos, Literal: text}
}

// readVariable reads a lambda variable ($this, $index, $total).
func (l *Lexer) readVariable() Token {
	pos := l.position()
	start := l.pos
	l.readChar() // consume '$'
	for isIdentPart(l.ch) {
		l.readChar()
	}
	text := l.input[start:l.pos]
	return Token{Type: TokenVariable, Value: text[1:], Pos: pos, Literal: text}
}

// readConstant reads an external constant reference (%resource, %'us-core').
func (l *Lexer) readConstant() Token {
	pos := l.position()
	start := l.pos
	l.readChar() // consume '%'
	if l.ch == '\'' {
		str := l.readString()
		if str.Type == TokenError {
			return str
		}
		return Token{Type: TokenConstant, Value: str.Value, Pos: pos, Literal: l.input[start:l.pos]}
	}
	for isIdentPart(l.ch) {
		l.readChar()
	}
	text := l.input[start:l.pos]
	return Token{Type: TokenConstant, Value: text[1:], Pos: pos, Literal: text}
}

// readNumber reads an integer or decimal literal.
func (l *Lexer) readNumber() Token {
	pos := l.position()
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	text := l.input[start:l.pos]
	return Token{Type: TokenNumber, Value: text, Pos: pos, Literal: text}
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier() Token {
	pos := l.position()
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	text := l.input[start:l.pos]
	if t, ok := keywords[text]; ok {
		return Token{Type: t, Value: text, Pos: pos, Literal: text}
	}
	return Token{Type: TokenIdent, Value: text, Pos: pos, Literal: text}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
