package fhirpath

import (
	"fmt"
	"strings"
)

// ParseError represents a parsing error with position information.
type ParseError struct {
	Message  string
	Pos      Position
	Source   string // the expression being parsed
	Expected string
	Got      string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Pos.Column > 0 {
		return fmt.Sprintf("parse error at column %d: %s", e.Pos.Column, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// Verbose returns a detailed error message with source context.
func (e *ParseError) Verbose() string {
	var sb strings.Builder

	sb.WriteString(e.Error())
	sb.WriteString("\n")

	if e.Source != "" && e.Pos.Column > 0 {
		sb.WriteString("  ")
		sb.WriteString(e.Source)
		sb.WriteString("\n  ")
		for i := 1; i < e.Pos.Column; i++ {
			sb.WriteString(" ")
		}
		sb.WriteString("^\n")
	}

	if e.Expected != "" && e.Got != "" {
		sb.WriteString(fmt.Sprintf("  expected: %s\n", e.Expected))
		sb.WriteString(fmt.Sprintf("  got: %s\n", e.Got))
	}

	return sb.String()
}

// NewParseError creates a new parse error.
func NewParseError(message string, pos Position) *ParseError {
	return &ParseError{Message: message, Pos: pos}
}

// NewExpectedError creates a parse error for an unexpected token.
func NewExpectedError(expected, got string, pos Position) *ParseError {
	return &ParseError{
		Message:  fmt.Sprintf("expected %s, got %s", expected, got),
		Pos:      pos,
		Expected: expected,
		Got:      got,
	}
}
