package sqlgen

import "fmt"

// ErrorKind classifies translation failures. All are fatal: compilation
// yields exactly one SQL string or exactly one typed error.
type ErrorKind int

const (
	// ErrParseAssumptionViolated indicates an AST shape inconsistent with
	// the parser contract.
	ErrParseAssumptionViolated ErrorKind = iota
	// ErrUnsupportedExpression indicates a valid construct the translator
	// does not implement.
	ErrUnsupportedExpression
	// ErrUnboundVariable indicates a lambda variable used outside any
	// active scope.
	ErrUnboundVariable
	// ErrInvalidLiteral indicates a malformed date, time, or number
	// literal.
	ErrInvalidLiteral
	// ErrRecursionLimitExceeded indicates the repeat() depth guard tripped
	// during translation.
	ErrRecursionLimitExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case ErrParseAssumptionViolated:
		return "parse assumption violated"
	case ErrUnsupportedExpression:
		return "unsupported expression"
	case ErrUnboundVariable:
		return "unbound variable"
	case ErrInvalidLiteral:
		return "invalid literal"
	case ErrRecursionLimitExceeded:
		return "recursion limit exceeded"
	default:
		return "translation error"
	}
}

// TranslationError represents a fatal error during AST translation. It
// carries the source text of the offending construct.
type TranslationError struct {
	Kind    ErrorKind
	Message string
	Expr    string // source text of the offending node
	Cause   error
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Expr != "" {
		msg += fmt.Sprintf(" in %q", e.Expr)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TranslationError) Unwrap() error {
	return e.Cause
}

func newTranslationError(kind ErrorKind, source, format string, args ...any) *TranslationError {
	return &TranslationError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Expr:    source,
	}
}

// AssemblyError represents an internal CTE dependency inconsistency.
// It signals a translator defect, not a user-facing condition.
type AssemblyError struct {
	Message string
	CTE     string
}

// Error implements the error interface.
func (e *AssemblyError) Error() string {
	if e.CTE != "" {
		return fmt.Sprintf("assembly error in %s: %s", e.CTE, e.Message)
	}
	return "assembly error: " + e.Message
}

func newAssemblyError(cte, format string, args ...any) *AssemblyError {
	return &AssemblyError{Message: fmt.Sprintf(format, args...), CTE: cte}
}
