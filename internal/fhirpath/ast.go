package fhirpath

// Node is the interface implemented by all AST nodes.
type Node interface {
	// Position returns the position of the first character of the node.
	Position() Position
	// Source returns the raw source text of the node.
	Source() string
	// nodeType returns a string identifying the node type for debugging.
	nodeType() string
}

// Expr is the interface implemented by all expression nodes. The node set is
// closed: the translator dispatches over it with an exhaustive type switch.
type Expr interface {
	Node
	exprNode()
}

// LiteralKind distinguishes the kinds of literal values.
type LiteralKind int

const (
	LitEmpty LiteralKind = iota // {} (empty collection)
	LitBoolean
	LitString
	LitInteger
	LitDecimal
	LitDate
	LitDateTime
	LitTime
	LitQuantity
)

// Literal represents a literal value.
type Literal struct {
	Pos  Position
	Kind LiteralKind
	// Value is the literal's normalized value: the unquoted string, the
	// digits of a number, or the temporal value without the '@' prefix.
	Value string
	// Unit is set for quantity literals (e.g. 4.5 'mg').
	Unit string
	Text string
}

func (n *Literal) Position() Position { return n.Pos }
func (n *Literal) Source() string     { return n.Text }
func (n *Literal) nodeType() string   { return "Literal" }
func (n *Literal) exprNode()          {}

// Identifier represents a single path segment (a field name, or the root
// resource type at the head of an expression).
type Identifier struct {
	Pos       Position
	Name      string
	Delimited bool // true for `name`-style delimited identifiers
}

func (n *Identifier) Position() Position { return n.Pos }
func (n *Identifier) Source() string     { return n.Name }
func (n *Identifier) nodeType() string   { return "Identifier" }
func (n *Identifier) exprNode()          {}

// BinaryOp represents a binary operation, including the path operator '.'.
type BinaryOp struct {
	Pos   Position
	Op    string
	Left  Expr
	Right Expr
	Text  string
}

func (n *BinaryOp) Position() Position { return n.Pos }
func (n *BinaryOp) Source() string     { return n.Text }
func (n *BinaryOp) nodeType() string   { return "BinaryOp" }
func (n *BinaryOp) exprNode()          {}

// UnaryOp represents a unary operation (-x, +x).
type UnaryOp struct {
	Pos     Position
	Op      string
	Operand Expr
	Text    string
}

func (n *UnaryOp) Position() Position { return n.Pos }
func (n *UnaryOp) Source() string     { return n.Text }
func (n *UnaryOp) nodeType() string   { return "UnaryOp" }
func (n *UnaryOp) exprNode()          {}

// FunctionCall represents a function invocation (fn(arg, ...)).
type FunctionCall struct {
	Pos  Position
	Name string
	Args []Expr
	Text string
}

func (n *FunctionCall) Position() Position { return n.Pos }
func (n *FunctionCall) Source() string     { return n.Text }
func (n *FunctionCall) nodeType() string   { return "FunctionCall" }
func (n *FunctionCall) exprNode()          {}

// TypeOp represents a type operation (expr is Type, expr as Type).
type TypeOp struct {
	Pos      Position
	Op       string // "is" or "as"
	Operand  Expr
	TypeName string
	Text     string
}

func (n *TypeOp) Position() Position { return n.Pos }
func (n *TypeOp) Source() string     { return n.Text }
func (n *TypeOp) nodeType() string   { return "TypeOp" }
func (n *TypeOp) exprNode()          {}

// VarRef represents a lambda variable reference ($this, $index, $total).
type VarRef struct {
	Pos  Position
	Name string // without the '$' prefix
}

func (n *VarRef) Position() Position { return n.Pos }
func (n *VarRef) Source() string     { return "$" + n.Name }
func (n *VarRef) nodeType() string   { return "VarRef" }
func (n *VarRef) exprNode()          {}

// ConstRef represents an external constant reference (%resource).
type ConstRef struct {
	Pos  Position
	Name string // without the '%' prefix
}

func (n *ConstRef) Position() Position { return n.Pos }
func (n *ConstRef) Source() string     { return "%" + n.Name }
func (n *ConstRef) nodeType() string   { return "ConstRef" }
func (n *ConstRef) exprNode()          {}

// IndexExpr represents collection indexing (expr[n]).
type IndexExpr struct {
	Pos    Position
	Target Expr
	Index  Expr
	Text   string
}

func (n *IndexExpr) Position() Position { return n.Pos }
func (n *IndexExpr) Source() string     { return n.Text }
func (n *IndexExpr) nodeType() string   { return "IndexExpr" }
func (n *IndexExpr) exprNode()          {}

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	Pos  Position
	Expr Expr
	Text string
}

func (n *ParenExpr) Position() Position { return n.Pos }
func (n *ParenExpr) Source() string     { return n.Text }
func (n *ParenExpr) nodeType() string   { return "ParenExpr" }
func (n *ParenExpr) exprNode()          {}
