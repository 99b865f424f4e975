package sqlgen

import "fmt"

// binding associates a lambda variable with the SQL expression that reads it
// and the FHIR type of the value it holds.
type binding struct {
	expr     string
	typeName string
	kind     valueKind
}

// scope is one frame of lambda variable bindings.
type scope struct {
	bindings map[string]binding
}

// choiceState tracks navigation into a polymorphic choice element
// (value[x]-style) whose concrete suffix is not yet known. A following type
// operation resolves it to one alternative; any other materialization
// coalesces over all alternatives.
type choiceState struct {
	field string
	alts  []string
}

// Context is the mutable per-compilation translation state. A fresh Context
// is created per Translate call; nothing persists across compilations.
type Context struct {
	// ResourceType is the root resource type of the compilation.
	ResourceType string
	// BaseCTE names the CTE holding one row per source record.
	BaseCTE string
	// Table is the CTE the current collection reads from; empty until the
	// base fragment is emitted.
	Table string
	// Path is the pending JSON path since the last materialization.
	Path []string
	// CurrentType is the FHIR type of the current element(s).
	CurrentType string
	// ElementColumn is the column holding the current element; set after
	// subset operations so later segments read the filtered row rather
	// than re-navigating JSON.
	ElementColumn string
	// Choice is the pending polymorphic element, if any.
	Choice *choiceState

	scopes  []scope
	counter int
}

// NewContext creates the per-compilation context for a resource type.
func NewContext(resourceType string) *Context {
	return &Context{
		ResourceType:  resourceType,
		ElementColumn: "element",
	}
}

// NextName returns the next unique CTE name.
func (c *Context) NextName() string {
	name := fmt.Sprintf("cte_%d", c.counter)
	c.counter++
	return name
}

// ScopeGuard pops a variable scope when released. Every push must be matched
// by exactly one release on all exit paths so sibling branches never observe
// each other's bindings.
type ScopeGuard struct {
	ctx      *Context
	depth    int
	released bool
}

// Release pops the scope. Safe to call once; repeated calls are no-ops.
func (g *ScopeGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	// Trimming to this guard's depth also discards any missed pops in
	// nested scopes.
	g.ctx.scopes = g.ctx.scopes[:g.depth-1]
}

// PushScope enters a new lambda scope with the given bindings.
func (c *Context) PushScope(bindings map[string]binding) *ScopeGuard {
	c.scopes = append(c.scopes, scope{bindings: bindings})
	return &ScopeGuard{ctx: c, depth: len(c.scopes)}
}

// LookupVar resolves a lambda variable against the scope stack, innermost
// first.
func (c *Context) LookupVar(name string) (binding, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if b, ok := c.scopes[i].bindings[name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

// InScope reports whether any lambda scope is active.
func (c *Context) InScope() bool {
	return len(c.scopes) > 0
}
