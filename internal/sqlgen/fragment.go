package sqlgen

// Metadata keys attached to fragments.
const (
	// MetaSubsetFilter holds a predicate over the ordering column (alias t)
	// realized by the assembler; "{src}" expands to the source CTE name.
	MetaSubsetFilter = "subset_filter"
	// MetaOrderingColumns holds the comma-separated ordering prefix carried
	// into an unnest fragment's row numbering.
	MetaOrderingColumns = "ordering_columns"
	// MetaCurrentElementColumn names the column subsequent segments read
	// after a subset operation.
	MetaCurrentElementColumn = "current_element_column"
)

// Fragment is one composable piece of the compiled query. Every fragment
// becomes a CTE with the uniform schema (id, element, ord): one row per
// collection element, ord sequential per owning record.
type Fragment struct {
	// Name is the CTE name, unique within one compilation.
	Name string
	// Expression is the full defining SELECT for plain fragments, or the
	// JSON array expression (written against alias t) for unnest fragments.
	Expression string
	// SourceTable is the upstream CTE or table this fragment reads.
	SourceTable string
	// RequiresUnnest selects the assembler's lateral-expansion wrap.
	RequiresUnnest bool
	// IsAggregate marks fragments that collapse the row stream back to one
	// row per record.
	IsAggregate bool
	// Recursive marks fragments whose expression references their own name.
	Recursive bool
	// Dependencies lists the CTE names this fragment reads, in order.
	Dependencies []string
	// Metadata carries assembler directives; see the Meta* keys.
	Metadata map[string]string
}

func (f *Fragment) meta(key string) string {
	if f.Metadata == nil {
		return ""
	}
	return f.Metadata[key]
}

func (f *Fragment) setMeta(key, value string) {
	if f.Metadata == nil {
		f.Metadata = make(map[string]string)
	}
	f.Metadata[key] = value
}
