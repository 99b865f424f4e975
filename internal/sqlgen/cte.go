package sqlgen

import (
	"fmt"
	"strings"

	"github.com/markb/fhirsql/internal/dialect"
)

// Assemble stitches translated fragments into a single SQL statement: a
// WITH chain in fragment order followed by the final projection. Fragment
// names must be unique and may only reference fragments defined earlier;
// a fragment may reference itself only when flagged recursive.
func Assemble(frags []Fragment, d dialect.Dialect) (string, error) {
	if len(frags) == 0 {
		return "", newAssemblyError("", "no fragments to assemble")
	}

	defined := make(map[string]bool, len(frags))
	recursive := false
	var b strings.Builder

	for i, f := range frags {
		if f.Name == "" {
			return "", newAssemblyError("", "fragment %d has no name", i)
		}
		if defined[f.Name] {
			return "", newAssemblyError(f.Name, "duplicate fragment name %s", f.Name)
		}
		for _, dep := range f.Dependencies {
			if dep == f.Name {
				if !f.Recursive {
					return "", newAssemblyError(f.Name,
						"%s references itself without being recursive", f.Name)
				}
				continue
			}
			if !defined[dep] {
				return "", newAssemblyError(f.Name,
					"%s references %s before its definition", f.Name, dep)
			}
		}
		if f.Recursive {
			recursive = true
		}

		body, err := renderFragment(&f, d)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "%s AS (\n%s\n)", f.Name, indent(body))
		defined[f.Name] = true
	}

	keyword := "WITH"
	if recursive {
		keyword = "WITH RECURSIVE"
	}
	last := frags[len(frags)-1].Name
	return fmt.Sprintf("%s %s\nSELECT id, element AS value FROM %s ORDER BY id, ord",
		keyword, b.String(), last), nil
}

// renderFragment expands a fragment into its full SELECT body.
func renderFragment(f *Fragment, d dialect.Dialect) (string, error) {
	if filter := f.meta(MetaSubsetFilter); filter != "" {
		if f.SourceTable == "" {
			return "", newAssemblyError(f.Name, "%s filters without a source", f.Name)
		}
		filter = strings.ReplaceAll(filter, "{src}", f.SourceTable)
		elem := f.meta(MetaCurrentElementColumn)
		if elem == "" {
			elem = "element"
		}
		return fmt.Sprintf(
			"SELECT t.id, t.%s, row_number() OVER (PARTITION BY t.id ORDER BY t.ord) AS ord FROM %s t WHERE %s",
			elem, f.SourceTable, filter), nil
	}

	if f.RequiresUnnest {
		if f.SourceTable == "" {
			return "", newAssemblyError(f.Name, "%s unnests without a source", f.Name)
		}
		un := d.UnnestJSONArray(f.Expression)
		ordering := f.meta(MetaOrderingColumns)
		if ordering == "" {
			ordering = "t.ord"
		}
		return fmt.Sprintf(
			"SELECT t.id, %s AS element, row_number() OVER (PARTITION BY t.id ORDER BY %s, %s) AS ord FROM %s t %s",
			un.Value, ordering, un.Ordinal, f.SourceTable, un.Join), nil
	}

	if f.Expression == "" {
		return "", newAssemblyError(f.Name, "%s has no expression", f.Name)
	}
	return f.Expression, nil
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
