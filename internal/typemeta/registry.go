// Package typemeta provides the read-only FHIR type registry used during
// translation. The registry is loaded once from an embedded catalog and is
// safe for concurrent reads without locking.
package typemeta

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed catalog.json
var catalogData []byte

// Family classifies a type as primitive, complex, or resource.
type Family int

const (
	FamilyPrimitive Family = iota
	FamilyComplex
	FamilyResource
)

func (f Family) String() string {
	switch f {
	case FamilyPrimitive:
		return "primitive"
	case FamilyComplex:
		return "complex"
	case FamilyResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Descriptor describes a single type.
type Descriptor struct {
	Name   string
	Family Family
	Parent string
}

// ElementInfo describes one element (field) of a complex or resource type.
type ElementInfo struct {
	// Type is the element's declared type. For choice elements it is the
	// first alternative and serves as the default.
	Type string
	// Array reports whether the element has cardinality 0..*.
	Array bool
	// Choice lists the type alternatives of a value[x]-style element;
	// empty for monomorphic elements.
	Choice []string
}

// IsChoice reports whether the element is a polymorphic choice element.
func (e ElementInfo) IsChoice() bool {
	return len(e.Choice) > 0
}

// Registry is the immutable type catalog.
type Registry struct {
	types    map[string]Descriptor
	elements map[string]map[string]ElementInfo
}

type catalogType struct {
	Name     string `json:"name"`
	Family   string `json:"family"`
	Parent   string `json:"parent"`
	Elements map[string]struct {
		Type   string   `json:"type"`
		Array  bool     `json:"array"`
		Choice []string `json:"choice"`
	} `json:"elements"`
}

type catalogFile struct {
	Types []catalogType `json:"types"`
}

var (
	defaultRegistry *Registry
	loadOnce        sync.Once
	loadErr         error
)

// Default returns the shared registry loaded from the embedded catalog.
func Default() *Registry {
	loadOnce.Do(func() {
		defaultRegistry, loadErr = load(catalogData)
	})
	if loadErr != nil {
		// The embedded catalog is part of the build; a load failure is a
		// packaging defect, not a runtime condition.
		panic(fmt.Sprintf("typemeta: invalid embedded catalog: %v", loadErr))
	}
	return defaultRegistry
}

func load(data []byte) (*Registry, error) {
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	r := &Registry{
		types:    make(map[string]Descriptor, len(file.Types)),
		elements: make(map[string]map[string]ElementInfo, len(file.Types)),
	}

	for _, t := range file.Types {
		var fam Family
		switch t.Family {
		case "primitive":
			fam = FamilyPrimitive
		case "complex":
			fam = FamilyComplex
		case "resource":
			fam = FamilyResource
		default:
			return nil, fmt.Errorf("type %s: unknown family %q", t.Name, t.Family)
		}
		r.types[t.Name] = Descriptor{Name: t.Name, Family: fam, Parent: t.Parent}

		if len(t.Elements) > 0 {
			elems := make(map[string]ElementInfo, len(t.Elements))
			for name, e := range t.Elements {
				elems[name] = ElementInfo{Type: e.Type, Array: e.Array, Choice: e.Choice}
			}
			r.elements[t.Name] = elems
		}
	}

	return r, nil
}

// Lookup returns the descriptor for a type name. Qualified names
// (FHIR.Patient, System.String) are resolved by their final segment.
// The second return value is false when the type is unknown; callers
// treat unknown types as complex and continue.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return Descriptor{}, false
	}
	d, ok := r.types[name]
	if ok {
		return d, true
	}
	// System namespace primitives map onto FHIR primitives by lowercased name.
	d, ok = r.types[strings.ToLower(name[:1])+name[1:]]
	return d, ok
}

// Element resolves a field of a complex or resource type, walking parent
// types for inherited elements. The second return value is false when the
// element is unknown.
func (r *Registry) Element(typeName, field string) (ElementInfo, bool) {
	for typeName != "" {
		if elems, ok := r.elements[typeName]; ok {
			if e, ok := elems[field]; ok {
				return e, true
			}
		}
		d, ok := r.types[typeName]
		if !ok {
			break
		}
		typeName = d.Parent
	}
	return ElementInfo{}, false
}

// IsPrimitive reports whether the named type is a FHIR primitive.
func (r *Registry) IsPrimitive(name string) bool {
	d, ok := r.Lookup(name)
	return ok && d.Family == FamilyPrimitive
}

// IsResource reports whether the named type is a resource type.
func (r *Registry) IsResource(name string) bool {
	d, ok := r.Lookup(name)
	return ok && d.Family == FamilyResource
}

// DerivesFrom reports whether type name derives from (or is) ancestor.
func (r *Registry) DerivesFrom(name, ancestor string) bool {
	for name != "" {
		if name == ancestor {
			return true
		}
		d, ok := r.types[name]
		if !ok {
			return false
		}
		name = d.Parent
	}
	return false
}

// Elements returns the elements declared directly on a type, not
// including inherited ones. The returned map must not be modified.
func (r *Registry) Elements(typeName string) map[string]ElementInfo {
	return r.elements[typeName]
}

// TypeNames returns all known type names, for diagnostic listings.
func (r *Registry) TypeNames() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}
