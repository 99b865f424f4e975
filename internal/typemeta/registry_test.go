package typemeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsEmbeddedCatalog(t *testing.T) {
	r := Default()
	require.NotNil(t, r)
	assert.NotEmpty(t, r.TypeNames())

	// The same instance comes back on every call.
	assert.Same(t, r, Default())
}

func TestLookup(t *testing.T) {
	r := Default()

	tests := []struct {
		name   string
		family Family
		found  bool
	}{
		{"Patient", FamilyResource, true},
		{"Observation", FamilyResource, true},
		{"HumanName", FamilyComplex, true},
		{"Quantity", FamilyComplex, true},
		{"string", FamilyPrimitive, true},
		{"boolean", FamilyPrimitive, true},
		{"dateTime", FamilyPrimitive, true},
		{"NotAType", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := r.Lookup(tt.name)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.name, d.Name)
				assert.Equal(t, tt.family, d.Family)
			}
		})
	}
}

func TestLookup_QualifiedNames(t *testing.T) {
	r := Default()

	d, ok := r.Lookup("FHIR.Patient")
	require.True(t, ok)
	assert.Equal(t, "Patient", d.Name)

	// System primitives resolve to their FHIR counterparts.
	d, ok = r.Lookup("System.String")
	require.True(t, ok)
	assert.Equal(t, "string", d.Name)
	assert.Equal(t, FamilyPrimitive, d.Family)
}

func TestElement(t *testing.T) {
	r := Default()

	e, ok := r.Element("Patient", "name")
	require.True(t, ok)
	assert.Equal(t, "HumanName", e.Type)
	assert.True(t, e.Array)
	assert.False(t, e.IsChoice())

	e, ok = r.Element("HumanName", "given")
	require.True(t, ok)
	assert.Equal(t, "string", e.Type)
	assert.True(t, e.Array)

	e, ok = r.Element("HumanName", "family")
	require.True(t, ok)
	assert.False(t, e.Array)

	_, ok = r.Element("Patient", "nonexistent")
	assert.False(t, ok)
}

func TestElement_InheritedFromParent(t *testing.T) {
	r := Default()

	// id is declared on Resource and inherited by every resource type.
	e, ok := r.Element("Patient", "id")
	require.True(t, ok)
	assert.Equal(t, "id", e.Type)
}

func TestElement_ChoiceTypes(t *testing.T) {
	r := Default()

	e, ok := r.Element("Observation", "value")
	require.True(t, ok)
	assert.True(t, e.IsChoice())
	assert.Contains(t, e.Choice, "Quantity")
	assert.Contains(t, e.Choice, "string")

	e, ok = r.Element("Patient", "deceased")
	require.True(t, ok)
	assert.True(t, e.IsChoice())
	assert.Contains(t, e.Choice, "boolean")
	assert.Contains(t, e.Choice, "dateTime")
}

func TestFamilyPredicates(t *testing.T) {
	r := Default()

	assert.True(t, r.IsPrimitive("string"))
	assert.False(t, r.IsPrimitive("HumanName"))
	assert.True(t, r.IsResource("Patient"))
	assert.False(t, r.IsResource("Coding"))
}

func TestDerivesFrom(t *testing.T) {
	r := Default()

	assert.True(t, r.DerivesFrom("Patient", "DomainResource"))
	assert.True(t, r.DerivesFrom("Patient", "Resource"))
	assert.True(t, r.DerivesFrom("Patient", "Patient"))
	assert.False(t, r.DerivesFrom("Patient", "Observation"))
}
