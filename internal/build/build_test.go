package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcbuild/internal/model"
	"pcbuild/internal/preference"
)

func lookupFrom(items ...model.Component) LookupFunc {
	byID := make(map[string]model.Component, len(items))
	for _, c := range items {
		byID[c.ID] = c
	}
	return func(id string) (model.Component, bool) {
		c, ok := byID[id]
		return c, ok
	}
}

var (
	cpu = model.Component{ID: "cpu-1", Name: "Ryzen 5 5600", Price: 899.00, Category: "processor"}
	mb  = model.Component{ID: "mb-1", Name: "B550M", Price: 459.00, Category: "motherboard"}
	ram = model.Component{ID: "ram-1", Name: "16GB DDR4", Price: 299.00, Category: "memory"}
)

func TestProjectSumsPricesWhenTotalMissing(t *testing.T) {
	p := Project(Input{ComponentIDs: []string{"cpu-1", "mb-1", "ram-1"}}, lookupFrom(cpu, mb, ram))
	require.NotNil(t, p.Build)
	assert.Len(t, p.Build.Components, 3)
	assert.Equal(t, 1657.00, p.Build.TotalPrice)
	assert.Empty(t, p.Unresolved)
}

func TestProjectUsesDeclaredTotal(t *testing.T) {
	p := Project(Input{
		ComponentIDs:  []string{"cpu-1", "mb-1"},
		DeclaredTotal: preference.NewAmount(1400),
	}, lookupFrom(cpu, mb))
	assert.Equal(t, 1400.0, p.Build.TotalPrice)
}

func TestProjectDropsUnknownIDs(t *testing.T) {
	p := Project(Input{ComponentIDs: []string{"cpu-1", "made-up", " ", "cpu-1", "ram-1"}}, lookupFrom(cpu, ram))
	assert.Equal(t, []string{"made-up"}, p.Unresolved)
	require.Len(t, p.Build.Components, 2)
	assert.Equal(t, "cpu-1", p.Build.Components[0].ID)
	assert.Equal(t, 1198.0, p.Build.TotalPrice)
}

func TestProjectEmptyBuild(t *testing.T) {
	p := Project(Input{ComponentIDs: []string{"x", "y"}}, lookupFrom(cpu))
	require.NotNil(t, p.Build)
	assert.True(t, p.Build.Empty())
	assert.Zero(t, p.Build.TotalPrice)
	assert.Len(t, p.Unresolved, 2)

	var none *Build
	assert.False(t, none.Empty())
}

func TestProjectPrefersStructuredWarnings(t *testing.T) {
	p := Project(Input{
		ComponentIDs:  []string{"cpu-1"},
		Justification: "Good value.\nCompatibility Warnings:\n- old warning",
		Warnings:      []string{" BIOS update may be required ", ""},
	}, lookupFrom(cpu))
	assert.Equal(t, []string{"BIOS update may be required"}, p.Build.Warnings)
}

func TestExtractWarnings(t *testing.T) {
	text := "Escolhi peças equilibradas.\n\nCompatibility Warnings:\n- A placa-mãe pode precisar de atualização de BIOS.\n* Verifique a altura do cooler.\n2) Fonte no limite com overclock.\n\n"
	assert.Equal(t, []string{
		"A placa-mãe pode precisar de atualização de BIOS.",
		"Verifique a altura do cooler.",
		"Fonte no limite com overclock.",
	}, ExtractWarnings(text))
}

func TestExtractWarningsWithoutMarker(t *testing.T) {
	w := ExtractWarnings("Everything fits together.")
	assert.NotNil(t, w)
	assert.Empty(t, w)

	assert.Empty(t, ExtractWarnings("Compatibility Warnings: None."))
}
