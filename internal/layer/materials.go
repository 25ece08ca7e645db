package layer

import (
	"fmt"
	"strings"
)

// Material is a catalogue entry for a common thin-film material.
type Material struct {
	Formula string  `json:"formula" yaml:"formula"`
	Name    string  `json:"name" yaml:"name"`
	Density float64 `json:"density" yaml:"density"` // g/cm³
}

// Materials is the built-in material catalogue.
var Materials = []Material{
	{Formula: "Si", Name: "Silicon", Density: 2.33},
	{Formula: "SiO₂", Name: "Silicon Dioxide", Density: 2.20},
	{Formula: "Al₂O₃", Name: "Aluminum Oxide", Density: 3.95},
	{Formula: "Cr", Name: "Chromium", Density: 7.19},
	{Formula: "Au", Name: "Gold", Density: 19.32},
	{Formula: "Ti", Name: "Titanium", Density: 4.51},
	{Formula: "Ta₂O₅", Name: "Tantalum Pentoxide", Density: 8.20},
}

var subscriptDigits = strings.NewReplacer(
	"₀", "0", "₁", "1", "₂", "2", "₃", "3", "₄", "4",
	"₅", "5", "₆", "6", "₇", "7", "₈", "8", "₉", "9",
)

// LookupMaterial finds a catalogue entry by formula. Subscript digits are
// optional, so "SiO2" matches "SiO₂".
func LookupMaterial(formula string) (Material, bool) {
	want := subscriptDigits.Replace(strings.TrimSpace(formula))
	for _, m := range Materials {
		if strings.EqualFold(subscriptDigits.Replace(m.Formula), want) {
			return m, true
		}
	}
	return Material{}, false
}

// FromMaterial creates a 10-unit layer of a catalogue material. The SLD is
// left pending: converting mass density to SLD belongs to the forward model.
func FromMaterial(formula string) (Layer, error) {
	m, ok := LookupMaterial(formula)
	if !ok {
		return Layer{}, fmt.Errorf("unknown material %q", formula)
	}
	return New(m.Formula, Num(10.0), Unknown(), Num(0.3)), nil
}
