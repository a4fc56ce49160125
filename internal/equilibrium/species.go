package equilibrium

import (
	"sort"
	"strings"

	"github.com/roach88/ancpsim/internal/formula"
)

// Phase of a species.
type Phase string

const (
	PhaseGas       Phase = "gas"
	PhaseCondensed Phase = "condensed"
)

// Reference conditions for reactant thermo.
const (
	// ReferenceTemperature is the standard-state temperature, K.
	ReferenceTemperature = 298.15

	// GasConstantKmol is the universal gas constant in J/(kmol K).
	GasConstantKmol = 8314.462618

	// reactantCpOverR is the constant reduced heat capacity given to
	// reactant pseudo-species.
	reactantCpOverR = 5.0
)

// NASA7 holds two-range NASA 7-coefficient polynomials.
type NASA7 struct {
	TemperatureRanges [3]float64 `json:"temperature_ranges"`
	Low               [7]float64 `json:"low"`
	High              [7]float64 `json:"high"`
}

// Species is a species definition shipped to the solver.
type Species struct {
	Name        string         `json:"name"`
	Composition map[string]int `json:"composition"`
	Phase       Phase          `json:"phase"`
	Thermo      NASA7          `json:"thermo"`
}

// SpeciesSet is the reactant species of one recipe together with the
// product catalog. It is read-only once built.
type SpeciesSet struct {
	Reactants []Species `json:"reactants"`
	Catalog   *Catalog  `json:"catalog"`
}

// ReactantThermo builds a flat-cp NASA7 record whose molar enthalpy at
// ReferenceTemperature equals hf (kJ/mol).
func ReactantThermo(hfKJPerMol float64) NASA7 {
	hJPerKmol := hfKJPerMol * 1e6
	a6 := hJPerKmol/GasConstantKmol - reactantCpOverR*ReferenceTemperature
	coeffs := [7]float64{reactantCpOverR, 0, 0, 0, 0, a6, 0}
	return NASA7{
		TemperatureRanges: [3]float64{200, 1000, 6000},
		Low:               coeffs,
		High:              coeffs,
	}
}

// NewReactant builds the species for one ingredient.
func NewReactant(name string, counts formula.Counts, hfKJPerMol float64) Species {
	comp := make(map[string]int, len(counts))
	for el, n := range counts {
		comp[el] = n
	}
	return Species{
		Name:        SpeciesName(name),
		Composition: comp,
		Phase:       PhaseGas,
		Thermo:      ReactantThermo(hfKJPerMol),
	}
}

// SpeciesName maps an ingredient name to a solver-safe species name.
func SpeciesName(ingredient string) string {
	return strings.ReplaceAll(strings.TrimSpace(ingredient), " ", "_")
}

// IsCondensedName reports whether a catalog species name denotes a
// condensed phase, e.g. "MgO(s)" or "Al2O3(l)".
func IsCondensedName(name string) bool {
	return strings.Contains(name, "(s)") || strings.Contains(name, "(l)") || strings.Contains(name, "(cr)")
}

// ReactantNames returns the reactant species names in order.
func (s *SpeciesSet) ReactantNames() []string {
	names := make([]string, len(s.Reactants))
	for i, sp := range s.Reactants {
		names[i] = sp.Name
	}
	sort.Strings(names)
	return names
}
