// Package stoich converts a mass-percentage recipe into elemental molar
// composition, reactant enthalpy, and oxygen balance.
//
// Percentages are read as grams in a nominal 100 g sample. Results are
// accumulated in ingredient-name order so that repeated evaluations of the
// same inputs are bit-identical regardless of map iteration order.
package stoich

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/ancpsim/internal/diag"
	"github.com/roach88/ancpsim/internal/formula"
	"github.com/roach88/ancpsim/internal/propellant"
)

const (
	// OxygenAtomicWeight in g/mol.
	OxygenAtomicWeight = 15.999

	// NominalSampleMass is the basis mass in grams.
	NominalSampleMass = 100.0

	// MassTolerance is the allowed drift of the percentage sum from 100.
	MassTolerance = 1e-6
)

// ErrInvalidIngredient reports a record that cannot be used in a mole
// computation, such as a non-positive molecular weight.
var ErrInvalidIngredient = errors.New("invalid ingredient record")

// Result is the stoichiometry of one recipe against one database.
// It is not modified after Calculate returns.
type Result struct {
	// ElementalMoles is moles of each element per 100 g sample.
	ElementalMoles map[string]float64 `json:"elemental_moles"`

	// ReactantEnthalpy is the summed enthalpy of formation in kJ per 100 g.
	ReactantEnthalpy float64 `json:"reactant_enthalpy_kJ_100g"`

	// OxygenBalance is excess (+) or deficient (-) oxygen, percent by weight.
	OxygenBalance float64 `json:"oxygen_balance_percent"`

	// TotalMass is the sum of the recipe percentages.
	TotalMass float64 `json:"total_mass_percent"`

	Diagnostics diag.List `json:"diagnostics,omitempty"`
}

// Calculate computes the stoichiometry of comp.
//
// Every ingredient must exist in db; the first missing name aborts the
// computation with a *propellant.UnknownIngredientError and no partial
// result. A percentage sum that differs from 100 by more than MassTolerance
// adds a MASS_BALANCE warning but does not normalize the inputs.
func Calculate(comp propellant.Composition, db propellant.Database) (*Result, error) {
	moles := make(map[string]float64)
	var totalEnthalpy, totalMass float64

	for _, name := range comp.Names() {
		pct := comp[name]

		rec, err := db.Lookup(name)
		if err != nil {
			return nil, err
		}
		if !(rec.MolecularWeight > 0) {
			return nil, fmt.Errorf("%w: %q has molecular weight %v", ErrInvalidIngredient, rec.Name, rec.MolecularWeight)
		}

		counts, err := formula.Parse(rec.Formula)
		if err != nil {
			return nil, fmt.Errorf("ingredient %q: %w", rec.Name, err)
		}

		n := pct / rec.MolecularWeight
		totalEnthalpy += n * rec.EnthalpyFormation
		for _, el := range counts.Elements() {
			moles[el] += n * float64(counts[el])
		}
		totalMass += pct
	}

	res := &Result{
		ElementalMoles:   moles,
		ReactantEnthalpy: totalEnthalpy,
		OxygenBalance:    OxygenBalance(moles),
		TotalMass:        totalMass,
	}

	if math.Abs(totalMass-NominalSampleMass) > MassTolerance {
		res.Diagnostics.Add(diag.Warning(diag.CodeMassBalance,
			map[string]float64{"total_percent": totalMass},
			"recipe percentages sum to %g%%, not 100%%", totalMass))
	}

	return res, nil
}

// OxygenBalance returns the oxygen balance in percent by weight of a 100 g
// sample with the given elemental moles.
//
// Only carbon (to CO2), hydrogen (to H2O) and magnesium (to MgO) are counted
// as oxygen consumers. Other oxidizable elements are ignored; results must
// stay comparable with historical figures computed the same way.
func OxygenBalance(moles map[string]float64) float64 {
	o := moles["O"]
	c := moles["C"]
	h := moles["H"]
	mg := moles["Mg"]

	needed := 2*c + h/2 + 2*mg
	return (o - needed) * OxygenAtomicWeight
}
