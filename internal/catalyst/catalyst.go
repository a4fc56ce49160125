// Package catalyst applies the ferric-oxide burn-rate rule.
//
// When a recipe carries more than Threshold percent of the catalytic
// ingredient, the burn-rate coefficient a is scaled by the configured
// multiplier. Apply takes the configuration by value and returns a new one,
// so a shared default is never modified and repeated evaluations against the
// same base configuration apply the multiplier exactly once each.
package catalyst

import (
	"github.com/roach88/ancpsim/internal/config"
	"github.com/roach88/ancpsim/internal/diag"
	"github.com/roach88/ancpsim/internal/propellant"
)

const (
	// Ingredient is the catalytic ingredient's database name.
	Ingredient = "Ferric Oxide"

	// Threshold is the mass percent that must be exceeded.
	Threshold = 1.0
)

// Adjustment records a change made by Apply.
type Adjustment struct {
	Ingredient string  `json:"ingredient"`
	Percent    float64 `json:"percent"`
	Multiplier float64 `json:"multiplier"`
	Before     float64 `json:"burn_rate_a_before"`
	After      float64 `json:"burn_rate_a_after"`
}

// Diagnostic renders the adjustment as an info diagnostic.
func (a *Adjustment) Diagnostic() diag.Diagnostic {
	return diag.Info(diag.CodeCatalystApplied,
		map[string]float64{"percent": a.Percent, "before": a.Before, "after": a.After},
		"%s at %g%% scales burn_rate.a from %g to %g", a.Ingredient, a.Percent, a.Before, a.After)
}

// Apply returns cfg with burn_rate.a multiplied by the ferric-oxide
// multiplier when comp holds more than Threshold percent of Ingredient.
// The returned Adjustment is nil when nothing changed.
func Apply(comp propellant.Composition, cfg config.Simulation) (config.Simulation, *Adjustment) {
	pct := comp.Percent(Ingredient)
	if pct <= Threshold {
		return cfg, nil
	}

	adj := &Adjustment{
		Ingredient: Ingredient,
		Percent:    pct,
		Multiplier: cfg.Catalyst.FerricOxideMultiplier,
		Before:     cfg.BurnRate.A,
	}
	cfg.BurnRate.A *= cfg.Catalyst.FerricOxideMultiplier
	adj.After = cfg.BurnRate.A
	return cfg, adj
}
