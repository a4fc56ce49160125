// Package thermo turns a recipe into rocket performance figures.
//
// Calculator builds the reactant species set, drives the equilibrium solver
// through the staged policy, checks the converged state for physical sanity,
// and derives characteristic velocity, vacuum thrust coefficient and
// specific impulse. Every failure past input validation is captured in the
// Result's error variant; Calculate never panics or returns an error to the
// caller, so batch evaluations can continue past a bad recipe.
package thermo
