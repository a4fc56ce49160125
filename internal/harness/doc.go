// Package harness runs recipe scenarios against the evaluation pipeline.
//
// A scenario pins a recipe, a configuration and a scripted equilibrium
// solver, evaluates the recipe one or more times, and checks the solver
// trace, the reported result and the run store.
//
// # Scenario Format
//
//	name: tight_converges
//	description: "Tight stage converges after the warm start"
//	recipe:
//	  propellant_name: ANCP-1
//	  composition:
//	    Ammonium Nitrate: 65
//	    Magnesium: 15
//	chamber_pressure_bar: 70
//	config:
//	  burn_rate: { a: 3.5, n: 0.5 }
//	solver:
//	  reactant_enthalpy: -3.4e6
//	  steps:
//	    - converge: { temperature: 2200, gamma: 1.25, molecular_weight: 24 }
//	    - fail: "hp equilibration diverged"
//	evaluations: 2
//	assertions:
//	  - type: trace_order
//	    stages: [warm_start, tight]
//	  - type: result
//	    field: t_flame_K
//	    value: 2500
//	  - type: final_state
//	    where: { status: converged }
//	    expect: { propellant_name: ANCP-1 }
//
// # Assertion Types
//
//   - trace_contains: a solver attempt at the stage with the given outcome
//   - trace_order: stages attempted in the given order
//   - trace_count: exact number of attempts at a stage
//   - result: one field of the last report, numeric fields within tolerance
//   - diagnostics: the last report carries exactly these codes, in order
//   - final_state: exactly one row of the runs table matches, with the
//     expected column values
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store with sequential run
// IDs and a stepping clock, so golden snapshots are stable across runs.
package harness
