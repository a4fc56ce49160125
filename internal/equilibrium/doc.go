// Package equilibrium defines the chemical-equilibrium solver capability and
// the staged policy used to drive it.
//
// The solver itself is external. Adapters (see the cantera subpackage)
// implement Solver; tests substitute a scripted double. The product species
// catalog is an injected, read-only Catalog rather than global state.
//
// # Staged retry policy
//
// Constant-enthalpy equilibration from an arbitrary reference state often
// fails to converge, so Runner walks an explicit sequence of stages:
//
//	WarmStart → Tight → Relaxed → Fallback → Failed
//	               ↘        ↘         ↘
//	                Converged
//
// WarmStart equilibrates at a fixed temperature and pressure to obtain a
// plausible product distribution; its failure is logged and never aborts the
// run. Tight imposes the enthalpy+pressure constraint from that warm start.
// Relaxed retries with a looser tolerance, Fallback with a different solver
// method. Each stage runs only after the previous one has definitively
// failed; nothing runs speculatively or in parallel. The transition table is
// the Next function.
package equilibrium
