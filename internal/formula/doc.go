// Package formula parses chemical formulas into element counts.
//
// A formula is a sequence of element symbols (one uppercase letter followed
// by any number of lowercase letters), optional integer counts, and balanced
// round-bracket groups with an optional trailing multiplier:
//
//	NH4NO3      → {H:4, N:2, O:3}
//	Ca(OH)2     → {Ca:1, O:2, H:2}
//	C(C(H)3)3   → {C:4, H:9}
//
// Parsing keeps a stack of partial counts. An element adds to the top of the
// stack, an open bracket pushes an empty scope, and a close bracket pops the
// top scope, multiplies it, and merges it into the enclosing one. Repeated
// symbols always accumulate; they never overwrite.
package formula
