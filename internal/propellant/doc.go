// Package propellant holds the reference data contracts consumed by the
// stoichiometry and thermochemistry layers: ingredient records, the
// ingredient database, and recipes.
//
// Files are read as JSON or YAML and checked against an embedded CUE schema
// before being decoded, so a malformed database or recipe is reported with
// the offending path and line rather than surfacing later as a numeric
// surprise. Ingredient names are NFC-normalized at every lookup boundary.
package propellant
