package propellant

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// ErrUnknownIngredient is matched by UnknownIngredientError via errors.Is.
var ErrUnknownIngredient = errors.New("unknown ingredient")

// UnknownIngredientError reports a recipe entry with no database record.
type UnknownIngredientError struct {
	Name string
}

func (e *UnknownIngredientError) Error() string {
	return fmt.Sprintf("ingredient %q not found in the database", e.Name)
}

// Is reports ErrUnknownIngredient.
func (e *UnknownIngredientError) Is(target error) bool {
	return target == ErrUnknownIngredient
}

// Ingredient is one immutable database record.
type Ingredient struct {
	Name              string  `json:"-"`
	Formula           string  `json:"formula"`
	MolecularWeight   float64 `json:"molecular_weight_g_mol"`
	EnthalpyFormation float64 `json:"enthalpy_formation_kJ_mol"`
	Description       string  `json:"description,omitempty"`
}

// Database maps a normalized ingredient name to its record.
// It is read-only once built.
type Database map[string]Ingredient

// NewDatabase builds a Database from raw records, normalizing every key and
// filling in Ingredient.Name.
func NewDatabase(records map[string]Ingredient) Database {
	db := make(Database, len(records))
	for name, rec := range records {
		key := NormalizeName(name)
		rec.Name = key
		db[key] = rec
	}
	return db
}

// Lookup returns the record for name or an *UnknownIngredientError.
func (db Database) Lookup(name string) (Ingredient, error) {
	rec, ok := db[NormalizeName(name)]
	if !ok {
		return Ingredient{}, &UnknownIngredientError{Name: name}
	}
	return rec, nil
}

// Names returns the ingredient names in lexical order.
func (db Database) Names() []string {
	names := make([]string, 0, len(db))
	for n := range db {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Composition maps an ingredient name to its mass percent. Percentages are
// expected to sum to 100; drift is a warning raised by the stoichiometry
// engine, not a load error.
type Composition map[string]float64

// Names returns the ingredient names in lexical order. Iterating a
// composition through Names keeps floating-point accumulation independent of
// map iteration order.
func (c Composition) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Percent returns the mass percent for name, or 0 when absent.
func (c Composition) Percent(name string) float64 {
	want := NormalizeName(name)
	for n, pct := range c {
		if NormalizeName(n) == want {
			return pct
		}
	}
	return 0
}

// Total returns the sum of all percentages, accumulated in name order.
func (c Composition) Total() float64 {
	var total float64
	for _, n := range c.Names() {
		total += c[n]
	}
	return total
}

// Recipe is a named composition.
type Recipe struct {
	Name        string      `json:"propellant_name,omitempty"`
	Composition Composition `json:"composition"`
}

// DisplayName returns the recipe name or "N/A".
func (r *Recipe) DisplayName() string {
	if r.Name == "" {
		return "N/A"
	}
	return r.Name
}

// NormalizeName canonicalizes an ingredient name for lookups.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}
