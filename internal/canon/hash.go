package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/ancpsim/internal/config"
	"github.com/roach88/ancpsim/internal/equilibrium"
	"github.com/roach88/ancpsim/internal/propellant"
)

// DomainRunInput prefixes run-input hashes. The version suffix allows the
// encoding to change without colliding with stored hashes.
const DomainRunInput = "ancpsim/run-input/v1"

// hashWithDomain returns hex(SHA256(domain || 0x00 || data)).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RunInput is everything that determines a performance result.
type RunInput struct {
	Composition        propellant.Composition
	Database           propellant.Database
	Config             config.Simulation
	ChamberPressureBar float64
	Catalog            *equilibrium.Catalog
	Policy             equilibrium.Policy

	// Solver identifies the equilibrium backend, such as the Cantera
	// release and interpreter. Empty when the caller cannot name it.
	Solver string
}

// Object returns the canonical object form of in. Only database records the
// composition references are included, so unrelated database edits do not
// change the hash.
func (in RunInput) Object() (Object, error) {
	comp := Object{}
	ingredients := Object{}
	for _, name := range in.Composition.Names() {
		comp[propellant.NormalizeName(name)] = Float(in.Composition[name])
		rec, err := in.Database.Lookup(name)
		if err != nil {
			return nil, err
		}
		ingredients[rec.Name] = Object{
			"formula":                   rec.Formula,
			"molecular_weight_g_mol":    Float(rec.MolecularWeight),
			"enthalpy_formation_kJ_mol": Float(rec.EnthalpyFormation),
		}
	}

	cfg := in.Config
	obj := Object{
		"composition":          comp,
		"ingredients":          ingredients,
		"chamber_pressure_bar": Float(in.ChamberPressureBar),
		"config": Object{
			"burn_rate": Object{
				"a": Float(cfg.BurnRate.A),
				"n": Float(cfg.BurnRate.N),
			},
			"catalyst": Object{
				"ferric_oxide_multiplier": Float(cfg.Catalyst.FerricOxideMultiplier),
			},
			"efficiencies": Object{
				"combustion_efficiency": Float(cfg.Efficiencies.Combustion),
				"nozzle_efficiency":     Float(cfg.Efficiencies.Nozzle),
				"two_phase_efficiency":  Float(cfg.Efficiencies.TwoPhase),
			},
		},
		"policy": policyObject(in.Policy),
		"solver": in.Solver,
	}
	if in.Catalog != nil {
		obj["catalog"] = Object{
			"gas":       sourcesArray(in.Catalog.Gas),
			"condensed": sourcesArray(in.Catalog.Condensed),
		}
	}
	return obj, nil
}

func sourcesArray(sources []equilibrium.Source) Array {
	arr := make(Array, len(sources))
	for i, s := range sources {
		species := make(Array, len(s.Species))
		for j, name := range s.Species {
			species[j] = name
		}
		arr[i] = Object{"file": s.File, "species": species}
	}
	return arr
}

func policyObject(p equilibrium.Policy) Object {
	stage := func(s equilibrium.StageSpec) Object {
		return Object{
			"mode":           string(s.Mode),
			"method":         string(s.Options.Method),
			"rtol":           Float(s.Options.RelTol),
			"max_steps":      s.Options.MaxSteps,
			"max_iter":       s.Options.MaxIter,
			"estimate_equil": s.Options.EstimateEquil,
		}
	}
	return Object{
		"warm_start_temperature": Float(p.WarmStartTemperature),
		"warm_start":             stage(p.WarmStart),
		"tight":                  stage(p.Tight),
		"relaxed":                stage(p.Relaxed),
		"fallback":               stage(p.Fallback),
	}
}

// InputHash returns the content hash of in.
func InputHash(in RunInput) (string, error) {
	obj, err := in.Object()
	if err != nil {
		return "", fmt.Errorf("InputHash: %w", err)
	}
	data, err := Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("InputHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRunInput, data), nil
}
