// Package config loads the simulation configuration.
//
// Values are layered with viper: documented defaults, then an optional file
// (INI, YAML, TOML or JSON, chosen by extension), then ANCP_* environment
// variables such as ANCP_BURN_RATE_A or ANCP_EFFICIENCIES_NOZZLE_EFFICIENCY.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"

	"github.com/roach88/ancpsim/internal/diag"
)

// Documented defaults.
const (
	DefaultBurnRateA             = 3.5
	DefaultBurnRateN             = 0.5
	DefaultFerricOxideMultiplier = 1.7
	DefaultCombustionEfficiency  = 0.90
	DefaultNozzleEfficiency      = 0.92
	DefaultTwoPhaseEfficiency    = 0.95
)

// Config keys.
const (
	keyBurnRateA     = "burn_rate.a"
	keyBurnRateN     = "burn_rate.n"
	keyFerricOxide   = "catalyst.ferric_oxide_multiplier"
	keyCombustionEff = "efficiencies.combustion_efficiency"
	keyNozzleEff     = "efficiencies.nozzle_efficiency"
	keyTwoPhaseEff   = "efficiencies.two_phase_efficiency"
	envPrefix        = "ANCP"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// BurnRate holds Saint-Robert law coefficients, r = a * P^n.
type BurnRate struct {
	A float64 `mapstructure:"a" json:"a"`
	N float64 `mapstructure:"n" json:"n"`
}

// At returns the burn rate in mm/s at pressure p in MPa.
func (b BurnRate) At(pressureMPa float64) float64 {
	return b.A * math.Pow(pressureMPa, b.N)
}

// Catalyst holds catalyst multipliers.
type Catalyst struct {
	FerricOxideMultiplier float64 `mapstructure:"ferric_oxide_multiplier" json:"ferric_oxide_multiplier"`
}

// Efficiencies scale ideal specific impulse to delivered specific impulse.
// A zero field is treated as absent and contributes a factor of 1.
type Efficiencies struct {
	Combustion float64 `mapstructure:"combustion_efficiency" json:"combustion_efficiency"`
	Nozzle     float64 `mapstructure:"nozzle_efficiency" json:"nozzle_efficiency"`
	TwoPhase   float64 `mapstructure:"two_phase_efficiency" json:"two_phase_efficiency"`
}

// Product returns combustion * nozzle * two-phase, substituting 1 for any
// zero field.
func (e Efficiencies) Product() float64 {
	return orOne(e.Combustion) * orOne(e.Nozzle) * orOne(e.TwoPhase)
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1.0
	}
	return v
}

// Simulation is the full configuration. It is a plain value: copying it
// yields an independent configuration, which is what the catalyst rule
// relies on.
type Simulation struct {
	BurnRate     BurnRate     `mapstructure:"burn_rate" json:"burn_rate"`
	Catalyst     Catalyst     `mapstructure:"catalyst" json:"catalyst"`
	Efficiencies Efficiencies `mapstructure:"efficiencies" json:"efficiencies"`
}

// Default returns the documented defaults.
func Default() Simulation {
	return Simulation{
		BurnRate: BurnRate{A: DefaultBurnRateA, N: DefaultBurnRateN},
		Catalyst: Catalyst{FerricOxideMultiplier: DefaultFerricOxideMultiplier},
		Efficiencies: Efficiencies{
			Combustion: DefaultCombustionEfficiency,
			Nozzle:     DefaultNozzleEfficiency,
			TwoPhase:   DefaultTwoPhaseEfficiency,
		},
	}
}

// Validate checks ranges: efficiencies in (0,1] (zero means absent),
// positive burn-rate coefficient and catalyst multiplier.
func (s Simulation) Validate() error {
	var problems []string
	if !(s.BurnRate.A > 0) {
		problems = append(problems, fmt.Sprintf("burn_rate.a must be positive, got %v", s.BurnRate.A))
	}
	if !(s.Catalyst.FerricOxideMultiplier > 0) {
		problems = append(problems, fmt.Sprintf("catalyst.ferric_oxide_multiplier must be positive, got %v", s.Catalyst.FerricOxideMultiplier))
	}
	for _, eff := range []struct {
		key string
		v   float64
	}{
		{keyCombustionEff, s.Efficiencies.Combustion},
		{keyNozzleEff, s.Efficiencies.Nozzle},
		{keyTwoPhaseEff, s.Efficiencies.TwoPhase},
	} {
		if eff.v < 0 || eff.v > 1 || math.IsNaN(eff.v) {
			problems = append(problems, fmt.Sprintf("%s must be in (0,1], got %v", eff.key, eff.v))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Loaded is a configuration together with where it came from.
type Loaded struct {
	Simulation  Simulation
	File        string // empty when no file was read
	Diagnostics diag.List
}

// Load reads the configuration at path on top of the defaults.
//
// A missing file is not an error: defaults (plus environment overrides) are
// used and a CONFIG_DEFAULTS diagnostic is attached. An empty path means no
// file at all.
func Load(path string) (*Loaded, error) {
	v := newViper(true)

	loaded := &Loaded{}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("stat config: %w", err)
			}
			loaded.Diagnostics.Add(diag.Info(diag.CodeConfigDefaults, nil,
				"configuration file %q not found, using default values", path))
		} else {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
			loaded.File = v.ConfigFileUsed()
		}
	}

	var sim Simulation
	if err := v.Unmarshal(&sim); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := sim.Validate(); err != nil {
		return nil, err
	}
	loaded.Simulation = sim
	return loaded, nil
}

// Settings returns every effective key/value pair in key order, for echoing
// the configuration back to an operator.
func (s Simulation) Settings() [][2]string {
	return [][2]string{
		{keyBurnRateA, fmt.Sprint(s.BurnRate.A)},
		{keyBurnRateN, fmt.Sprint(s.BurnRate.N)},
		{keyFerricOxide, fmt.Sprint(s.Catalyst.FerricOxideMultiplier)},
		{keyCombustionEff, fmt.Sprint(s.Efficiencies.Combustion)},
		{keyNozzleEff, fmt.Sprint(s.Efficiencies.Nozzle)},
		{keyTwoPhaseEff, fmt.Sprint(s.Efficiencies.TwoPhase)},
	}
}

// FromMap builds a configuration from nested settings on top of the
// defaults, e.g. {"efficiencies": {"nozzle_efficiency": 0.9}}. The
// environment is not consulted.
func FromMap(settings map[string]any) (Simulation, error) {
	v := newViper(false)
	if err := v.MergeConfigMap(settings); err != nil {
		return Simulation{}, fmt.Errorf("merge config: %w", err)
	}
	var sim Simulation
	if err := v.Unmarshal(&sim); err != nil {
		return Simulation{}, fmt.Errorf("decode config: %w", err)
	}
	if err := sim.Validate(); err != nil {
		return Simulation{}, err
	}
	return sim, nil
}

func newViper(withEnv bool) *viper.Viper {
	// INI left viper's built-in codecs in 1.20.
	codecs := viper.NewCodecRegistry()
	if err := codecs.RegisterCodec("ini", ini.Codec{}); err != nil {
		panic(err)
	}
	v := viper.NewWithOptions(viper.WithCodecRegistry(codecs))
	d := Default()
	v.SetDefault(keyBurnRateA, d.BurnRate.A)
	v.SetDefault(keyBurnRateN, d.BurnRate.N)
	v.SetDefault(keyFerricOxide, d.Catalyst.FerricOxideMultiplier)
	v.SetDefault(keyCombustionEff, d.Efficiencies.Combustion)
	v.SetDefault(keyNozzleEff, d.Efficiencies.Nozzle)
	v.SetDefault(keyTwoPhaseEff, d.Efficiencies.TwoPhase)

	if withEnv {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return v
}
