package thermo

import "math"

const (
	// GasConstant is the universal gas constant, J/(mol K).
	GasConstant = 8.314462618

	// StandardGravity converts exhaust velocity to specific impulse, m/s².
	StandardGravity = 9.80665
)

// Performance holds the ideal rocket figures derived from an equilibrium
// state.
type Performance struct {
	Vandenkerckhove float64 `json:"vandenkerckhove"`
	CStar           float64 `json:"c_star_m_s"`
	CfVacuum        float64 `json:"cf_vacuum"`
	IspIdeal        float64 `json:"isp_vacuum_sec_ideal"`
}

// Vandenkerckhove returns sqrt(γ)·(2/(γ+1))^((γ+1)/(2(γ-1))).
func Vandenkerckhove(gamma float64) float64 {
	return math.Sqrt(gamma) * math.Pow(2/(gamma+1), (gamma+1)/(2*(gamma-1)))
}

// CStar returns the characteristic velocity in m/s for a flame temperature
// in K and a mean product molecular weight in kg/mol.
func CStar(tFlame, gamma, mwKgPerMol float64) float64 {
	return math.Sqrt(GasConstant*tFlame/mwKgPerMol) / Vandenkerckhove(gamma)
}

// CfVacuum returns the vacuum thrust coefficient
// sqrt(2γ²/(γ-1) · (2/(γ+1))^((γ+1)/(γ-1))).
func CfVacuum(gamma float64) float64 {
	term1 := 2 * gamma * gamma / (gamma - 1)
	term2 := math.Pow(2/(gamma+1), (gamma+1)/(gamma-1))
	return math.Sqrt(term1 * term2)
}

// Isp returns the specific impulse in seconds.
func Isp(cf, cStar float64) float64 {
	return cf * cStar / StandardGravity
}

// Derive computes ideal performance. gamma must exceed 1 and mwKgPerMol must
// be positive; callers validate both first.
func Derive(tFlame, gamma, mwKgPerMol float64) Performance {
	cStar := CStar(tFlame, gamma, mwKgPerMol)
	cf := CfVacuum(gamma)
	return Performance{
		Vandenkerckhove: Vandenkerckhove(gamma),
		CStar:           cStar,
		CfVacuum:        cf,
		IspIdeal:        Isp(cf, cStar),
	}
}
