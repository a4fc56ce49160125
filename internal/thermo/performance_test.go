package thermo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive_ReferenceValues(t *testing.T) {
	tests := []struct {
		name                string
		tFlame, gamma, mw   float64
		vdk, cStar, cf, isp float64
	}{
		{"2500K", 2500, 1.2, 0.025, 0.648531, 1406.003, 2.246578, 322.097},
		{"3000K", 3000, 1.25, 0.0235, 0.658065, 1565.580, 2.080984, 332.218},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Derive(tt.tFlame, tt.gamma, tt.mw)
			assert.InDelta(t, tt.vdk, p.Vandenkerckhove, 1e-6)
			assert.InDelta(t, tt.cStar, p.CStar, 1e-3)
			assert.InDelta(t, tt.cf, p.CfVacuum, 1e-6)
			assert.InDelta(t, tt.isp, p.IspIdeal, 1e-3)
		})
	}
}

func TestDerive_PureFunction(t *testing.T) {
	a := Derive(2800, 1.22, 0.026)
	b := Derive(2800, 1.22, 0.026)
	assert.Equal(t, a, b)
	assert.Equal(t, Isp(a.CfVacuum, a.CStar), a.IspIdeal)
}

func TestDerive_Monotonic(t *testing.T) {
	hot := Derive(3200, 1.2, 0.025)
	cool := Derive(2400, 1.2, 0.025)
	assert.Greater(t, hot.CStar, cool.CStar)

	light := Derive(2800, 1.2, 0.020)
	heavy := Derive(2800, 1.2, 0.030)
	assert.Greater(t, light.CStar, heavy.CStar)
}

func TestDerive_FiniteAcrossGammaRange(t *testing.T) {
	for gamma := 1.01; gamma < 2; gamma += 0.05 {
		p := Derive(2500, gamma, 0.025)
		assert.False(t, math.IsNaN(p.CStar) || math.IsInf(p.CStar, 0), "gamma=%v", gamma)
		assert.False(t, math.IsNaN(p.CfVacuum) || math.IsInf(p.CfVacuum, 0), "gamma=%v", gamma)
		assert.Greater(t, p.IspIdeal, 0.0)
	}
}
