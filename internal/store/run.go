package store

import (
	"time"

	"github.com/roach88/ancpsim/internal/propellant"
	"github.com/roach88/ancpsim/internal/stoich"
	"github.com/roach88/ancpsim/internal/thermo"
)

// Status of a stored run.
type Status string

const (
	StatusConverged Status = "converged"
	StatusFailed    Status = "failed"
)

// Run is one recorded evaluation.
type Run struct {
	ID                 string
	CreatedAt          time.Time
	InputHash          string
	Recipe             propellant.Recipe
	ChamberPressureBar float64
	Stoichiometry      *stoich.Result
	Result             *thermo.Result
}

// Status reports whether the stored result converged.
func (r *Run) Status() Status {
	if r.Result == nil || r.Result.Failed() {
		return StatusFailed
	}
	return StatusConverged
}

// Summary is the listing view of a run.
type Summary struct {
	ID                 string    `json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	PropellantName     string    `json:"propellant_name"`
	ChamberPressureBar float64   `json:"chamber_pressure_bar"`
	Status             Status    `json:"status"`
	ErrorCode          string    `json:"error_code,omitempty"`
	TFlame             float64   `json:"t_flame_K"`
	IspDelivered       float64   `json:"isp_vacuum_sec_delivered"`
}
