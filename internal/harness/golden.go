package harness

import (
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ancpsim/internal/canon"
	"github.com/roach88/ancpsim/internal/simulate"
)

// Snapshot captures a scenario execution for golden comparison. Numbers
// are rendered at fixed precision so snapshots survive last-bit changes
// in floating point.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Report       *simulate.Report
}

func fixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// Object converts the snapshot to a canonical JSON object.
func (s *Snapshot) Object() canon.Object {
	trace := make(canon.Array, len(s.Trace))
	for i, event := range s.Trace {
		obj := canon.Object{
			"seq":     event.Seq,
			"type":    event.Type,
			"outcome": event.Outcome,
		}
		if event.Stage != "" {
			obj["stage"] = event.Stage
			obj["mode"] = event.Mode
			obj["method"] = event.Method
		}
		if event.RunID != "" {
			obj["run_id"] = event.RunID
		}
		trace[i] = obj
	}

	out := canon.Object{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	}
	if s.Report != nil {
		out["result"] = reportObject(s.Report)
	}
	return out
}

func reportObject(rep *simulate.Report) canon.Object {
	perf := rep.Performance
	codes := make([]string, 0, len(rep.Diagnostics))
	for _, code := range rep.Diagnostics.Codes() {
		codes = append(codes, string(code))
	}

	status := outcomeConverged
	if perf.Failed() {
		status = outcomeFailed
	}
	obj := canon.Object{
		"status":                 status,
		"cached":                 rep.Cached,
		"run_id":                 rep.RunID,
		"t_flame_K":              fixed(perf.TFlame, 1),
		"gamma":                  fixed(perf.Gamma, 4),
		"molecular_weight_g_mol": fixed(perf.ProductMolecularWeight, 3),
		"c_star_m_s":             fixed(perf.CStar, 1),
		"isp_delivered_s":        fixed(perf.IspDelivered, 2),
		"burn_rate_mm_s":         fixed(rep.BurnRate, 3),
		"diagnostics":            codes,
	}
	if perf.ConvergedStage != "" {
		obj["converged_stage"] = perf.ConvergedStage
	}
	if perf.ErrorCode != "" {
		obj["error_code"] = string(perf.ErrorCode)
	}
	return obj
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

// MarshalSnapshot renders the canonical golden bytes for a result.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Report:       result.Last(),
	}
	return canon.Marshal(snapshot.Object())
}
