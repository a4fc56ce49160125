package harness

import (
	"github.com/roach88/ancpsim/internal/equilibrium"
	"github.com/roach88/ancpsim/internal/simulate"
)

// Trace event types.
const (
	EventAttempt    = "attempt"
	EventEvaluation = "evaluation"
)

const (
	outcomeConverged = "converged"
	outcomeFailed    = "failed"
	outcomeCached    = "cached"
	outcomeError     = "error"
)

// TraceEvent is one solver attempt or one finished evaluation.
type TraceEvent struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq"`
	Stage   string `json:"stage,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Method  string `json:"method,omitempty"`
	Outcome string `json:"outcome"`
	RunID   string `json:"run_id,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds attempts and evaluations in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Reports holds one entry per evaluation; failed evaluations leave nil.
	Reports []*simulate.Report `json:"reports"`

	seq int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Last returns the report of the final evaluation, or nil.
func (r *Result) Last() *simulate.Report {
	if len(r.Reports) == 0 {
		return nil
	}
	return r.Reports[len(r.Reports)-1]
}

// ObserveAttempt implements equilibrium.Observer by tracing the attempt.
func (r *Result) ObserveAttempt(a equilibrium.Attempt) {
	outcome := outcomeFailed
	if a.Converged {
		outcome = outcomeConverged
	}
	r.seq++
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventAttempt,
		Seq:     r.seq,
		Stage:   a.Stage.String(),
		Mode:    string(a.Mode),
		Method:  string(a.Method),
		Outcome: outcome,
	})
}

// AddEvaluationTrace traces a finished evaluation.
func (r *Result) AddEvaluationTrace(outcome, runID string) {
	r.seq++
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventEvaluation,
		Seq:     r.seq,
		Outcome: outcome,
		RunID:   runID,
	})
}

func evaluationOutcome(rep *simulate.Report) string {
	switch {
	case rep == nil:
		return outcomeError
	case rep.Cached:
		return outcomeCached
	case rep.Performance.Failed():
		return outcomeFailed
	default:
		return outcomeConverged
	}
}
