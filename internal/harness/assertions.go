package harness

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/ancpsim/internal/simulate"
	"github.com/roach88/ancpsim/internal/store"
)

// validIdentifier matches column names accepted in final_state where
// clauses. Identifiers cannot be parameterized, so anything else is
// rejected before it reaches SQL.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// defaultTolerance applies to numeric comparisons that do not set one.
const defaultTolerance = 1e-9

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case EventAttempt:
				fmt.Fprintf(&buf, "  [%d] %s %s/%s %s\n", i+1, event.Stage, event.Mode, event.Method, event.Outcome)
			case EventEvaluation:
				fmt.Fprintf(&buf, "  [%d] evaluation %s %s\n", i+1, event.Outcome, event.RunID)
			}
		}
	}
	return buf.String()
}

func matchesAttempt(event TraceEvent, stage, outcome string) bool {
	return event.Type == EventAttempt &&
		event.Stage == stage &&
		(outcome == "" || event.Outcome == outcome)
}

// assertTraceContains checks for an attempt at the stage with the outcome.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchesAttempt(event, assertion.Stage, assertion.Outcome) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeAttempt(assertion.Stage, assertion.Outcome),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the stages were first attempted in the given
// order. Other attempts may come between them.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventAttempt {
			continue
		}
		if _, seen := positions[event.Stage]; !seen {
			positions[event.Stage] = i + 1
		}
	}

	for _, stage := range assertion.Stages {
		if positions[stage] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all stages attempted: %v", assertion.Stages),
				Actual:   fmt.Sprintf("missing stage: %s", stage),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Stages); i++ {
		prev, curr := assertion.Stages[i-1], assertion.Stages[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("stages in order: %v", assertion.Stages),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of matching attempts.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchesAttempt(event, assertion.Stage, assertion.Outcome) {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, describeAttempt(assertion.Stage, assertion.Outcome)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func describeAttempt(stage, outcome string) string {
	if outcome == "" {
		return "attempt at " + stage
	}
	return fmt.Sprintf("%s attempt at %s", outcome, stage)
}

// assertResult checks one field of the final report.
func assertResult(rep *simulate.Report, assertion Assertion) error {
	if rep == nil {
		return &AssertionError{
			Type:     AssertResult,
			Expected: fmt.Sprintf("report with field %q", assertion.Field),
			Actual:   "no report (evaluation failed)",
		}
	}
	actual, err := reportField(rep, assertion.Field)
	if err != nil {
		return err
	}

	tol := assertion.Tolerance
	if tol == 0 {
		tol = defaultTolerance
	}
	if !resultValuesEqual(assertion.Value, actual, tol) {
		return &AssertionError{
			Type:     AssertResult,
			Expected: fmt.Sprintf("%s = %v", assertion.Field, assertion.Value),
			Actual:   fmt.Sprintf("%s = %v", assertion.Field, actual),
		}
	}
	return nil
}

// reportField resolves an assertion field name against a report.
func reportField(rep *simulate.Report, field string) (any, error) {
	perf := rep.Performance
	switch field {
	case "status":
		if perf.Failed() {
			return outcomeFailed, nil
		}
		return outcomeConverged, nil
	case "error_code":
		return string(perf.ErrorCode), nil
	case "error":
		return perf.Error, nil
	case "converged_stage":
		return perf.ConvergedStage, nil
	case "cached":
		return rep.Cached, nil
	case "run_id":
		return rep.RunID, nil
	case "attempts":
		return float64(len(perf.Attempts)), nil
	case "t_flame_K":
		return perf.TFlame, nil
	case "gamma":
		return perf.Gamma, nil
	case "product_molecular_weight_g_mol":
		return perf.ProductMolecularWeight, nil
	case "c_star_m_s":
		return perf.CStar, nil
	case "cf_vacuum":
		return perf.CfVacuum, nil
	case "isp_vacuum_sec_ideal":
		return perf.IspIdeal, nil
	case "isp_vacuum_sec_delivered":
		return perf.IspDelivered, nil
	case "burn_rate_mm_s":
		return rep.BurnRate, nil
	case "burn_rate_a":
		return rep.Config.BurnRate.A, nil
	case "oxygen_balance":
		return rep.Stoichiometry.OxygenBalance, nil
	case "reactant_enthalpy_kJ_100g":
		return rep.Stoichiometry.ReactantEnthalpy, nil
	}
	return nil, fmt.Errorf("unknown result field %q", field)
}

func resultValuesEqual(expected, actual any, tol float64) bool {
	if a, ok := actual.(float64); ok {
		e, ok := toFloat(expected)
		return ok && math.Abs(e-a) <= tol
	}
	return reflect.DeepEqual(expected, actual)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// assertDiagnostics checks the final report's diagnostic codes, in order.
func assertDiagnostics(rep *simulate.Report, assertion Assertion) error {
	var actual []string
	if rep != nil {
		for _, code := range rep.Diagnostics.Codes() {
			actual = append(actual, string(code))
		}
	}
	if len(actual) != len(assertion.Codes) || (len(actual) > 0 && !reflect.DeepEqual(actual, assertion.Codes)) {
		return &AssertionError{
			Type:     AssertDiagnostics,
			Expected: fmt.Sprintf("codes %v", assertion.Codes),
			Actual:   fmt.Sprintf("codes %v", actual),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of the runs table matches
// the where clause and carries the expected column values.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := "SELECT * FROM runs"
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "query runs",
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in runs where %s", formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in runs where %s", formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		expected := assertion.Expect[key]
		actual, ok := row[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

func toSQLValue(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case string, int64, float64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares an expected YAML value with a SQLite column
// value. SQLite hands back int64 for integers and float64 for REAL
// columns, so numbers are compared by value.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if e, ok := toFloat(expected); ok {
		a, ok := toFloat(actual)
		if !ok {
			return false
		}
		return math.Abs(e-a) <= defaultTolerance*math.Max(1, math.Abs(e))
	}

	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case []byte:
			return exp == string(act)
		}
		return false
	case bool:
		if act, ok := actual.(int64); ok {
			return exp == (act != 0)
		}
		if act, ok := actual.(bool); ok {
			return exp == act
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides store access for final_state assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result and
// returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertResult:
			err = assertResult(result.Last(), assertion)
		case AssertDiagnostics:
			err = assertDiagnostics(result.Last(), assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
