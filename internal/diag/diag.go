// Package diag carries non-fatal advisories alongside computed results.
//
// Numeric warnings (mass-balance drift, out-of-band gamma, high product
// molecular weight) never alter control flow. They are collected into a List
// attached to the result so callers can surface, log, or ignore them.
package diag

import (
	"fmt"
	"log/slog"
	"sort"
)

// Code identifies a diagnostic category.
type Code string

const (
	// CodeMassBalance: recipe percentages do not sum to 100.
	CodeMassBalance Code = "MASS_BALANCE"

	// CodeHighMolecularWeight: product mean molecular weight above 50 g/mol.
	CodeHighMolecularWeight Code = "HIGH_MOLECULAR_WEIGHT"

	// CodeGammaOutOfBand: specific-heat ratio outside [1.15, 1.35].
	CodeGammaOutOfBand Code = "GAMMA_OUT_OF_BAND"

	// CodeWarmStartFailed: the fixed-temperature warm start did not converge.
	CodeWarmStartFailed Code = "WARM_START_FAILED"

	// CodeCatalystApplied: the burn-rate coefficient was scaled by the catalyst rule.
	CodeCatalystApplied Code = "CATALYST_APPLIED"

	// CodeConfigDefaults: no configuration file was found; defaults are in effect.
	CodeConfigDefaults Code = "CONFIG_DEFAULTS"

	// CodeCachedResult: the performance result was served from the run store.
	CodeCachedResult Code = "CACHED_RESULT"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one advisory. Values holds the numbers behind the message so
// that machine consumers do not have to parse text.
type Diagnostic struct {
	Code     Code               `json:"code"`
	Severity Severity           `json:"severity"`
	Message  string             `json:"message"`
	Values   map[string]float64 `json:"values,omitempty"`
}

// Warning builds a warning-level diagnostic.
func Warning(code Code, values map[string]float64, format string, args ...any) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Values: values}
}

// Info builds an info-level diagnostic.
func Info(code Code, values map[string]float64, format string, args ...any) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityInfo, Message: fmt.Sprintf(format, args...), Values: values}
}

// List is an ordered collection of diagnostics.
type List []Diagnostic

// Add appends d.
func (l *List) Add(d Diagnostic) {
	*l = append(*l, d)
}

// Has reports whether any diagnostic carries code.
func (l List) Has(code Code) bool {
	for _, d := range l {
		if d.Code == code {
			return true
		}
	}
	return false
}

// Codes returns the codes in insertion order.
func (l List) Codes() []Code {
	codes := make([]Code, len(l))
	for i, d := range l {
		codes[i] = d.Code
	}
	return codes
}

// Warnings returns only the warning-level entries.
func (l List) Warnings() List {
	var out List
	for _, d := range l {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

// Log writes every diagnostic to logger, warnings at Warn and the rest at Info.
func (l List) Log(logger *slog.Logger) {
	if logger == nil {
		return
	}
	for _, d := range l {
		attrs := []any{"code", string(d.Code)}
		keys := make([]string, 0, len(d.Values))
		for k := range d.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, k, d.Values[k])
		}
		if d.Severity == SeverityWarning {
			logger.Warn(d.Message, attrs...)
		} else {
			logger.Info(d.Message, attrs...)
		}
	}
}
