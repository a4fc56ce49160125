package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/ancpsim/internal/diag"
	"github.com/roach88/ancpsim/internal/simulate"
	"github.com/roach88/ancpsim/internal/stoich"
	"github.com/roach88/ancpsim/internal/store"
	"github.com/roach88/ancpsim/internal/thermo"
)

// Semantic colors, adaptive to light and dark terminals.
var (
	colorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorDim  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
)

// styles renders for one writer. Color is dropped automatically when the
// writer is not a terminal.
type styles struct {
	title   lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	pass    lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	dim     lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true),
		section: r.NewStyle().Bold(true).Underline(true),
		label:   r.NewStyle(),
		pass:    r.NewStyle().Foreground(colorPass),
		warn:    r.NewStyle().Foreground(colorWarn),
		fail:    r.NewStyle().Foreground(colorFail).Bold(true),
		dim:     r.NewStyle().Foreground(colorDim),
	}
}

// reportWriter accumulates the text report.
type reportWriter struct {
	st  styles
	buf strings.Builder
}

func (r *reportWriter) line(indent int, format string, args ...any) {
	r.buf.WriteString(strings.Repeat("  ", indent))
	fmt.Fprintf(&r.buf, format, args...)
	r.buf.WriteByte('\n')
}

func (r *reportWriter) section(name string) {
	if r.buf.Len() > 0 {
		r.buf.WriteByte('\n')
	}
	r.line(0, "%s", r.st.section.Render(name))
}

// simulateInputs echoes where the evaluation inputs came from.
type simulateInputs struct {
	RecipeFile string
}

func renderSimulate(w io.Writer, in simulateInputs, rep *simulate.Report) error {
	r := &reportWriter{st: newStyles(w)}
	r.line(0, "%s", r.st.title.Render("ANCP-Sim: Ammonium Nitrate Chemical Propulsion Simulator"))

	r.section("Simulation Inputs")
	cfgFile := rep.ConfigFile
	if cfgFile == "" {
		cfgFile = r.st.dim.Render("(defaults)")
	}
	r.line(1, "Configuration File: %s", cfgFile)
	r.line(1, "Recipe File: %s", in.RecipeFile)
	r.line(1, "Chamber Pressure: %.1f bar", rep.ChamberPressureBar)
	for _, kv := range rep.Config.Settings() {
		r.line(2, "%s = %s", kv[0], kv[1])
	}

	r.writeStoich(rep.Recipe.DisplayName(), rep.Stoichiometry)
	r.writePerformance(rep)
	r.line(1, "Burn Rate at Chamber Pressure: %.2f mm/s", rep.BurnRate)

	if rep.RunID != "" {
		suffix := ""
		if rep.Cached {
			suffix = " " + r.st.dim.Render("(cached)")
		}
		r.line(1, "Run: %s%s", rep.RunID, suffix)
	}

	r.writeDiagnostics(rep.Diagnostics)
	_, err := io.WriteString(w, r.buf.String())
	return err
}

func (r *reportWriter) writeStoich(name string, res *stoich.Result) {
	r.section("Stoichiometry Results")
	r.line(1, "Propellant: %s", name)
	r.line(1, "Elemental Moles (per 100g):")
	for _, el := range sortedElements(res.ElementalMoles) {
		r.line(2, "%-2s: %.4f mol", el, res.ElementalMoles[el])
	}
	r.line(1, "Reactant Enthalpy: %.2f kJ/100g", res.ReactantEnthalpy)
	r.line(1, "Oxygen Balance: %.2f %%", res.OxygenBalance)
}

func (r *reportWriter) writePerformance(rep *simulate.Report) {
	res := rep.Performance
	r.section("Performance Results")
	if res.Failed() {
		r.line(1, "%s %s", r.st.fail.Render("Calculation Error ["+string(res.ErrorCode)+"]:"), res.Error)
		return
	}

	r.line(1, "Thermodynamic Properties:")
	r.line(2, "Flame Temperature (T_flame): %.1f K", res.TFlame)
	r.line(2, "Specific Heat Ratio (gamma): %.4f", res.Gamma)
	r.line(2, "Product Mol. Weight: %.2f g/mol", res.ProductMolecularWeight)

	r.line(1, "Ideal Performance:")
	r.line(2, "Characteristic Velocity (C*): %.1f m/s", res.CStar)
	r.line(2, "Thrust Coefficient (Cf, vacuum): %.4f", res.CfVacuum)
	r.line(2, "Vacuum Specific Impulse (Isp): %.1f s", res.IspIdeal)

	r.line(1, "Delivered Performance (with efficiencies):")
	r.line(2, "Vacuum Specific Impulse (Isp): %s", r.st.pass.Render(fmt.Sprintf("%.1f s", res.IspDelivered)))

	if len(res.MajorProducts) > 0 {
		r.line(1, "Major Products (mole fraction):")
		for _, p := range res.MajorProducts {
			r.line(2, "%-8s %.4f %s", p.Name, p.MoleFraction, r.st.dim.Render(string(p.Phase)))
		}
	}
	r.line(1, "Converged Stage: %s", res.ConvergedStage)
}

func (r *reportWriter) writeDiagnostics(list diag.List) {
	if len(list) == 0 {
		return
	}
	r.section("Diagnostics")
	for _, d := range list {
		mark := r.st.dim.Render("i")
		if d.Severity == diag.SeverityWarning {
			mark = r.st.warn.Render("!")
		}
		r.line(1, "%s [%s] %s", mark, d.Code, d.Message)
	}
}

func renderStoich(w io.Writer, name string, res *stoich.Result) error {
	r := &reportWriter{st: newStyles(w)}
	r.writeStoich(name, res)
	r.writeDiagnostics(res.Diagnostics)
	_, err := io.WriteString(w, r.buf.String())
	return err
}

func renderHistory(w io.Writer, runs []store.Summary) error {
	r := &reportWriter{st: newStyles(w)}
	if len(runs) == 0 {
		r.line(0, "No runs recorded.")
		_, err := io.WriteString(w, r.buf.String())
		return err
	}

	header := fmt.Sprintf("%-36s  %-20s  %-16s  %7s  %-9s  %9s  %9s",
		"ID", "CREATED", "PROPELLANT", "PC_BAR", "STATUS", "T_FLAME_K", "ISP_DEL_S")
	r.line(0, "%s", r.st.title.Render(header))
	for _, run := range runs {
		status := r.st.pass.Render(fmt.Sprintf("%-9s", run.Status))
		tFlame, isp := fmt.Sprintf("%9.1f", run.TFlame), fmt.Sprintf("%9.1f", run.IspDelivered)
		if run.Status == store.StatusFailed {
			status = r.st.fail.Render(fmt.Sprintf("%-9s", run.Status))
			tFlame, isp = fmt.Sprintf("%9s", "-"), fmt.Sprintf("%9s", run.ErrorCode)
		}
		r.line(0, "%-36s  %-20s  %-16s  %7.1f  %s  %s  %s",
			run.ID,
			run.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			truncate(run.PropellantName, 16),
			run.ChamberPressureBar,
			status, tFlame, isp)
	}
	_, err := io.WriteString(w, r.buf.String())
	return err
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func sortedElements(moles map[string]float64) []string {
	els := make([]string, 0, len(moles))
	for el := range moles {
		els = append(els, el)
	}
	sort.Strings(els)
	return els
}

// performanceError converts a failed result into the command's exit error.
func performanceError(res *thermo.Result) error {
	if !res.Failed() {
		return nil
	}
	exitErr := WrapExitError(ExitFailure, "performance calculation failed", res.Err())
	exitErr.Reported = true
	return exitErr
}
