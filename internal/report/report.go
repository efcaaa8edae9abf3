// Package report renders deletion plans and run results for the operator.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/teardown/internal/engine"
	"github.com/imamik/teardown/internal/plan"
)

// Colors matching the default terminal palette used across the CLI.
var (
	colorGreen = lipgloss.Color("#22c55e")
	colorRed   = lipgloss.Color("#ef4444")
	colorBlue  = lipgloss.Color("#3b82f6")
	colorAmber = lipgloss.Color("#f59e0b")
	colorDim   = lipgloss.Color("#6b7280")
	colorWhite = lipgloss.Color("#f9fafb")
)

// Renderer writes styled output, or plain text when stdout is not a
// terminal.
type Renderer struct {
	title   lipgloss.Style
	section lipgloss.Style
	dim     lipgloss.Style
	green   lipgloss.Style
	red     lipgloss.Style
	amber   lipgloss.Style
}

// New creates a renderer. With styled false every style is a no-op.
func New(styled bool) *Renderer {
	r := &Renderer{}
	if !styled {
		plain := lipgloss.NewStyle()
		r.title, r.section, r.dim, r.green, r.red, r.amber = plain, plain, plain, plain, plain, plain
		return r
	}
	r.title = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	r.section = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	r.dim = lipgloss.NewStyle().Foreground(colorDim)
	r.green = lipgloss.NewStyle().Foreground(colorGreen)
	r.red = lipgloss.NewStyle().Foreground(colorRed)
	r.amber = lipgloss.NewStyle().Foreground(colorAmber)
	return r
}

// Plan renders the ordered phase listing.
func (r *Renderer) Plan(p plan.Plan) string {
	var b strings.Builder

	b.WriteString("\n")
	header := fmt.Sprintf("  Deletion plan: %d resources in %d phases", p.Size(), len(p.Phases))
	if p.Mode == plan.DryRun {
		header += " (dry run)"
	}
	b.WriteString(r.title.Render(header))
	b.WriteString("\n")
	b.WriteString(r.dim.Render("  " + strings.Repeat("═", 44)))
	b.WriteString("\n")

	for i, phase := range p.Phases {
		b.WriteString("\n")
		b.WriteString(r.section.Render(fmt.Sprintf("  Phase %d", i+1)))
		b.WriteString("\n")
		for _, h := range phase {
			fmt.Fprintf(&b, "    %-18s %s\n", h.Kind, h.ID)
		}
	}

	if p.Mode == plan.DryRun {
		b.WriteString("\n")
		b.WriteString(r.dim.Render("  Dry run: nothing was deleted. Re-run with --execute to apply."))
		b.WriteString("\n")
	}
	return b.String()
}

// Result renders the per-resource outcomes and a summary line. Resources
// without a terminal outcome (a cancelled run) are shown as pending.
func (r *Renderer) Result(p plan.Plan, res *engine.Result) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(r.title.Render("  Teardown result"))
	b.WriteString("\n")
	b.WriteString(r.dim.Render("  " + strings.Repeat("═", 44)))
	b.WriteString("\n")

	for i, phase := range p.Phases {
		b.WriteString("\n")
		b.WriteString(r.section.Render(fmt.Sprintf("  Phase %d", i+1)))
		b.WriteString("\n")
		for _, h := range phase {
			outcome, ok := res.Outcome(h.Key())
			label := "pending"
			style := r.dim
			detail := ""
			if ok {
				label = string(outcome.Status)
				switch outcome.Status {
				case engine.StatusDeleted:
					style = r.green
				case engine.StatusSimulated:
					style = r.dim
				case engine.StatusSkipped:
					style = r.amber
					detail = outcome.Reason
				case engine.StatusFailed:
					style = r.red
					detail = outcome.Reason
				}
			}
			fmt.Fprintf(&b, "    %-18s %-24s %s", h.Kind, h.ID, style.Render(label))
			if detail != "" {
				b.WriteString(" " + r.dim.Render(detail))
			}
			b.WriteString("\n")
		}
	}

	counts := res.Counts()
	pending := p.Size()
	for _, n := range counts {
		pending -= n
	}
	b.WriteString("\n")
	b.WriteString(r.section.Render("  Summary"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "    deleted=%d simulated=%d skipped=%d failed=%d pending=%d\n",
		counts[engine.StatusDeleted],
		counts[engine.StatusSimulated],
		counts[engine.StatusSkipped],
		counts[engine.StatusFailed],
		pending,
	)

	status := string(res.Run)
	switch res.Run {
	case engine.RunSucceeded, engine.RunSimulated:
		status = r.green.Render(status)
	case engine.RunPartiallyFailed:
		status = r.red.Render(status)
	case engine.RunCancelled:
		status = r.amber.Render(status)
	}
	fmt.Fprintf(&b, "    run: %s\n", status)

	return b.String()
}
