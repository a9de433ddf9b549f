package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/procline/pkg/recipe"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF"))

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(0, 1)

	inflowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))

	outflowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))

	neutralStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00"))
)

// Render formats the summary for a terminal.
func Render(s *Summary) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Propagation " + s.RunID))
	b.WriteString("\n\n")

	power := fmt.Sprintf("Power usage: %.1f (%.1f %s)\nSurge usage: %.1f (%.1f %s)",
		s.EUt, s.Amps, recipe.TierName(s.Tier),
		s.SurgeEUt, s.SurgeAmps, recipe.TierName(s.SurgeTier))
	b.WriteString(boxStyle.Render(power))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("Net flows"))
	b.WriteString("\n")
	if len(s.Flows) == 0 {
		b.WriteString(neutralStyle.Render("  none"))
		b.WriteString("\n")
	}
	for _, f := range s.Flows {
		switch {
		case f.Neutral:
			b.WriteString(neutralStyle.Render(fmt.Sprintf("  %s: Neutral?", f.Item)))
		case f.Flow > 0:
			b.WriteString(inflowStyle.Render(fmt.Sprintf("  %s: %g", f.Item, f.Flow)))
		default:
			b.WriteString(outflowStyle.Render(fmt.Sprintf("  %s: %g", f.Item, f.Flow)))
		}
		b.WriteString("\n")
	}

	if len(s.Groups) > 0 {
		b.WriteString(sectionStyle.Render("Groups"))
		b.WriteString("\n")
		for _, g := range s.Groups {
			fmt.Fprintf(&b, "  group %d: %d variables, rank %d, residual %.3g\n", g.Group, g.Variables, g.Rank, g.Residual)
		}
	}

	b.WriteString(sectionStyle.Render("Summary"))
	b.WriteString("\n")
	for _, m := range s.Machines {
		name := m.Machine
		if name == "" {
			name = "(no machine)"
		}
		fmt.Fprintf(&b, "%3dx %s\n", m.Count, name)
	}

	for _, w := range s.Warnings {
		b.WriteString(warningStyle.Render("warning: " + w))
		b.WriteString("\n")
	}
	return b.String()
}
