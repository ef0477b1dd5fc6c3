package tui

import (
	"fmt"
	"strings"

	"beatsketch/internal/analysis"
	"beatsketch/internal/beat"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E8A33D"))

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// RenderSummary formats the run summary as a title, a classification count
// table and a feature average table.
func RenderSummary(s analysis.Summary) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Analysis Summary"))
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render(fmt.Sprintf("%d beats • %d remote • %d local",
		s.TotalBeats, s.RemoteClassifications, s.LocalClassifications)))
	sb.WriteString("\n\n")

	counts := newTable("Sound", "Count")
	for _, sound := range beat.Sounds {
		counts.Row(sound.String(), fmt.Sprintf("%d", s.ClassificationCounts[sound]))
	}

	f := s.FeatureAverages
	features := newTable("Feature", "Average")
	for i, e := range f.Bands() {
		features.Row(beat.Bands[i].Name, fmt.Sprintf("%.3f", e))
	}
	features.
		Row("noisiness", fmt.Sprintf("%.3f", f.Noisiness)).
		Row("duration", fmt.Sprintf("%.3fs", f.Duration)).
		Row("crestFactor", fmt.Sprintf("%.3f", f.CrestFactor)).
		Row("attackTime", fmt.Sprintf("%.3fs", f.AttackTime)).
		Row("decayRatio", fmt.Sprintf("%.3f", f.DecayRatio))

	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, counts.Render(), "  ", features.Render()))
	sb.WriteString("\n\n")

	p := s.Processing
	sb.WriteString(infoStyle.Render(fmt.Sprintf("Features %.2fms avg (%.2fms total) • Classification %.2fms avg (%.2fms total)",
		p.FeatureAvgMs, p.FeatureTotalMs, p.ClassifyAvgMs, p.ClassifyTotalMs)))
	sb.WriteString("\n")
	return sb.String()
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// renderTrace formats one onset as a single progress line.
func renderTrace(tr analysis.Trace) string {
	line := fmt.Sprintf("#%-3d %8.4fs  %-12s %-6s  features %.2fms  classify %.2fms",
		tr.Index+1, tr.OnsetTime, tr.Sound, tr.Source, tr.FeatureMs, tr.ClassifyMs)
	if tr.Err != "" {
		return line + "\n" + warnStyle.Render("     remote failed: "+tr.Err)
	}
	return line
}
