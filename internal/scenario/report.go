package scenario

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	reportTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	reportNameStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	reportDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	reportNoteStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("7"))
)

// Render formats scenario results for the terminal. When color is false the
// styles collapse to plain text.
func Render(results []Result, color bool) string {
	title := reportTitleStyle
	name := reportNameStyle
	dim := reportDimStyle
	note := reportNoteStyle
	if !color {
		plain := lipgloss.NewStyle()
		title, name, dim, note = plain, plain, plain, plain
	}

	p := message.NewPrinter(language.English)
	var b strings.Builder
	b.WriteString(title.Render("kestrel scenario report"))
	b.WriteByte('\n')

	var totalOps uint64
	var totalElapsed time.Duration
	for _, r := range results {
		totalOps += r.Ops
		totalElapsed += r.Elapsed
		b.WriteByte('\n')
		b.WriteString(name.Render(r.Name))
		b.WriteByte('\n')
		b.WriteString(p.Sprintf("  ops      %d\n", r.Ops))
		b.WriteString(p.Sprintf("  ticks    %d\n", r.Ticks))
		b.WriteString(p.Sprintf("  elapsed  %v\n", r.Elapsed.Round(time.Microsecond)))
		for _, n := range r.Notes {
			b.WriteString("  ")
			b.WriteString(note.Render(n))
			b.WriteByte('\n')
		}
	}

	b.WriteByte('\n')
	b.WriteString(dim.Render(p.Sprintf("%d scenarios, %d ops total in %v",
		len(results), totalOps, totalElapsed.Round(time.Microsecond))))
	b.WriteByte('\n')
	return b.String()
}
