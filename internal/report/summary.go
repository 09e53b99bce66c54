package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/albertocavalcante/covmap/internal/coverage"
)

// SummaryReporter prints a short per-package coverage table to a
// terminal. Coloring is enabled only when the writer is a real terminal.
type SummaryReporter struct {
	// Color forces colored output regardless of terminal detection.
	Color bool
}

// Write prints the summary for a finalized registry.
func (r *SummaryReporter) Write(w io.Writer, project *coverage.ProjectData) {
	colored := r.Color || isTerminal(w)

	byPackage := make(map[string][2]int) // covered, valid
	for _, cd := range project.Classes() {
		pkg := coverage.PackageName(cd.Name())
		stats := byPackage[pkg]
		stats[0] += cd.CoveredLineCount()
		stats[1] += cd.LineCount()
		byPackage[pkg] = stats
	}

	pkgNames := make([]string, 0, len(byPackage))
	for name := range byPackage {
		pkgNames = append(pkgNames, name)
	}
	sort.Strings(pkgNames)

	var totalCovered, totalValid int
	for _, name := range pkgNames {
		stats := byPackage[name]
		totalCovered += stats[0]
		totalValid += stats[1]
		display := name
		if display == "" {
			display = "(default package)"
		}
		pct := percent(stats[0], stats[1])
		writef(w, "%-50s %s (%d/%d lines)\n",
			display, formatPercent(pct, colored), stats[0], stats[1])
	}

	pct := percent(totalCovered, totalValid)
	writef(w, "Total: %s (%d/%d lines)\n",
		formatPercent(pct, colored), totalCovered, totalValid)
}

// formatPercent renders a percentage, colored by coverage band when
// color is enabled.
func formatPercent(pct float64, colored bool) string {
	if !colored {
		return fmt.Sprintf("%6.1f%%", pct)
	}
	switch {
	case pct >= 80:
		return color.GreenString("%6.1f%%", pct)
	case pct >= 50:
		return color.YellowString("%6.1f%%", pct)
	default:
		return color.RedString("%6.1f%%", pct)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
