// Package report assembles coverage output from a finalized registry:
// a deterministic structured XML document, a multi-page annotated-source
// HTML site, and a terminal summary.
package report

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/covmap/internal/coverage"
)

// SourceLocator finds source text for classes under configured root
// directories. Roots are tried in configured order; the first readable
// candidate wins. A missing or unreadable source is not an error, it is
// reported as not-found so the caller can degrade per class.
type SourceLocator struct {
	roots []string
}

// NewSourceLocator creates a locator over the given roots.
func NewSourceLocator(roots []string) *SourceLocator {
	return &SourceLocator{roots: roots}
}

// candidates returns the paths to probe for a class's declared file, in
// configured root order: the package-relative path under each root.
func (l *SourceLocator) candidates(className, fileName string) []string {
	if fileName == "" {
		return nil
	}
	pkgPath := strings.ReplaceAll(coverage.PackageName(className), ".", string(filepath.Separator))
	paths := make([]string, 0, len(l.roots))
	for _, root := range l.roots {
		paths = append(paths, filepath.Join(root, pkgPath, fileName))
	}
	return paths
}

// SourceText returns the source of the class's declared file and true,
// or "" and false when no candidate can be read. Read failures on a
// located candidate are swallowed and the next candidate is tried.
func (l *SourceLocator) SourceText(className, fileName string) (string, bool) {
	for _, path := range l.candidates(className, fileName) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return string(data), true
	}
	return "", false
}

// splitLines breaks source text into lines without trailing newlines.
func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
