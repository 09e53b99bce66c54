package report

import (
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/covmap/internal/coverage"
)

// HTMLReporter writes the annotated-source site: an index page, one page
// per package and one page per class with per-line coverage markers over
// the located source text. The registry must be finalized and is treated
// as immutable; class pages render in a bounded parallel fan-out. A class
// whose source cannot be located still gets a page with a clearly marked
// placeholder instead of failing the site.
type HTMLReporter struct {
	Locator *SourceLocator

	// Title heads the index page; defaults to "Coverage Report".
	Title string

	// Parallelism bounds concurrent class-page rendering; defaults to
	// the number of CPUs.
	Parallelism int
}

type htmlLine struct {
	Number int
	Text   string
	Hits   int64
	// Status is "covered", "uncovered" or "" for non-executable lines.
	Status string
}

type htmlClass struct {
	Name         string
	Page         string
	FileName     string
	LinesValid   int
	LinesCovered int
	Percent      float64

	SourceFound bool
	Lines       []htmlLine
}

type htmlPackage struct {
	Name         string
	DisplayName  string
	Page         string
	LinesValid   int
	LinesCovered int
	Percent      float64
	Classes      []*htmlClass
}

type htmlIndex struct {
	Title        string
	LinesValid   int
	LinesCovered int
	Percent      float64
	Packages     []*htmlPackage
}

// WriteSite renders the whole site under dir, creating it if needed.
func (r *HTMLReporter) WriteSite(dir string, project *coverage.ProjectData) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	index := r.buildModel(project)

	g := new(errgroup.Group)
	limit := r.Parallelism
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g.SetLimit(limit)

	for _, pkg := range index.Packages {
		pkg := pkg
		for _, cls := range pkg.Classes {
			cls := cls
			g.Go(func() error {
				return writePage(filepath.Join(dir, cls.Page), classTemplate, cls)
			})
		}
		g.Go(func() error {
			return writePage(filepath.Join(dir, pkg.Page), packageTemplate, pkg)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return writePage(filepath.Join(dir, "index.html"), indexTemplate, index)
}

// buildModel assembles the page model from the finalized registry.
func (r *HTMLReporter) buildModel(project *coverage.ProjectData) *htmlIndex {
	title := r.Title
	if title == "" {
		title = "Coverage Report"
	}
	index := &htmlIndex{Title: title}

	byPackage := make(map[string]*htmlPackage)
	for _, cd := range project.Classes() {
		pkgName := coverage.PackageName(cd.Name())
		pkg := byPackage[pkgName]
		if pkg == nil {
			display := pkgName
			if display == "" {
				display = "(default package)"
			}
			pkg = &htmlPackage{
				Name:        pkgName,
				DisplayName: display,
				Page:        pagePath("package", pkgName),
			}
			byPackage[pkgName] = pkg
		}
		pkg.Classes = append(pkg.Classes, r.buildClass(cd))
	}

	pkgNames := make([]string, 0, len(byPackage))
	for name := range byPackage {
		pkgNames = append(pkgNames, name)
	}
	sort.Strings(pkgNames)

	for _, name := range pkgNames {
		pkg := byPackage[name]
		for _, cls := range pkg.Classes {
			pkg.LinesValid += cls.LinesValid
			pkg.LinesCovered += cls.LinesCovered
		}
		pkg.Percent = percent(pkg.LinesCovered, pkg.LinesValid)
		index.LinesValid += pkg.LinesValid
		index.LinesCovered += pkg.LinesCovered
		index.Packages = append(index.Packages, pkg)
	}
	index.Percent = percent(index.LinesCovered, index.LinesValid)
	return index
}

// buildClass annotates a class's source text with its line records.
func (r *HTMLReporter) buildClass(cd *coverage.ClassData) *htmlClass {
	cls := &htmlClass{
		Name:     cd.Name(),
		Page:     pagePath("class", cd.Name()),
		FileName: cd.Source(),
	}

	recorded := cd.LineNumbers()
	cls.LinesValid = len(recorded)
	cls.LinesCovered = cd.CoveredLineCount()
	cls.Percent = percent(cls.LinesCovered, cls.LinesValid)

	var source string
	if r.Locator != nil {
		source, cls.SourceFound = r.Locator.SourceText(cd.Name(), cd.Source())
	}
	if !cls.SourceFound {
		slog.Warn("source unavailable, rendering placeholder page",
			"class", cd.Name(), "file", cd.Source())
		// Placeholder page: recorded lines without source text.
		for _, n := range recorded {
			cls.Lines = append(cls.Lines, htmlLine{
				Number: n,
				Hits:   cd.Line(n).Hits(),
				Status: lineStatus(cd.Line(n)),
			})
		}
		return cls
	}

	sourceLines := splitLines(source)
	total := len(sourceLines)
	if len(recorded) > 0 && recorded[len(recorded)-1] > total {
		total = recorded[len(recorded)-1]
	}
	for n := 1; n <= total; n++ {
		line := htmlLine{Number: n}
		if n <= len(sourceLines) {
			line.Text = sourceLines[n-1]
		}
		if ld := cd.Line(n); ld != nil {
			line.Hits = ld.Hits()
			line.Status = lineStatus(ld)
		}
		cls.Lines = append(cls.Lines, line)
	}
	return cls
}

func lineStatus(ld *coverage.LineData) string {
	if ld == nil {
		return ""
	}
	if ld.Covered() {
		return "covered"
	}
	return "uncovered"
}

func percent(covered, valid int) float64 {
	if valid == 0 {
		return 100.0
	}
	return float64(covered) / float64(valid) * 100.0
}

// pagePath builds a site-local file name for a package or class page.
func pagePath(kind, name string) string {
	if name == "" {
		name = "default"
	}
	return fmt.Sprintf("%s-%s.html", kind, name)
}

func writePage(path string, tmpl *template.Template, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := tmpl.Execute(f, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return f.Close()
}

const siteCSS = `
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
tr.covered { background: #dcf5dc; }
tr.uncovered { background: #f5dcdc; }
td.num { color: #888; text-align: right; user-select: none; }
td.hits { color: #888; text-align: right; }
pre { margin: 0; font-family: monospace; white-space: pre-wrap; }
.placeholder { padding: 1em; background: #fff3cd; border: 1px solid #ffe69c; }
.pct { text-align: right; }
`

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>` + siteCSS + `</style></head>
<body>
<h1>{{.Title}}</h1>
<p>Total: {{printf "%.1f" .Percent}}% ({{.LinesCovered}}/{{.LinesValid}} lines)</p>
<table>
<tr><th>Package</th><th class="pct">Coverage</th><th class="pct">Lines</th></tr>
{{range .Packages}}
<tr><td><a href="{{.Page}}">{{.DisplayName}}</a></td>
<td class="pct">{{printf "%.1f" .Percent}}%</td>
<td class="pct">{{.LinesCovered}}/{{.LinesValid}}</td></tr>
{{end}}
</table>
</body></html>
`))

var packageTemplate = template.Must(template.New("package").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.DisplayName}}</title>
<style>` + siteCSS + `</style></head>
<body>
<p><a href="index.html">Index</a></p>
<h1>{{.DisplayName}}</h1>
<p>{{printf "%.1f" .Percent}}% ({{.LinesCovered}}/{{.LinesValid}} lines)</p>
<table>
<tr><th>Class</th><th class="pct">Coverage</th><th class="pct">Lines</th></tr>
{{range .Classes}}
<tr><td><a href="{{.Page}}">{{.Name}}</a></td>
<td class="pct">{{printf "%.1f" .Percent}}%</td>
<td class="pct">{{.LinesCovered}}/{{.LinesValid}}</td></tr>
{{end}}
</table>
</body></html>
`))

var classTemplate = template.Must(template.New("class").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Name}}</title>
<style>` + siteCSS + `</style></head>
<body>
<p><a href="index.html">Index</a></p>
<h1>{{.Name}}</h1>
<p>{{printf "%.1f" .Percent}}% ({{.LinesCovered}}/{{.LinesValid}} lines)</p>
{{if not .SourceFound}}
<p class="placeholder">Source unavailable{{with .FileName}} for {{.}}{{end}}; showing recorded lines only.</p>
{{end}}
<table>
{{range .Lines}}
<tr class="{{.Status}}"><td class="num">{{.Number}}</td>
<td class="hits">{{if .Status}}{{.Hits}}{{end}}</td>
<td><pre>{{.Text}}</pre></td></tr>
{{end}}
</table>
</body></html>
`))
