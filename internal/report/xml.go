package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/albertocavalcante/covmap/internal/coverage"
)

// XMLReporter writes the structured coverage document: a complete,
// deterministic dump of every class with per-line hit counts and
// aggregate percentages, ordered module -> package -> class -> line by
// name. Identical input always produces identical output.
type XMLReporter struct {
	// ModuleName labels the single module element; defaults to "all".
	ModuleName string
}

type xmlReport struct {
	XMLName      xml.Name    `xml:"report"`
	LinesValid   int         `xml:"lines-valid,attr"`
	LinesCovered int         `xml:"lines-covered,attr"`
	LineRate     string      `xml:"line-rate,attr"`
	Modules      []xmlModule `xml:"module"`
}

type xmlModule struct {
	Name         string       `xml:"name,attr"`
	LinesValid   int          `xml:"lines-valid,attr"`
	LinesCovered int          `xml:"lines-covered,attr"`
	LineRate     string       `xml:"line-rate,attr"`
	Packages     []xmlPackage `xml:"package"`
}

type xmlPackage struct {
	Name         string     `xml:"name,attr"`
	LinesValid   int        `xml:"lines-valid,attr"`
	LinesCovered int        `xml:"lines-covered,attr"`
	LineRate     string     `xml:"line-rate,attr"`
	Classes      []xmlClass `xml:"class"`
}

type xmlClass struct {
	Name         string    `xml:"name,attr"`
	FileName     string    `xml:"filename,attr,omitempty"`
	LinesValid   int       `xml:"lines-valid,attr"`
	LinesCovered int       `xml:"lines-covered,attr"`
	LineRate     string    `xml:"line-rate,attr"`
	Lines        []xmlLine `xml:"lines>line"`
}

type xmlLine struct {
	Number    int    `xml:"number,attr"`
	Hits      int64  `xml:"hits,attr"`
	Signature string `xml:"signature,attr,omitempty"`
}

// Write emits the document for a finalized registry.
func (r *XMLReporter) Write(w io.Writer, project *coverage.ProjectData) error {
	moduleName := r.ModuleName
	if moduleName == "" {
		moduleName = "all"
	}

	module := xmlModule{Name: moduleName}
	byPackage := make(map[string][]*coverage.ClassData)
	for _, cd := range project.Classes() {
		pkg := coverage.PackageName(cd.Name())
		byPackage[pkg] = append(byPackage[pkg], cd)
	}

	pkgNames := make([]string, 0, len(byPackage))
	for name := range byPackage {
		pkgNames = append(pkgNames, name)
	}
	sort.Strings(pkgNames)

	for _, pkgName := range pkgNames {
		pkg := xmlPackage{Name: pkgName}
		for _, cd := range byPackage[pkgName] {
			cls := xmlClass{
				Name:     cd.Name(),
				FileName: cd.Source(),
			}
			for _, n := range cd.LineNumbers() {
				ld := cd.Line(n)
				cls.Lines = append(cls.Lines, xmlLine{
					Number:    ld.Number,
					Hits:      ld.Hits(),
					Signature: ld.Signature,
				})
				cls.LinesValid++
				if ld.Covered() {
					cls.LinesCovered++
				}
			}
			cls.LineRate = rate(cls.LinesCovered, cls.LinesValid)
			pkg.LinesValid += cls.LinesValid
			pkg.LinesCovered += cls.LinesCovered
			pkg.Classes = append(pkg.Classes, cls)
		}
		pkg.LineRate = rate(pkg.LinesCovered, pkg.LinesValid)
		module.LinesValid += pkg.LinesValid
		module.LinesCovered += pkg.LinesCovered
		module.Packages = append(module.Packages, pkg)
	}
	module.LineRate = rate(module.LinesCovered, module.LinesValid)

	doc := xmlReport{
		LinesValid:   module.LinesValid,
		LinesCovered: module.LinesCovered,
		LineRate:     module.LineRate,
		Modules:      []xmlModule{module},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding coverage XML: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteFile writes the document to the given path.
func (r *XMLReporter) WriteFile(path string, project *coverage.ProjectData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := r.Write(f, project); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// rate formats covered/valid as a fixed-precision ratio; an empty class
// counts as fully covered, matching the aggregate percentage convention.
func rate(covered, valid int) string {
	if valid == 0 {
		return "1.0000"
	}
	return fmt.Sprintf("%.4f", float64(covered)/float64(valid))
}
