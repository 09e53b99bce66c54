package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/albertocavalcante/covmap/internal/coverage"
)

func TestHTMLReporter_Site(t *testing.T) {
	srcRoot := t.TempDir()
	writeSource(t, srcRoot, "com/example", "Foo.java", "class Foo {\n  void run() {}\n  void dead() {}\n}\n")

	project := coverage.NewProjectData()
	foo := project.GetOrCreateClassData("com.example.Foo")
	foo.SetSource("Foo.java")
	foo.TouchLine(2, "run()").AddHits(4)
	foo.TouchLine(3, "dead()")

	outDir := t.TempDir()
	r := &HTMLReporter{Locator: NewSourceLocator([]string{srcRoot})}
	if err := r.WriteSite(outDir, project); err != nil {
		t.Fatalf("WriteSite: %v", err)
	}

	index := readFile(t, filepath.Join(outDir, "index.html"))
	if !strings.Contains(index, "com.example") {
		t.Error("index page does not list the package")
	}
	if !strings.Contains(index, "50.0%") {
		t.Errorf("index page missing aggregate percentage:\n%s", index)
	}

	pkg := readFile(t, filepath.Join(outDir, "package-com.example.html"))
	if !strings.Contains(pkg, "com.example.Foo") {
		t.Error("package page does not list the class")
	}

	cls := readFile(t, filepath.Join(outDir, "class-com.example.Foo.html"))
	if !strings.Contains(cls, "void run()") {
		t.Error("class page does not render source text")
	}
	if !strings.Contains(cls, `class="covered"`) || !strings.Contains(cls, `class="uncovered"`) {
		t.Error("class page missing per-line coverage markers")
	}
	if strings.Contains(cls, "Source unavailable") {
		t.Error("located source rendered with placeholder")
	}
}

func TestHTMLReporter_SourceUnavailablePlaceholder(t *testing.T) {
	project := coverage.NewProjectData()
	ghost := project.GetOrCreateClassData("com.example.Ghost")
	ghost.SetSource("Ghost.java")
	ghost.TouchLine(3, "").AddHits(1)

	outDir := t.TempDir()
	r := &HTMLReporter{Locator: NewSourceLocator([]string{t.TempDir()})}
	if err := r.WriteSite(outDir, project); err != nil {
		t.Fatalf("WriteSite must not fail on missing source: %v", err)
	}

	cls := readFile(t, filepath.Join(outDir, "class-com.example.Ghost.html"))
	if !strings.Contains(cls, "Source unavailable") {
		t.Error("missing source did not render the placeholder")
	}
	if !strings.Contains(cls, `class="covered"`) {
		t.Error("placeholder page dropped the recorded lines")
	}
}

func TestHTMLReporter_DefaultPackagePage(t *testing.T) {
	project := coverage.NewProjectData()
	project.GetOrCreateClassData("Top").RecordHit(1)

	outDir := t.TempDir()
	r := &HTMLReporter{Locator: NewSourceLocator(nil)}
	if err := r.WriteSite(outDir, project); err != nil {
		t.Fatalf("WriteSite: %v", err)
	}

	index := readFile(t, filepath.Join(outDir, "index.html"))
	if !strings.Contains(index, "(default package)") {
		t.Error("default package not labeled on index page")
	}
	if _, err := os.Stat(filepath.Join(outDir, "package-default.html")); err != nil {
		t.Errorf("default package page missing: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}
