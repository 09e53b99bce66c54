// Package covmap implements the covmap command: it loads raw coverage
// data produced by an instrumenting agent, remaps hit data onto true
// source positions, and writes the requested report formats.
package covmap

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/covmap/internal/covconfig"
	"github.com/albertocavalcante/covmap/internal/covdata"
	"github.com/albertocavalcante/covmap/internal/coverage"
	"github.com/albertocavalcante/covmap/internal/report"
	"github.com/albertocavalcante/covmap/internal/version"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// stringSliceFlag allows a flag to be specified multiple times.
type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// options are the effective settings after merging config and flags.
type options struct {
	xmlPath  string
	htmlDir  string
	title    string
	sources  []string
	include  []string
	exclude  []string
	verbose  bool
	dataFile []string
}

// Run executes covmap with the given arguments.
// Returns exit code.
func Run(args []string) int {
	return RunWithIO(context.Background(), args, os.Stdin, os.Stdout, os.Stderr)
}

// RunWithIO allows custom IO for embedding/testing.
func RunWithIO(_ context.Context, args []string, _ io.Reader, stdout, stderr io.Writer) int {
	var (
		xmlFlag     string
		htmlFlag    string
		titleFlag   string
		sourceFlags stringSliceFlag
		includes    stringSliceFlag
		excludes    stringSliceFlag
		configFlag  string
		watchFlag   bool
		versionFlag bool
		verboseFlag bool
	)

	fs := flag.NewFlagSet("covmap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&xmlFlag, "xml", "", "structured XML document output path")
	fs.StringVar(&htmlFlag, "html", "", "annotated-source site output directory")
	fs.StringVar(&titleFlag, "title", "", "title for the HTML report")
	fs.Var(&sourceFlags, "source", "source root directory (can be specified multiple times)")
	fs.Var(&includes, "include", "class name include pattern, '*' wildcards (can be specified multiple times)")
	fs.Var(&excludes, "exclude", "class name exclude pattern, takes precedence over includes (can be specified multiple times)")
	fs.StringVar(&configFlag, "config", "", "config file path (covmap.toml)")
	fs.BoolVar(&watchFlag, "watch", false, "watch data files and regenerate reports on change")
	fs.BoolVar(&watchFlag, "w", false, "watch mode (short for -watch)")
	fs.BoolVar(&versionFlag, "version", false, "print version and exit")
	fs.BoolVar(&verboseFlag, "v", false, "verbose output")

	fs.Usage = func() {
		writeln(stderr, "Usage: covmap [flags] <coverage-data>...")
		writeln(stderr)
		writeln(stderr, "Coverage remapper and reporter.")
		writeln(stderr)
		writeln(stderr, "Loads raw per-line coverage data, folds generated and inlined")
		writeln(stderr, "line positions back onto true source lines, and writes reports.")
		writeln(stderr)
		writeln(stderr, "Input files may be JSON (.json) or binary (.covbin).")
		writeln(stderr, "At least one output format must be requested: -xml or -html.")
		writeln(stderr)
		writeln(stderr, "Flags:")
		fs.PrintDefaults()
		writeln(stderr)
		writeln(stderr, "Examples:")
		writeln(stderr, "  covmap -xml coverage.xml agent.covbin")
		writeln(stderr, "  covmap -html htmlcov -source src/main/java agent.json")
		writeln(stderr, "  covmap -xml out.xml -exclude 'com.generated.*' agent.json")
		writeln(stderr, "  covmap -w -html htmlcov agent.json   # regenerate on change")
		writeln(stderr)
		writeln(stderr, "Configuration:")
		writeln(stderr, "  covmap.toml via -config or the COVMAP_CONFIG env var;")
		writeln(stderr, "  CLI flags override config values.")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitUsage
	}

	if versionFlag {
		writef(stdout, "covmap %s\n", version.String())
		return exitOK
	}

	// Load configuration (config file provides defaults, CLI overrides).
	var cfg *covconfig.Config
	if configFlag != "" {
		var err error
		cfg, err = covconfig.Load(configFlag)
		if err != nil {
			writef(stderr, "covmap: %v\n", err)
			return exitUsage
		}
	} else {
		var configPath string
		var err error
		cfg, configPath, err = covconfig.Discover()
		if err != nil {
			writef(stderr, "covmap: %v\n", err)
			return exitUsage
		}
		if configPath != "" && verboseFlag {
			writef(stderr, "covmap: using config %s\n", configPath)
		}
	}

	opts := options{
		xmlPath: cfg.Report.XML,
		htmlDir: cfg.Report.HTML,
		title:   cfg.Report.Title,
		sources: append([]string{}, cfg.Report.Sources...),
		include: append([]string{}, cfg.Filters.Include...),
		exclude: append([]string{}, cfg.Filters.Exclude...),
		verbose: verboseFlag,
	}
	if xmlFlag != "" {
		opts.xmlPath = xmlFlag
	}
	if htmlFlag != "" {
		opts.htmlDir = htmlFlag
	}
	if titleFlag != "" {
		opts.title = titleFlag
	}
	opts.sources = append(opts.sources, sourceFlags...)
	opts.include = append(opts.include, includes...)
	opts.exclude = append(opts.exclude, excludes...)

	if opts.xmlPath == "" && opts.htmlDir == "" {
		writeln(stderr, "covmap: at least one output format must be requested: -xml or -html")
		writeln(stderr)
		fs.Usage()
		return exitUsage
	}

	opts.dataFile = fs.Args()
	if len(opts.dataFile) == 0 {
		writeln(stderr, "covmap: no coverage data files given")
		writeln(stderr)
		fs.Usage()
		return exitUsage
	}

	// Validate filter patterns before any work.
	if _, err := coverage.NewClassFilter(opts.include, opts.exclude); err != nil {
		writef(stderr, "covmap: %v\n", err)
		return exitUsage
	}

	if watchFlag {
		return runWatchMode(opts, stdout, stderr)
	}
	return generate(opts, stdout, stderr)
}

// generate performs one load-finalize-report cycle.
// Returns exit code.
func generate(opts options, stdout, stderr io.Writer) int {
	project, err := loadAndFinalize(opts)
	if err != nil {
		writef(stderr, "covmap: %v\n", err)
		return exitFailed
	}

	// Both formats are attempted even when one fails; the failure is
	// reported per format and reflected in the exit code.
	fail := false

	if opts.xmlPath != "" {
		r := &report.XMLReporter{}
		if err := r.WriteFile(opts.xmlPath, project); err != nil {
			fail = true
			writef(stderr, "covmap: XML generation failed: %v\n", err)
		} else if opts.verbose {
			writef(stderr, "covmap: wrote %s\n", opts.xmlPath)
		}
	}

	if opts.htmlDir != "" {
		r := &report.HTMLReporter{
			Locator: report.NewSourceLocator(opts.sources),
			Title:   opts.title,
		}
		if err := r.WriteSite(opts.htmlDir, project); err != nil {
			fail = true
			writef(stderr, "covmap: HTML generation failed: %v\n", err)
		} else if opts.verbose {
			writef(stderr, "covmap: wrote %s%c\n", opts.htmlDir, filepath.Separator)
		}
	}

	summary := &report.SummaryReporter{}
	summary.Write(stdout, project)

	if fail {
		return exitFailed
	}
	return exitOK
}

// loadAndFinalize builds a fresh registry from the data files and runs
// the remap engine exactly once over it.
func loadAndFinalize(opts options) (*coverage.ProjectData, error) {
	ctx, err := coverage.NewProjectContext(coverage.Options{
		IncludePatterns: opts.include,
		ExcludePatterns: opts.exclude,
		SaveSource:      true,
	})
	if err != nil {
		return nil, err
	}

	project := coverage.NewProjectData()
	for _, path := range opts.dataFile {
		doc, err := covdata.Load(path)
		if err != nil {
			return nil, err
		}
		covdata.Apply(doc, project, ctx)
	}

	ctx.FinalizeCoverage(project)
	return project, nil
}

// runWatchMode regenerates the reports whenever a data file changes.
func runWatchMode(opts options, stdout, stderr io.Writer) int {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		writef(stderr, "covmap: creating watcher: %v\n", err)
		return exitFailed
	}
	defer func() { _ = watcher.Close() }()

	for _, file := range opts.dataFile {
		if err := watcher.Add(file); err != nil {
			writef(stderr, "covmap: watching %s: %v\n", file, err)
			return exitFailed
		}
	}

	writef(stdout, "covmap: watching %d data file(s); press Ctrl+C to stop\n", len(opts.dataFile))
	code := generate(opts, stdout, stderr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			writef(stdout, "covmap: stopping watch mode\n")
			return code

		case event, ok := <-watcher.Events:
			if !ok {
				return code
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			writef(stdout, "covmap: %s changed, regenerating\n", filepath.Base(event.Name))
			code = generate(opts, stdout, stderr)

		case err, ok := <-watcher.Errors:
			if !ok {
				return code
			}
			writef(stderr, "covmap: watcher error: %v\n", err)
		}
	}
}

// Helper functions for writing output. Write errors are intentionally
// ignored: these write to stdout/stderr where there is no recovery if
// the pipe is broken, and the exit code still reflects the run status.
func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}
