// Package cmdtest provides a testscript-based test harness for the
// covmap CLI.
//
// It uses txtar format test files to specify input files and expected
// outputs, making it easy to write end-to-end CLI tests.
//
// Example test file (testdata/covmap/usage.txtar):
//
//	# A missing output format is a usage error
//	! exec covmap agent.json
//	stderr 'at least one output format'
//
//	-- agent.json --
//	{"version": 1, "classes": []}
package cmdtest

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/albertocavalcante/covmap/internal/cmd/covmap"
)

// Run executes the testscript tests in the given directory.
func Run(t *testing.T, dir string) {
	testscript.Run(t, testscript.Params{
		Dir: dir,
	})
}

// Main is the TestMain function that should be called from test files.
// It registers the covmap binary as a testscript command.
func Main(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"covmap": wrapRun(covmap.Run),
	}))
}

// wrapRun wraps a Run(args []string) int function to func() int for
// testscript. The args are taken from os.Args[1:].
func wrapRun(run func(args []string) int) func() int {
	return func() int {
		return run(os.Args[1:])
	}
}
