// Command covmap remaps raw JVM line coverage data onto true source
// positions and writes XML and annotated-source HTML reports.
package main

import (
	"os"

	"github.com/albertocavalcante/covmap/internal/cmd/covmap"
)

func main() {
	os.Exit(covmap.Run(os.Args[1:]))
}
