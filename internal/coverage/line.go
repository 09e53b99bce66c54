// Package coverage provides the per-class line coverage data model,
// the concurrent registries populated by instrumentation, and the
// finalize-time remap engine that folds generated and inlined line
// positions back onto true source lines.
//
// The package is used in two phases with different concurrency rules.
// During collection, many instrumentation goroutines may create classes,
// record hits and register mapping data concurrently. Finalization is
// single-threaded and runs exactly once; after it the model is read-only.
package coverage

import "sync/atomic"

// LineData is the coverage record for a single source line.
//
// Hit increments are atomic so that instrumentation goroutines can share
// a line without locking. Everything else is only written while the
// owning ClassData lock is held, or during single-threaded finalization.
type LineData struct {
	// Number is the 1-based line number.
	Number int

	// Signature is the JVM signature of the method owning this line,
	// empty if unknown.
	Signature string

	hits atomic.Int64
}

// NewLineData creates a line record with zero hits.
func NewLineData(number int, signature string) *LineData {
	return &LineData{Number: number, Signature: signature}
}

// Hits returns the current hit count.
func (l *LineData) Hits() int64 {
	return l.hits.Load()
}

// AddHits increases the hit count by delta.
func (l *LineData) AddHits(delta int64) {
	l.hits.Add(delta)
}

// Covered reports whether the line was executed at least once.
func (l *LineData) Covered() bool {
	return l.hits.Load() > 0
}
