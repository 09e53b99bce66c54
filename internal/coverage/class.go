package coverage

import (
	"sort"
	"sync"
)

// ClassData holds the sparse per-line coverage of one class.
//
// Entries are owned by a ProjectData registry and stay mutable until
// finalization; afterwards they must be treated as read-only. A ClassData
// created directly with NewClassData (rather than through a registry) is a
// discardable merge sink: it has the same behavior but is never published.
type ClassData struct {
	name string

	mu       sync.Mutex
	source   string
	lines    map[int]*LineData
	excluded map[string]struct{}
}

// NewClassData creates an empty coverage entry for the named class.
func NewClassData(name string) *ClassData {
	return &ClassData{
		name:  name,
		lines: make(map[int]*LineData),
	}
}

// Name returns the fully qualified class name.
func (c *ClassData) Name() string {
	return c.name
}

// Source returns the declared source file name, or "" if none was recorded.
func (c *ClassData) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// SetSource records the declared source file name.
func (c *ClassData) SetSource(fileName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = fileName
}

// TouchLine returns the line record for the given line, creating it if
// absent. Safe for concurrent instrumentation goroutines; the returned
// record supports atomic hit increments.
func (c *ClassData) TouchLine(number int, signature string) *LineData {
	c.mu.Lock()
	defer c.mu.Unlock()
	ld, ok := c.lines[number]
	if !ok {
		ld = NewLineData(number, signature)
		c.lines[number] = ld
	}
	return ld
}

// RecordHit increments the hit count of the given line, creating the
// record if needed.
func (c *ClassData) RecordHit(number int) {
	c.TouchLine(number, "").AddHits(1)
}

// Line returns the record for the given line, or nil if absent.
func (c *ClassData) Line(number int) *LineData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines[number]
}

// LineNumbers returns all present line numbers in ascending order.
func (c *ClassData) LineNumbers() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	nums := make([]int, 0, len(c.lines))
	for n := range c.lines {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// LineCount returns the number of present lines.
func (c *ClassData) LineCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// CoveredLineCount returns how many present lines have at least one hit.
func (c *ClassData) CoveredLineCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	covered := 0
	for _, ld := range c.lines {
		if ld.Covered() {
			covered++
		}
	}
	return covered
}

// ExcludeSignature marks a method signature whose lines must not appear
// in final output.
func (c *ClassData) ExcludeSignature(signature string) {
	if signature == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.excluded == nil {
		c.excluded = make(map[string]struct{})
	}
	c.excluded[signature] = struct{}{}
}

// SignatureExcluded reports whether the signature was registered via
// ExcludeSignature.
func (c *ClassData) SignatureExcluded(signature string) bool {
	if signature == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.excluded[signature]
	return ok
}

// snapshotLines returns a shallow copy of the current line map. The
// remap engine reads all foreign mappings from such a snapshot so that
// the in-place self remap cannot destroy data it still needs.
func (c *ClassData) snapshotLines() map[int]*LineData {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make(map[int]*LineData, len(c.lines))
	for n, ld := range c.lines {
		snap[n] = ld
	}
	return snap
}

// resetLines swaps the whole line collection for a new one.
func (c *ClassData) resetLines(lines map[int]*LineData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = lines
}

// removeLine deletes the record for the given line. Removing an absent
// line is a no-op.
func (c *ClassData) removeLine(number int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lines, number)
}

// removeLines deletes all listed line records.
func (c *ClassData) removeLines(numbers map[int]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n := range numbers {
		delete(c.lines, n)
	}
}

// dropExcludedSignatureLines removes every line whose signature is in the
// exclusion set. Safe to call repeatedly.
func (c *ClassData) dropExcludedSignatureLines() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.excluded) == 0 {
		return
	}
	for n, ld := range c.lines {
		if _, ok := c.excluded[ld.Signature]; ok {
			delete(c.lines, n)
		}
	}
}
