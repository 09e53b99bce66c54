package coverage

import (
	"sync"
	"sync/atomic"
)

// Options configures a ProjectContext.
type Options struct {
	// IncludePatterns and ExcludePatterns are wildcard class-name
	// patterns; see ClassFilter for precedence rules.
	IncludePatterns []string
	ExcludePatterns []string

	// SaveSource records declared source file names on classes created
	// during remapping, so reports can locate their source text.
	SaveSource bool
}

// ProjectContext accumulates remapping instructions while instrumentation
// is still running and applies them once during finalization.
//
// The mapping and ignored-line registries are allocated lazily on first
// write: a reader loads the shared pointer without locking, and on a miss
// takes the lock, re-checks, and publishes the map exactly once. Both
// registries overwrite on repeated registration for the same class; they
// never merge. Nothing reads them until finalization begins.
type ProjectContext struct {
	filter     *ClassFilter
	saveSource bool

	mu          sync.Mutex
	lineMaps    atomic.Pointer[sync.Map] // class name -> []FileMapData
	ignoredSets atomic.Pointer[sync.Map] // class name -> map[int]struct{}
}

// NewProjectContext creates a context with the given options.
func NewProjectContext(opts Options) (*ProjectContext, error) {
	filter, err := NewClassFilter(opts.IncludePatterns, opts.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	return &ProjectContext{filter: filter, saveSource: opts.SaveSource}, nil
}

// Filter returns the active class filter.
func (c *ProjectContext) Filter() *ClassFilter {
	return c.filter
}

// AddLineMaps registers the debug mapping records for a class. A later
// registration for the same class replaces the earlier one. Safe for
// concurrent callers.
func (c *ProjectContext) AddLineMaps(className string, mappings []FileMapData) {
	if len(mappings) == 0 {
		return
	}
	c.lineMapRegistry().Store(className, mappings)
}

// AddIgnoredLines registers generated line numbers that must never appear
// in final output for the class, regardless of hits. Empty sets are
// dropped. Safe for concurrent callers.
func (c *ProjectContext) AddIgnoredLines(className string, lines map[int]struct{}) {
	if len(lines) == 0 {
		return
	}
	c.ignoredRegistry().Store(className, lines)
}

func (c *ProjectContext) lineMapRegistry() *sync.Map {
	if m := c.lineMaps.Load(); m != nil {
		return m
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.lineMaps.Load(); m != nil {
		return m
	}
	m := new(sync.Map)
	c.lineMaps.Store(m)
	return m
}

func (c *ProjectContext) ignoredRegistry() *sync.Map {
	if m := c.ignoredSets.Load(); m != nil {
		return m
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.ignoredSets.Load(); m != nil {
		return m
	}
	m := new(sync.Map)
	c.ignoredSets.Store(m)
	return m
}

// FinalizeCoverage relocates hit data onto true source positions and
// drops ignored and signature-excluded lines. It must run exactly once,
// single-threaded, after collection is complete; no writer may mutate
// coverage entries concurrently. Classes without mapping records and
// without ignored lines are left untouched.
func (c *ProjectContext) FinalizeCoverage(project *ProjectData) {
	c.applyLineMappings(project)
	c.dropIgnoredLines(project)
	c.dropExcludedSignatures(project)
}

// DropLineMappings strips generated and inlined lines from all classes
// with registered mappings, without relocating hits. Used for classes
// that never executed, so that zero-coverage reporting does not list
// synthetic lines. Safe to invoke on already-finalized data.
func (c *ProjectContext) DropLineMappings(project *ProjectData) {
	if m := c.lineMaps.Load(); m != nil {
		m.Range(func(key, value any) bool {
			if cd := project.ClassData(key.(string)); cd != nil {
				stripMappedLines(cd, value.([]FileMapData))
			}
			return true
		})
	}
	c.dropIgnoredLines(project)
}

// DropClassLineMappings strips generated lines and ignored lines from a
// single class, typically on class unload.
func (c *ProjectContext) DropClassLineMappings(classData *ClassData) {
	if m := c.lineMaps.Load(); m != nil {
		if v, ok := m.Load(classData.Name()); ok {
			stripMappedLines(classData, v.([]FileMapData))
		}
	}
	if m := c.ignoredSets.Load(); m != nil {
		if v, ok := m.Load(classData.Name()); ok {
			classData.removeLines(v.(map[int]struct{}))
		}
	}
}

// applyLineMappings moves hits from generated positions onto mapped
// source positions for every class with registered mapping records.
func (c *ProjectContext) applyLineMappings(project *ProjectData) {
	m := c.lineMaps.Load()
	if m == nil {
		return
	}
	m.Range(func(key, value any) bool {
		className := key.(string)
		classData := project.ClassData(className)
		if classData == nil {
			// The class registered mappings but was never observed;
			// there is nothing to relocate.
			return true
		}
		c.remapClass(project, classData, value.([]FileMapData))
		return true
	})
}

// remapClass applies one class's mapping records. All foreign records are
// processed first, in registration order, reading the owner's line data
// through a pre-remap snapshot; the self record runs last and atomically
// swaps the owner's line collection for the source-positioned one. The
// snapshot guarantees the foreign merges observe pre-self data no matter
// how records were ordered at registration.
func (c *ProjectContext) remapClass(project *ProjectData, owner *ClassData, mappings []FileMapData) {
	snapshot := owner.snapshotLines()
	moved := make(map[int]struct{})

	var self *FileMapData
	for i := range mappings {
		fd := &mappings[i]
		if self == nil && fd.IsSelf(owner.Name()) {
			// First self-claiming record wins; duplicates fall through
			// and are processed as foreign.
			self = fd
			continue
		}

		var target *ClassData
		if c.filter.Includes(fd.ClassName) {
			target = project.GetOrCreateClassData(fd.ClassName)
			if c.saveSource && target.Source() == "" {
				target.SetSource(fd.FileName)
			}
		} else {
			// Discardable merge sink: the mapping must still be applied
			// so the owner does not keep inline-generated lines, but the
			// excluded target is never published to the registry.
			target = NewClassData(fd.ClassName)
		}
		mergeMappedLines(fd.Lines, snapshot, target, moved)
	}

	if self != nil {
		fresh := NewClassData(owner.Name())
		mergeMappedLines(self.Lines, snapshot, fresh, moved)
		owner.resetLines(fresh.lines)
		return
	}
	// No self record: the owner keeps its direct lines, minus everything
	// that was relocated.
	owner.removeLines(moved)
}

// mergeMappedLines relocates hit data for every generated line named by
// the entries and present in src. Destination collisions combine: hit
// counts sum and the signature refreshes from the mapping record. The
// combine is commutative and associative, so entry processing order does
// not affect the merged result. Generated lines absent from src are
// skipped silently.
func mergeMappedLines(entries []LineMapEntry, src map[int]*LineData, target *ClassData, moved map[int]struct{}) {
	for _, e := range entries {
		forEachMappedLine(e, func(generated, source int) {
			ld, ok := src[generated]
			if !ok {
				return
			}
			dst := target.TouchLine(source, e.Signature)
			if e.Signature != "" {
				dst.Signature = e.Signature
			}
			dst.AddHits(ld.Hits())
			moved[generated] = struct{}{}
		})
	}
}

// stripMappedLines removes every generated line named by the records from
// the class, with no hit relocation.
func stripMappedLines(classData *ClassData, mappings []FileMapData) {
	for i := range mappings {
		fd := &mappings[i]
		keepSelfSource := fd.IsSelf(classData.Name())
		for _, e := range fd.Lines {
			forEachMappedLine(e, func(generated, source int) {
				if keepSelfSource && generated == source {
					// An identity self mapping marks a line directly
					// attributable to the class's own source.
					return
				}
				classData.removeLine(generated)
			})
		}
	}
}

// forEachMappedLine pairs generated lines with source lines for one
// entry. A single-line source range collapses the whole generated range
// onto it; otherwise lines pair by offset, clamped to the shorter range.
func forEachMappedLine(e LineMapEntry, fn func(generated, source int)) {
	if e.GeneratedTo < e.GeneratedFrom {
		return
	}
	if e.SourceFrom == e.SourceTo {
		for g := e.GeneratedFrom; g <= e.GeneratedTo; g++ {
			fn(g, e.SourceFrom)
		}
		return
	}
	span := e.GeneratedTo - e.GeneratedFrom
	if s := e.SourceTo - e.SourceFrom; s < span {
		span = s
	}
	for off := 0; off <= span; off++ {
		fn(e.GeneratedFrom+off, e.SourceFrom+off)
	}
}

// dropIgnoredLines removes registered ignored lines from every class.
// Removing an absent line is a no-op, so repeated drops are idempotent
// and ignored lines cannot reappear through later merges.
func (c *ProjectContext) dropIgnoredLines(project *ProjectData) {
	m := c.ignoredSets.Load()
	if m == nil {
		return
	}
	m.Range(func(key, value any) bool {
		if cd := project.ClassData(key.(string)); cd != nil {
			cd.removeLines(value.(map[int]struct{}))
		}
		return true
	})
}

// dropExcludedSignatures removes lines belonging to excluded method
// signatures from every class. Idempotent.
func (c *ProjectContext) dropExcludedSignatures(project *ProjectData) {
	for _, cd := range project.Classes() {
		cd.dropExcludedSignatureLines()
	}
}
