package coverage

import (
	"sort"
	"strings"
	"sync"
)

// ProjectData is the process-wide coverage registry mapping class names to
// their coverage entries. It is created once per run, populated
// incrementally by instrumentation and by the remap engine, and read by
// the report layer after finalization.
type ProjectData struct {
	mu      sync.RWMutex
	classes map[string]*ClassData
}

// NewProjectData creates an empty registry.
func NewProjectData() *ProjectData {
	return &ProjectData{classes: make(map[string]*ClassData)}
}

// ClassData returns the entry for the named class, or nil if the class
// was never observed.
func (p *ProjectData) ClassData(name string) *ClassData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.classes[name]
}

// GetOrCreateClassData returns the entry for the named class, creating
// and publishing it on first use. Safe for concurrent callers; exactly
// one entry per name is ever published.
func (p *ProjectData) GetOrCreateClassData(name string) *ClassData {
	p.mu.RLock()
	cd := p.classes[name]
	p.mu.RUnlock()
	if cd != nil {
		return cd
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cd = p.classes[name]; cd == nil {
		cd = NewClassData(name)
		p.classes[name] = cd
	}
	return cd
}

// ClassCount returns the number of registered classes.
func (p *ProjectData) ClassCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.classes)
}

// Classes returns all entries sorted by class name. Reports rely on this
// ordering for deterministic output.
func (p *ProjectData) Classes() []*ClassData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ClassData, 0, len(p.classes))
	for _, cd := range p.classes {
		out = append(out, cd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// PackageName returns the package portion of a fully qualified class
// name, or "" for the default package.
func PackageName(className string) string {
	idx := strings.LastIndex(className, ".")
	if idx < 0 {
		return ""
	}
	return className[:idx]
}

// SimpleName returns the class name without its package.
func SimpleName(className string) string {
	idx := strings.LastIndex(className, ".")
	if idx < 0 {
		return className
	}
	return className[idx+1:]
}
