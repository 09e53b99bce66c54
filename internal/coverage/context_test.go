package coverage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustContext(t *testing.T, opts Options) *ProjectContext {
	t.Helper()
	ctx, err := NewProjectContext(opts)
	if err != nil {
		t.Fatalf("NewProjectContext: %v", err)
	}
	return ctx
}

func hitsByLine(cd *ClassData) map[int]int64 {
	out := make(map[int]int64)
	for _, n := range cd.LineNumbers() {
		out[n] = cd.Line(n).Hits()
	}
	return out
}

func TestFinalize_NoMappingsIsNoOp(t *testing.T) {
	ctx := mustContext(t, Options{})
	project := NewProjectData()

	cd := project.GetOrCreateClassData("com.example.Plain")
	cd.RecordHit(3)
	cd.RecordHit(3)
	cd.RecordHit(7)

	before := hitsByLine(cd)
	ctx.FinalizeCoverage(project)

	if diff := cmp.Diff(before, hitsByLine(cd)); diff != "" {
		t.Errorf("finalize changed an unmapped class (-want +got):\n%s", diff)
	}
}

func TestFinalize_InlineMergeAcrossCallers(t *testing.T) {
	// Caller has hits on generated lines 10-12 mapped to Inlined lines 5-7;
	// Caller2 produces the same target lines independently with hits 1,0,1.
	ctx := mustContext(t, Options{SaveSource: true})
	project := NewProjectData()

	caller := project.GetOrCreateClassData("com.example.Caller")
	for line, hits := range map[int]int{10: 2, 11: 3, 12: 1} {
		for i := 0; i < hits; i++ {
			caller.RecordHit(line)
		}
	}
	caller2 := project.GetOrCreateClassData("com.example.Caller2")
	caller2.RecordHit(10)
	caller2.TouchLine(11, "")
	caller2.RecordHit(12)

	mapping := []FileMapData{{
		ClassName: "com.example.Inlined",
		FileName:  "Inlined.java",
		Lines: []LineMapEntry{{
			GeneratedFrom: 10, GeneratedTo: 12,
			SourceFrom: 5, SourceTo: 7,
			Signature: "helper()",
		}},
	}}
	ctx.AddLineMaps("com.example.Caller", mapping)
	ctx.AddLineMaps("com.example.Caller2", mapping)

	ctx.FinalizeCoverage(project)

	inlined := project.ClassData("com.example.Inlined")
	if inlined == nil {
		t.Fatal("merge target was not created in the registry")
	}
	want := map[int]int64{5: 3, 6: 3, 7: 2}
	if diff := cmp.Diff(want, hitsByLine(inlined)); diff != "" {
		t.Errorf("merged hits mismatch (-want +got):\n%s", diff)
	}
	if got := inlined.Line(5).Signature; got != "helper()" {
		t.Errorf("signature = %q, want helper()", got)
	}
	if got := inlined.Source(); got != "Inlined.java" {
		t.Errorf("source = %q, want Inlined.java", got)
	}

	for _, cd := range []*ClassData{caller, caller2} {
		for _, line := range []int{10, 11, 12} {
			if cd.Line(line) != nil {
				t.Errorf("%s still lists relocated line %d", cd.Name(), line)
			}
		}
	}
}

func TestFinalize_MergeCommutative(t *testing.T) {
	entryA := FileMapData{
		ClassName: "com.example.Util",
		Lines:     []LineMapEntry{{GeneratedFrom: 20, GeneratedTo: 20, SourceFrom: 4, SourceTo: 4}},
	}
	entryB := FileMapData{
		ClassName: "com.example.Util",
		Lines:     []LineMapEntry{{GeneratedFrom: 30, GeneratedTo: 30, SourceFrom: 4, SourceTo: 4}},
	}

	run := func(mappings []FileMapData) int64 {
		ctx := mustContext(t, Options{})
		project := NewProjectData()
		owner := project.GetOrCreateClassData("com.example.Owner")
		owner.TouchLine(20, "").AddHits(5)
		owner.TouchLine(30, "").AddHits(7)
		ctx.AddLineMaps("com.example.Owner", mappings)
		ctx.FinalizeCoverage(project)
		return project.ClassData("com.example.Util").Line(4).Hits()
	}

	ab := run([]FileMapData{entryA, entryB})
	ba := run([]FileMapData{entryB, entryA})
	if ab != ba || ab != 12 {
		t.Errorf("merge not commutative: a,b=%d b,a=%d, want 12", ab, ba)
	}
}

func TestFinalize_SelfAppliedLastRegardlessOfOrder(t *testing.T) {
	// The self record covers the whole class. If it were applied first,
	// the foreign record would find its generated lines already erased.
	foreign := FileMapData{
		ClassName: "com.example.Helper",
		Lines:     []LineMapEntry{{GeneratedFrom: 15, GeneratedTo: 15, SourceFrom: 2, SourceTo: 2}},
	}
	self := FileMapData{
		ClassName: "com.example.Host",
		Lines:     []LineMapEntry{{GeneratedFrom: 1, GeneratedTo: 10, SourceFrom: 1, SourceTo: 10}},
	}

	for name, order := range map[string][]FileMapData{
		"foreign first": {foreign, self},
		"self first":    {self, foreign},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := mustContext(t, Options{})
			project := NewProjectData()
			host := project.GetOrCreateClassData("com.example.Host")
			host.TouchLine(3, "").AddHits(4)
			host.TouchLine(15, "").AddHits(9)

			ctx.AddLineMaps("com.example.Host", order)
			ctx.FinalizeCoverage(project)

			helper := project.ClassData("com.example.Helper")
			if helper == nil || helper.Line(2) == nil {
				t.Fatal("foreign merge did not observe pre-self line data")
			}
			if got := helper.Line(2).Hits(); got != 9 {
				t.Errorf("helper line 2 hits = %d, want 9", got)
			}
			// The self remap replaced the host's line collection: line 3
			// survives (self-mapped), line 15 does not.
			if host.Line(3) == nil || host.Line(3).Hits() != 4 {
				t.Error("self-mapped line 3 lost during swap")
			}
			if host.Line(15) != nil {
				t.Error("generated line 15 survived the self swap")
			}
		})
	}
}

func TestFinalize_ExcludedTargetNotPublished(t *testing.T) {
	ctx := mustContext(t, Options{ExcludePatterns: []string{"com.generated.*"}})
	project := NewProjectData()

	owner := project.GetOrCreateClassData("com.example.Owner")
	owner.TouchLine(40, "").AddHits(6)

	ctx.AddLineMaps("com.example.Owner", []FileMapData{{
		ClassName: "com.generated.Synthetic",
		Lines:     []LineMapEntry{{GeneratedFrom: 40, GeneratedTo: 40, SourceFrom: 1, SourceTo: 1}},
	}})
	ctx.FinalizeCoverage(project)

	if project.ClassData("com.generated.Synthetic") != nil {
		t.Error("excluded merge target leaked into the registry")
	}
	if owner.Line(40) != nil {
		t.Error("owner kept an inline-generated line mapped to an excluded class")
	}
}

func TestFinalize_MalformedMappingLineSkipped(t *testing.T) {
	ctx := mustContext(t, Options{})
	project := NewProjectData()

	owner := project.GetOrCreateClassData("com.example.Owner")
	owner.TouchLine(10, "").AddHits(1)

	// Lines 11-13 are named by the mapping but absent from the class.
	ctx.AddLineMaps("com.example.Owner", []FileMapData{{
		ClassName: "com.example.Target",
		Lines:     []LineMapEntry{{GeneratedFrom: 10, GeneratedTo: 13, SourceFrom: 1, SourceTo: 4}},
	}})
	ctx.FinalizeCoverage(project)

	target := project.ClassData("com.example.Target")
	if target == nil {
		t.Fatal("target missing")
	}
	if got := len(target.LineNumbers()); got != 1 {
		t.Errorf("target has %d lines, want 1 (absent generated lines skipped)", got)
	}
	if target.Line(1) == nil || target.Line(1).Hits() != 1 {
		t.Error("present generated line was not relocated")
	}
}

func TestFinalize_FirstSelfWinsDuplicatesForeign(t *testing.T) {
	ctx := mustContext(t, Options{})
	project := NewProjectData()

	owner := project.GetOrCreateClassData("com.example.Dup")
	owner.TouchLine(1, "").AddHits(2)
	owner.TouchLine(8, "").AddHits(3)

	ctx.AddLineMaps("com.example.Dup", []FileMapData{
		{
			ClassName: "com.example.Dup",
			Lines:     []LineMapEntry{{GeneratedFrom: 1, GeneratedTo: 1, SourceFrom: 1, SourceTo: 1}},
		},
		{
			// Second self-claiming record: processed as foreign, merging
			// back into the same registry entry.
			ClassName: "com.example.Dup",
			Lines:     []LineMapEntry{{GeneratedFrom: 8, GeneratedTo: 8, SourceFrom: 2, SourceTo: 2}},
		},
	})
	ctx.FinalizeCoverage(project)

	// The foreign-processed record merged line 8 onto line 2 before the
	// self swap; the swap then kept only self-mapped lines.
	if owner.Line(1) == nil || owner.Line(1).Hits() != 2 {
		t.Error("self-mapped line 1 incorrect after first-wins handling")
	}
	if owner.Line(8) != nil {
		t.Error("line 8 survived remap")
	}
}

func TestDropIgnoredLines_Idempotent(t *testing.T) {
	ctx := mustContext(t, Options{})
	project := NewProjectData()

	cd := project.GetOrCreateClassData("com.example.Synth")
	cd.RecordHit(1)
	cd.RecordHit(2)
	cd.RecordHit(3)

	ctx.AddIgnoredLines("com.example.Synth", map[int]struct{}{2: {}, 9: {}})

	ctx.FinalizeCoverage(project)
	once := hitsByLine(cd)

	ctx.FinalizeCoverage(project)
	twice := hitsByLine(cd)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("dropping ignored lines twice differs from once (-once +twice):\n%s", diff)
	}
	if cd.Line(2) != nil {
		t.Error("ignored line 2 still present")
	}
	if cd.Line(1) == nil || cd.Line(3) == nil {
		t.Error("non-ignored lines were dropped")
	}
}

func TestDropLineMappings_StripsFullyGeneratedClass(t *testing.T) {
	ctx := mustContext(t, Options{})
	project := NewProjectData()

	cd := project.GetOrCreateClassData("com.example.NeverRun")
	for line := 1; line <= 5; line++ {
		cd.TouchLine(line, "")
	}
	// Single self mapping covering every line, all relocated elsewhere
	// (no identity pairs), zero direct source lines.
	ctx.AddLineMaps("com.example.NeverRun", []FileMapData{{
		ClassName: "com.example.NeverRun",
		Lines:     []LineMapEntry{{GeneratedFrom: 1, GeneratedTo: 5, SourceFrom: 11, SourceTo: 15}},
	}})

	ctx.DropLineMappings(project)

	if got := cd.LineCount(); got != 0 {
		t.Errorf("stripped class has %d lines, want 0", got)
	}

	// Stripping again must be safe on already-processed data.
	ctx.DropLineMappings(project)
	if got := cd.LineCount(); got != 0 {
		t.Errorf("second strip changed result: %d lines", got)
	}
}

func TestDropClassLineMappings_KeepsIdentitySelfLines(t *testing.T) {
	ctx := mustContext(t, Options{})
	project := NewProjectData()

	cd := project.GetOrCreateClassData("com.example.Mixed")
	cd.TouchLine(1, "")
	cd.TouchLine(2, "")
	cd.TouchLine(30, "")

	ctx.AddLineMaps("com.example.Mixed", []FileMapData{{
		ClassName: "com.example.Mixed",
		Lines: []LineMapEntry{
			{GeneratedFrom: 1, GeneratedTo: 2, SourceFrom: 1, SourceTo: 2},   // direct source
			{GeneratedFrom: 30, GeneratedTo: 30, SourceFrom: 5, SourceTo: 5}, // inline copy
		},
	}})
	ctx.AddIgnoredLines("com.example.Mixed", map[int]struct{}{2: {}})

	ctx.DropClassLineMappings(cd)

	if cd.Line(1) == nil {
		t.Error("directly attributable line 1 was stripped")
	}
	if cd.Line(30) != nil {
		t.Error("inline-generated line 30 survived stripping")
	}
	if cd.Line(2) != nil {
		t.Error("ignored line 2 survived stripping")
	}
}

func TestFinalize_DropsExcludedSignatureLines(t *testing.T) {
	ctx := mustContext(t, Options{})
	project := NewProjectData()

	cd := project.GetOrCreateClassData("com.example.Filtered")
	cd.TouchLine(1, "kept()").AddHits(1)
	cd.TouchLine(2, "generated$default()").AddHits(1)
	cd.ExcludeSignature("generated$default()")

	ctx.FinalizeCoverage(project)

	if cd.Line(2) != nil {
		t.Error("line with excluded signature survived finalize")
	}
	if cd.Line(1) == nil {
		t.Error("line with kept signature was dropped")
	}
}

func TestRegistries_ConcurrentRegistration(t *testing.T) {
	ctx := mustContext(t, Options{})
	project := NewProjectData()

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				name := fmt.Sprintf("com.example.C%d", i)
				cd := project.GetOrCreateClassData(name)
				cd.RecordHit(i + 1)
				ctx.AddLineMaps(name, []FileMapData{{
					ClassName: name,
					Lines:     []LineMapEntry{{GeneratedFrom: i + 1, GeneratedTo: i + 1, SourceFrom: i + 1, SourceTo: i + 1}},
				}})
				ctx.AddIgnoredLines(name, map[int]struct{}{10000 + i: {}})
			}
		}(g)
	}
	wg.Wait()

	if got := project.ClassCount(); got != 50 {
		t.Fatalf("registry has %d classes, want 50", got)
	}

	ctx.FinalizeCoverage(project)

	for i := 0; i < 50; i++ {
		cd := project.ClassData(fmt.Sprintf("com.example.C%d", i))
		if cd.Line(i+1) == nil {
			t.Fatalf("class C%d lost its line after finalize", i)
		}
		if got := cd.Line(i + 1).Hits(); got != 16 {
			t.Errorf("class C%d line hits = %d, want 16", i, got)
		}
	}
}

func TestRegistries_LaterRegistrationOverwrites(t *testing.T) {
	ctx := mustContext(t, Options{})
	project := NewProjectData()

	owner := project.GetOrCreateClassData("com.example.Re")
	owner.TouchLine(5, "").AddHits(1)

	ctx.AddLineMaps("com.example.Re", []FileMapData{{
		ClassName: "com.example.Stale",
		Lines:     []LineMapEntry{{GeneratedFrom: 5, GeneratedTo: 5, SourceFrom: 1, SourceTo: 1}},
	}})
	ctx.AddLineMaps("com.example.Re", []FileMapData{{
		ClassName: "com.example.Fresh",
		Lines:     []LineMapEntry{{GeneratedFrom: 5, GeneratedTo: 5, SourceFrom: 2, SourceTo: 2}},
	}})

	ctx.FinalizeCoverage(project)

	if project.ClassData("com.example.Stale") != nil {
		t.Error("overwritten mapping registration was still applied")
	}
	if fresh := project.ClassData("com.example.Fresh"); fresh == nil || fresh.Line(2) == nil {
		t.Error("latest mapping registration was not applied")
	}
}

func TestMultiLineGeneratedRangeCollapsesOntoSingleSourceLine(t *testing.T) {
	ctx := mustContext(t, Options{})
	project := NewProjectData()

	owner := project.GetOrCreateClassData("com.example.Expanded")
	owner.TouchLine(7, "").AddHits(2)
	owner.TouchLine(8, "").AddHits(3)
	owner.TouchLine(9, "").AddHits(4)

	ctx.AddLineMaps("com.example.Expanded", []FileMapData{{
		ClassName: "com.example.Expanded",
		Lines:     []LineMapEntry{{GeneratedFrom: 7, GeneratedTo: 9, SourceFrom: 3, SourceTo: 3}},
	}})
	ctx.FinalizeCoverage(project)

	if got := owner.Line(3).Hits(); got != 9 {
		t.Errorf("collapsed line hits = %d, want 9", got)
	}
	if owner.LineCount() != 1 {
		t.Errorf("class has %d lines after collapse, want 1", owner.LineCount())
	}
}
