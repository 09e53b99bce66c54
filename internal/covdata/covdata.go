// Package covdata reads and writes raw coverage data files, the
// interchange format between an instrumenting agent and the reporter.
//
// Two encodings of the same document are supported: JSON for debuggability
// and a compact msgpack binary for agent output. The encoding is picked by
// file extension; BinaryExt selects msgpack, anything else is JSON.
package covdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/albertocavalcante/covmap/internal/coverage"
)

// BinaryExt is the file extension selecting the msgpack encoding.
const BinaryExt = ".covbin"

// Document is the top-level coverage data file.
type Document struct {
	Version int             `json:"version" msgpack:"version"`
	Classes []ClassDocument `json:"classes" msgpack:"classes"`
}

// ClassDocument carries one class's raw hit data and remapping inputs.
type ClassDocument struct {
	Name               string            `json:"name" msgpack:"name"`
	FileName           string            `json:"file_name,omitempty" msgpack:"file_name,omitempty"`
	Lines              []LineDocument    `json:"lines,omitempty" msgpack:"lines,omitempty"`
	Mappings           []MappingDocument `json:"mappings,omitempty" msgpack:"mappings,omitempty"`
	IgnoredLines       []int             `json:"ignored_lines,omitempty" msgpack:"ignored_lines,omitempty"`
	ExcludedSignatures []string          `json:"excluded_signatures,omitempty" msgpack:"excluded_signatures,omitempty"`
}

// LineDocument is one recorded line.
type LineDocument struct {
	Number    int    `json:"number" msgpack:"number"`
	Hits      int64  `json:"hits" msgpack:"hits"`
	Signature string `json:"signature,omitempty" msgpack:"signature,omitempty"`
}

// MappingDocument is one debug mapping record.
type MappingDocument struct {
	ClassName string          `json:"class_name" msgpack:"class_name"`
	FileName  string          `json:"file_name,omitempty" msgpack:"file_name,omitempty"`
	Lines     []RangeDocument `json:"lines" msgpack:"lines"`
}

// RangeDocument is one generated-to-source range mapping.
type RangeDocument struct {
	GeneratedFrom int    `json:"generated_from" msgpack:"generated_from"`
	GeneratedTo   int    `json:"generated_to" msgpack:"generated_to"`
	SourceFrom    int    `json:"source_from" msgpack:"source_from"`
	SourceTo      int    `json:"source_to" msgpack:"source_to"`
	Signature     string `json:"signature,omitempty" msgpack:"signature,omitempty"`
}

// Load reads a coverage data file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc Document
	if filepath.Ext(path) == BinaryExt {
		if err := msgpack.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return &doc, nil
}

// Save writes a coverage data file, holding an advisory lock so a
// concurrently writing agent and a reporter cannot interleave.
func Save(path string, doc *Document) error {
	fileLock := flock.New(path + ".lock")
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer func() { _ = fileLock.Unlock() }()

	var data []byte
	var err error
	if filepath.Ext(path) == BinaryExt {
		data, err = msgpack.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Apply feeds a document into the coverage registry and the remapping
// context. Calling it for several documents merges them: hit counts for
// the same line add up, while mapping and ignored-line registrations for
// the same class follow the registry overwrite rule.
func Apply(doc *Document, project *coverage.ProjectData, ctx *coverage.ProjectContext) {
	for _, cls := range doc.Classes {
		cd := project.GetOrCreateClassData(cls.Name)
		if cls.FileName != "" && cd.Source() == "" {
			cd.SetSource(cls.FileName)
		}
		for _, line := range cls.Lines {
			cd.TouchLine(line.Number, line.Signature).AddHits(line.Hits)
		}
		for _, sig := range cls.ExcludedSignatures {
			cd.ExcludeSignature(sig)
		}

		if len(cls.Mappings) > 0 {
			mappings := make([]coverage.FileMapData, 0, len(cls.Mappings))
			for _, m := range cls.Mappings {
				entries := make([]coverage.LineMapEntry, 0, len(m.Lines))
				for _, r := range m.Lines {
					entries = append(entries, coverage.LineMapEntry{
						GeneratedFrom: r.GeneratedFrom,
						GeneratedTo:   r.GeneratedTo,
						SourceFrom:    r.SourceFrom,
						SourceTo:      r.SourceTo,
						Signature:     r.Signature,
					})
				}
				mappings = append(mappings, coverage.FileMapData{
					ClassName: m.ClassName,
					FileName:  m.FileName,
					Lines:     entries,
				})
			}
			ctx.AddLineMaps(cls.Name, mappings)
		}

		if len(cls.IgnoredLines) > 0 {
			ignored := make(map[int]struct{}, len(cls.IgnoredLines))
			for _, n := range cls.IgnoredLines {
				ignored[n] = struct{}{}
			}
			ctx.AddIgnoredLines(cls.Name, ignored)
		}
	}
}

// FromProject builds a document from a registry, typically after
// finalization. Lines are emitted in ascending order and classes in name
// order so the output is stable.
func FromProject(project *coverage.ProjectData) *Document {
	doc := &Document{Version: 1}
	for _, cd := range project.Classes() {
		cls := ClassDocument{Name: cd.Name(), FileName: cd.Source()}
		for _, n := range cd.LineNumbers() {
			ld := cd.Line(n)
			cls.Lines = append(cls.Lines, LineDocument{
				Number:    ld.Number,
				Hits:      ld.Hits(),
				Signature: ld.Signature,
			})
		}
		doc.Classes = append(doc.Classes, cls)
	}
	return doc
}
