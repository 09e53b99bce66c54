package coverage

// LineMapEntry maps a contiguous range of generated (bytecode) lines onto
// source lines of the class named by the enclosing FileMapData.
//
// When the source range is a single line, every generated line in the
// range collapses onto it (typical for a multi-line construct expanded
// from one statement). Otherwise generated and source lines are paired by
// offset; if the ranges differ in length the pairing stops at the shorter
// one and the remainder is ignored, per the malformed-mapping rule.
type LineMapEntry struct {
	// GeneratedFrom..GeneratedTo is the inclusive range of line numbers
	// as they appear in instrumentation output.
	GeneratedFrom int
	GeneratedTo   int

	// SourceFrom..SourceTo is the inclusive range of true source lines.
	SourceFrom int
	SourceTo   int

	// Signature is the declared signature of the mapped method; it
	// refreshes the signature of destination lines when hits move.
	Signature string
}

// FileMapData is one debug mapping record: all range mappings from the
// owning class's generated output onto one target class.
//
// A record whose ClassName equals the owning class is a self-mapping and
// folds the class's own generated lines back onto its own source lines.
// Any other record is a foreign mapping, typical for inlined code copied
// into a caller. If several records claim to be self-mappings, only the
// first encountered is treated as self; the rest are processed as foreign.
type FileMapData struct {
	// ClassName is the fully qualified name of the mapping target.
	ClassName string

	// FileName is the declared source file of the target class.
	FileName string

	// Lines are the range mappings, in registration order.
	Lines []LineMapEntry
}

// IsSelf reports whether the record maps the owner onto itself.
func (f *FileMapData) IsSelf(ownerClassName string) bool {
	return f.ClassName == ownerClassName
}
