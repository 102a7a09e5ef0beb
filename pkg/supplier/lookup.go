package supplier

import (
	"strings"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
)

// FileKind is the kind of file associated with a module.
type FileKind int

const (
	// BreakpadSym is a Breakpad text symbol file.
	BreakpadSym FileKind = iota
	// Binary is the module's executable or library.
	Binary
	// ExtraDebugInfo is auxiliary debug information such as a PDB.
	ExtraDebugInfo
)

func (k FileKind) String() string {
	switch k {
	case BreakpadSym:
		return "breakpad_sym"
	case Binary:
		return "binary"
	case ExtraDebugInfo:
		return "extra_debug_info"
	}
	return "unknown"
}

// FileLookup is where a file is expected: CacheRel relative to a local
// symbol directory or cache, ServerRel relative to a symbol server.
type FileLookup struct {
	CacheRel  string
	ServerRel string
}

// replaceOrAddExtension drops matchExt from filename if present, compared
// case-insensitively, and appends newExt.
func replaceOrAddExtension(filename, matchExt, newExt string) string {
	bits := strings.Split(filename, ".")
	if len(bits) > 1 && strings.EqualFold(bits[len(bits)-1], matchExt) {
		bits = bits[:len(bits)-1]
	}
	return strings.Join(append(bits, newExt), ".")
}

func debugIdentity(m module.Module) (leaf, id string, ok bool) {
	debugFile, ok := m.DebugFile()
	if !ok {
		return "", "", false
	}
	debugID, ok := m.DebugIdentifier()
	if !ok {
		return "", "", false
	}
	return module.Basename(debugFile), debugID.Breakpad(), true
}

// BreakpadSymLookup returns the path of m's symbol file in the layout of
// Microsoft's symbol server: "<debug file>/<debug id>/<debug file>.sym",
// where a ".pdb" extension of the debug file is replaced rather than kept.
func BreakpadSymLookup(m module.Module) (FileLookup, bool) {
	leaf, id, ok := debugIdentity(m)
	if !ok {
		return FileLookup{}, false
	}
	rel := strings.Join([]string{leaf, id, replaceOrAddExtension(leaf, "pdb", "sym")}, "/")
	return FileLookup{CacheRel: rel, ServerRel: rel}, true
}

// ExtraDebugInfoLookup returns the path of m's debug file, e.g. its PDB.
func ExtraDebugInfoLookup(m module.Module) (FileLookup, bool) {
	leaf, id, ok := debugIdentity(m)
	if !ok {
		return FileLookup{}, false
	}
	rel := strings.Join([]string{leaf, id, leaf}, "/")
	return FileLookup{CacheRel: rel, ServerRel: rel}, true
}

// BinaryLookup returns the path of m's binary. Locally the binary is kept
// next to the debug file; symbol servers key it by code file and code id.
func BinaryLookup(m module.Module) (FileLookup, bool) {
	codeID, ok := m.CodeIdentifier()
	if !ok {
		return FileLookup{}, false
	}
	debugLeaf, debugID, ok := debugIdentity(m)
	if !ok {
		return FileLookup{}, false
	}
	binLeaf := module.Basename(m.CodeFile())
	return FileLookup{
		CacheRel:  strings.Join([]string{debugLeaf, debugID, binLeaf}, "/"),
		ServerRel: strings.Join([]string{binLeaf, codeID.String(), binLeaf}, "/"),
	}, true
}

// MozLookup rewrites a lookup to Mozilla's server layout, where the last
// character of the file name is replaced by an underscore (the file is a
// CAB archive).
func MozLookup(l FileLookup) FileLookup {
	if l.ServerRel != "" {
		l.ServerRel = l.ServerRel[:len(l.ServerRel)-1] + "_"
	}
	return l
}

// Lookup returns the lookup for the file of the given kind.
func Lookup(m module.Module, kind FileKind) (FileLookup, bool) {
	switch kind {
	case BreakpadSym:
		return BreakpadSymLookup(m)
	case Binary:
		return BinaryLookup(m)
	case ExtraDebugInfo:
		return ExtraDebugInfoLookup(m)
	}
	return FileLookup{}, false
}
