// Package module describes the loaded binaries of a crashed process in the
// shape the symbolizer needs: base address, size and the code/debug identity
// used to locate symbol files.
package module

import "strings"

// Module is a single loaded executable or library.
type Module interface {
	BaseAddress() uint64
	Size() uint64
	CodeFile() string
	CodeIdentifier() (CodeID, bool)
	DebugFile() (string, bool)
	DebugIdentifier() (DebugID, bool)
	Version() (string, bool)
}

// SimpleModule is a Module that just holds data. It is useful when a debug
// file and id are known but no crash dump is at hand.
type SimpleModule struct {
	Base       uint64
	ImageSize  uint64
	Code       string
	CodeID     *CodeID
	Debug      *string
	DebugID    *DebugID
	VersionStr *string
}

// NewSimpleModule creates a module carrying only a debug file and debug id.
func NewSimpleModule(debugFile string, debugID DebugID) *SimpleModule {
	return &SimpleModule{
		Debug:   &debugFile,
		DebugID: &debugID,
	}
}

func (m *SimpleModule) BaseAddress() uint64 { return m.Base }
func (m *SimpleModule) Size() uint64        { return m.ImageSize }
func (m *SimpleModule) CodeFile() string    { return m.Code }

func (m *SimpleModule) CodeIdentifier() (CodeID, bool) {
	if m.CodeID == nil {
		return CodeID{}, false
	}
	return *m.CodeID, true
}

func (m *SimpleModule) DebugFile() (string, bool) {
	if m.Debug == nil {
		return "", false
	}
	return *m.Debug, true
}

func (m *SimpleModule) DebugIdentifier() (DebugID, bool) {
	if m.DebugID == nil {
		return DebugID{}, false
	}
	return *m.DebugID, true
}

func (m *SimpleModule) Version() (string, bool) {
	if m.VersionStr == nil {
		return "", false
	}
	return *m.VersionStr, true
}

// Key uniquely identifies a module by value. Absent optional fields are
// distinguished from empty ones by the Has* flags.
type Key struct {
	CodeFile     string
	CodeID       string
	HasCodeID    bool
	DebugFile    string
	HasDebugFile bool
	DebugID      string
	HasDebugID   bool
}

// KeyOf derives the cache key of m.
func KeyOf(m Module) Key {
	k := Key{CodeFile: m.CodeFile()}
	if id, ok := m.CodeIdentifier(); ok {
		k.CodeID, k.HasCodeID = id.String(), true
	}
	if f, ok := m.DebugFile(); ok {
		k.DebugFile, k.HasDebugFile = f, true
	}
	if id, ok := m.DebugIdentifier(); ok {
		k.DebugID, k.HasDebugID = id.String(), true
	}
	return k
}

// String renders the key for logs and stats. The debug file and id are
// preferred, then the code file and id. Without any identifier the full
// path is used so that distinct modules sharing a file name stay apart.
func (k Key) String() string {
	switch {
	case k.HasDebugFile && k.HasDebugID:
		return Basename(k.DebugFile) + "/" + k.DebugID
	case k.HasCodeID:
		return Basename(k.CodeFile) + "/" + k.CodeID
	case k.HasDebugFile:
		return k.DebugFile
	}
	return k.CodeFile
}

// Basename returns the leaf of a Windows or POSIX style path.
func Basename(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
