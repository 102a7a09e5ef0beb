package module

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DebugID identifies the debug information of a module: a GUID (or a build
// id folded into one) plus an age appendix.
type DebugID struct {
	UUID     uuid.UUID
	Appendix uint32
}

type invalidDebugIDError struct {
	id string
}

func (e invalidDebugIDError) Error() string {
	return fmt.Sprintf("invalid debug ID: %q", e.id)
}

// ParseDebugID accepts both the hyphenated form
// "abcd1234-abcd-1234-abcd-abcd12345678-a" and the Breakpad form
// "ABCD1234ABCD1234ABCDABCD12345678a".
func ParseDebugID(s string) (DebugID, error) {
	var (
		guid     string
		appendix string
	)
	switch {
	case len(s) >= 36 && s[8] == '-':
		guid = s[:36]
		appendix = strings.TrimPrefix(s[36:], "-")
	case len(s) >= 32:
		guid = s[:32]
		appendix = s[32:]
	default:
		return DebugID{}, invalidDebugIDError{id: s}
	}

	u, err := uuid.Parse(guid)
	if err != nil {
		return DebugID{}, invalidDebugIDError{id: s}
	}
	id := DebugID{UUID: u}
	if appendix != "" {
		age, err := strconv.ParseUint(appendix, 16, 32)
		if err != nil {
			return DebugID{}, invalidDebugIDError{id: s}
		}
		id.Appendix = uint32(age)
	}
	return id, nil
}

// MustParseDebugID is like ParseDebugID but panics on malformed input.
func MustParseDebugID(s string) DebugID {
	id, err := ParseDebugID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Breakpad renders the id the way Breakpad symbol stores lay out their
// directories: upper-case GUID hex immediately followed by the lower-case
// hex appendix.
func (id DebugID) Breakpad() string {
	return strings.ToUpper(hex.EncodeToString(id.UUID[:])) + strconv.FormatUint(uint64(id.Appendix), 16)
}

func (id DebugID) String() string {
	if id.Appendix == 0 {
		return id.UUID.String()
	}
	return id.UUID.String() + "-" + strconv.FormatUint(uint64(id.Appendix), 16)
}

func (id DebugID) IsZero() bool {
	return id.UUID == uuid.Nil && id.Appendix == 0
}

// CodeID identifies the binary itself, e.g. a PE timestamp+size or an ELF
// build id. It is kept as lower-case hex text.
type CodeID struct {
	id string
}

func NewCodeID(s string) CodeID {
	return CodeID{id: strings.ToLower(s)}
}

func (c CodeID) String() string { return c.id }
