package symfile

import "fmt"

// Tags used in ParseError and Diagnostic.
const (
	TagTotallyUnparsable = "totally unparsable"
	TagBadModule         = "malformed MODULE record"
	TagDuplicateModule   = "duplicate MODULE record"
	TagBadInfo           = "malformed INFO record"
	TagBadFile           = "malformed FILE record"
	TagBadFunc           = "malformed FUNC record"
	TagBadLine           = "malformed line record"
	TagOrphanLine        = "line record without FUNC"
	TagLineOutsideFunc   = "line record outside of its FUNC"
	TagBadInlineOrigin   = "malformed INLINE_ORIGIN record"
	TagBadInline         = "malformed INLINE record"
	TagBadPublic         = "malformed PUBLIC record"
	TagBadStack          = "malformed STACK record"
	TagBadCFI            = "malformed STACK CFI record"
	TagOrphanCFI         = "STACK CFI delta without INIT"
	TagCFIOutsideInit    = "STACK CFI delta outside of its INIT"
	TagBadWin            = "malformed STACK WIN record"
	TagOutsideModule     = "record outside of module"
	TagAddressOverflow   = "address range overflows"
	TagUnknownWinStack   = "unknown STACK WIN type"
	TagLineTooLong       = "record exceeds the maximum line length"
)

// ParseError is returned when a symbol file cannot be used at all. Line is
// the 1-based line of the offending input.
type ParseError struct {
	Tag  string
	Line uint64
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s at line %d", e.Tag, e.Line)
}
