package machox

import "bytes"

// NameLen is the width of segname and sectname fields in Mach-O load commands.
const NameLen = 16

// FixedName is a raw segment or section name, zero padded to NameLen bytes.
// Two names match only if all NameLen bytes are equal.
type FixedName [NameLen]byte

var (
	// SegmentText is "__TEXT" followed by 10 zero bytes.
	SegmentText = FixedName{'_', '_', 'T', 'E', 'X', 'T'}
	// SectionText is "__text" followed by 10 zero bytes.
	SectionText = FixedName{'_', '_', 't', 'e', 'x', 't'}
)

// NewFixedName zero pads s. Names longer than NameLen are truncated.
func NewFixedName(s string) FixedName {
	var n FixedName
	copy(n[:], s)
	return n
}

// Equal is exact byte equality, padding included.
func (n FixedName) Equal(o FixedName) bool {
	return n == o
}

// String returns the name up to the first NUL.
func (n FixedName) String() string {
	if i := bytes.IndexByte(n[:], 0); i >= 0 {
		return string(n[:i])
	}
	return string(n[:])
}
