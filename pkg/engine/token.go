package engine

import "unique"

// Token is an interned identifier used to key blackboard entries and name
// drivers. Two tokens built from the same string compare equal, and
// comparison does not look at the string bytes.
type Token struct {
	h unique.Handle[string]
}

// NewToken interns s and returns its token.
func NewToken(s string) Token {
	return Token{h: unique.Make(s)}
}

// String returns the interned string. The zero Token returns "".
func (t Token) String() string {
	if t.h == (unique.Handle[string]{}) {
		return ""
	}
	return t.h.Value()
}

// IsEmpty reports whether t is the zero token or was built from "".
func (t Token) IsEmpty() bool {
	return t.String() == ""
}

// MarshalText implements encoding.TextMarshaler.
func (t Token) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Well-known tokens shared by the engine, the scene index and tasks.
var (
	// TokenDrivers keys the driver vector seeded at the start of every frame.
	TokenDrivers = NewToken("drivers")

	// TokenRenderPassState keys the render pass state published by setup tasks.
	TokenRenderPassState = NewToken("renderPassState")

	// TokenViewport keys viewport parameters seeded by callers.
	TokenViewport = NewToken("viewport")

	// TokenFrameID keys the identifier of the frame being executed.
	TokenFrameID = NewToken("frameId")

	// TokenDrawRecords keys the draw records produced during Execute.
	TokenDrawRecords = NewToken("drawRecords")
)
