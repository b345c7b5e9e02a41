package engine

import (
	"fmt"
	"strings"
)

// Path identifies a prim or task in the scene, e.g. "/Tasks/Render".
type Path string

// RootPath is the absolute root.
const RootPath Path = "/"

// ParsePath validates s as an absolute scene path. Segments must be non-empty
// and the path must not end with a separator unless it is the root.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return "", NewUsageError("empty scene path", nil).WithCode(ErrCodeEmptyPath)
	}
	if !strings.HasPrefix(s, "/") {
		return "", NewUsageError(fmt.Sprintf("scene path %q is not absolute", s), nil).
			WithCode(ErrCodeInvalidPath)
	}
	if s == "/" {
		return RootPath, nil
	}
	for i, seg := range strings.Split(s[1:], "/") {
		if seg == "" {
			return "", NewUsageError(fmt.Sprintf("scene path %q has an empty segment at %d", s, i), nil).
				WithCode(ErrCodeInvalidPath)
		}
	}
	return Path(s), nil
}

// IsEmpty reports whether p is the empty path.
func (p Path) IsEmpty() bool {
	return p == ""
}

// IsAbsolute reports whether p starts at the root.
func (p Path) IsAbsolute() bool {
	return strings.HasPrefix(string(p), "/")
}

// AppendChild returns p extended by one segment.
func (p Path) AppendChild(name string) Path {
	if p == RootPath || p.IsEmpty() {
		return Path("/" + name)
	}
	return Path(string(p) + "/" + name)
}

// Name returns the last segment of p.
func (p Path) Name() string {
	s := string(p)
	return s[strings.LastIndex(s, "/")+1:]
}

// String implements fmt.Stringer.
func (p Path) String() string {
	return string(p)
}
