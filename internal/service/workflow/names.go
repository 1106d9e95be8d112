package workflow

import (
	"bytes"
	"io"
	"path"
	"strings"
)

// safeName keeps the base of name and replaces anything outside
// [A-Za-z0-9._-] so it can sit in a blob path.
func safeName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "file"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
