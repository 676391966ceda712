package ffi

import (
	"bytes"
	"fmt"
	"unicode/utf16"
)

// StringCreateWithUTF8CString creates a string from a NUL-terminated UTF-8
// buffer. Bytes after the first NUL are ignored; a buffer without a NUL is
// read to its end.
func (e *Engine) StringCreateWithUTF8CString(b []byte) StringRef {
	if n := bytes.IndexByte(b, 0); n >= 0 {
		b = b[:n]
	}
	return e.newString(string(b))
}

// newString creates a string from Go text without NUL truncation. Engine
// results (ToString, JSON) may legitimately contain U+0000.
func (e *Engine) newString(text string) StringRef {
	units := utf16.Encode([]rune(text))

	e.mu.Lock()
	defer e.mu.Unlock()

	s := StringRef(e.allocID())
	e.strings[s] = &interned{units: units}
	e.stats.StringsCreated++
	return s
}

// StringRelease releases s.
func (e *Engine) StringRelease(s StringRef) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.strings[s]; !ok {
		panic(fmt.Sprintf("ffi: release of released string %d", s))
	}
	delete(e.strings, s)
	e.stats.StringsReleased++
}

// StringGetLength returns the number of UTF-16 code units in s.
func (e *Engine) StringGetLength(s StringRef) int {
	return len(e.str(s).units)
}

// StringGetUTF8 transcodes s back to UTF-8.
func (e *Engine) StringGetUTF8(s StringRef) string {
	return string(utf16.Decode(e.str(s).units))
}

// StringIsEqual reports whether a and b hold the same code units.
func (e *Engine) StringIsEqual(a, b StringRef) bool {
	ua, ub := e.str(a).units, e.str(b).units
	if len(ua) != len(ub) {
		return false
	}
	for i := range ua {
		if ua[i] != ub[i] {
			return false
		}
	}
	return true
}

func (e *Engine) str(s StringRef) *interned {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.strings[s]
	if !ok {
		panic(fmt.Sprintf("ffi: use of released string %d", s))
	}
	return st
}

// goString returns the UTF-8 text of s, or "" for NULL.
func (e *Engine) goString(s StringRef) string {
	if s == 0 {
		return ""
	}
	return e.StringGetUTF8(s)
}
