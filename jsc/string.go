package jsc

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/chazu/jscore/ffi"
)

// String owns one interned engine string.
type String struct {
	engine  *ffi.Engine
	raw     ffi.StringRef
	own     *owner
	cleanup runtime.Cleanup
}

// NewString creates a String from UTF-8 text on the default engine.
// text must not contain a NUL byte; NewString panics if it does.
func NewString(text string) *String {
	return newString(ffi.Default(), text)
}

func newString(e *ffi.Engine, text string) *String {
	if i := strings.IndexByte(text, 0); i >= 0 {
		panic(fmt.Sprintf("jsc: string contains NUL at byte %d", i))
	}
	buf := make([]byte, len(text)+1)
	copy(buf, text)

	raw := e.StringCreateWithUTF8CString(buf)
	s := &String{
		engine: e,
		raw:    raw,
		own: &owner{
			kind:    "String",
			release: func() { e.StringRelease(raw) },
		},
	}
	s.cleanup = track(s, s.own)
	return s
}

// Length returns the length in UTF-16 code units.
func (s *String) Length() int {
	s.own.check()
	return s.engine.StringGetLength(s.raw)
}

// String returns the text as UTF-8.
func (s *String) String() string {
	s.own.check()
	return s.engine.StringGetUTF8(s.raw)
}

// Equal reports whether s and other hold the same text.
func (s *String) Equal(other *String) bool {
	s.own.check()
	other.own.check()
	return s.engine.StringIsEqual(s.raw, other.raw)
}

// Close releases the string.
func (s *String) Close() {
	if s.own.close() {
		s.cleanup.Stop()
	}
}
