package jsc

import (
	"github.com/chazu/jscore/ffi"
)

// Type is the dynamic type tag of a Value.
type Type = ffi.Type

const (
	TypeUndefined = ffi.TypeUndefined
	TypeNull      = ffi.TypeNull
	TypeBoolean   = ffi.TypeBoolean
	TypeNumber    = ffi.TypeNumber
	TypeString    = ffi.TypeString
	TypeObject    = ffi.TypeObject
	TypeSymbol    = ffi.TypeSymbol
	TypeBigInt    = ffi.TypeBigInt
)

// Value is a non-owning reference to an engine value. The zero Value is
// empty: it refers to nothing, which is distinct from JavaScript null and
// undefined.
type Value struct {
	raw ffi.ValueRef
	ctx *Context
}

// use asserts that v may be used with ctx.
func (v Value) use(ctx *Context) {
	ctx.own.check()
	if v.ctx != nil && v.ctx != ctx {
		panic(ErrStaleValue)
	}
}

// ValueWithBoolean creates a boolean value.
func ValueWithBoolean(ctx *Context, b bool) Value {
	ctx.own.check()
	return Value{raw: ctx.engine.ValueMakeBoolean(ctx.raw, b), ctx: ctx}
}

// ValueWithNumber creates a number value. NaN and the infinities are kept.
func ValueWithNumber(ctx *Context, n float64) Value {
	ctx.own.check()
	return Value{raw: ctx.engine.ValueMakeNumber(ctx.raw, n), ctx: ctx}
}

// ValueWithString creates a string value. s must not contain NUL.
func ValueWithString(ctx *Context, s string) Value {
	ctx.own.check()
	str := newString(ctx.engine, s)
	defer str.Close()
	return Value{raw: ctx.engine.ValueMakeString(ctx.raw, str.raw), ctx: ctx}
}

// Null returns the JavaScript null value.
func Null(ctx *Context) Value {
	ctx.own.check()
	return Value{raw: ctx.engine.ValueMakeNull(ctx.raw), ctx: ctx}
}

// Undefined returns the JavaScript undefined value.
func Undefined(ctx *Context) Value {
	ctx.own.check()
	return Value{raw: ctx.engine.ValueMakeUndefined(ctx.raw), ctx: ctx}
}

// ValueFromJSON parses s as JSON. It returns the empty Value if s is not
// valid JSON.
func ValueFromJSON(ctx *Context, s string) Value {
	ctx.own.check()
	str := newString(ctx.engine, s)
	defer str.Close()
	raw := ctx.engine.ValueMakeFromJSONString(ctx.raw, str.raw)
	if raw.IsNull() {
		return Value{}
	}
	return Value{raw: raw, ctx: ctx}
}

// IsEmpty reports whether v refers to nothing. It does not consult the engine.
func (v Value) IsEmpty() bool {
	return v.raw.IsNull()
}

// Type returns the dynamic type of v. The empty Value reports TypeUndefined.
func (v Value) Type(ctx *Context) Type {
	v.use(ctx)
	return ctx.engine.ValueGetType(ctx.raw, v.raw)
}

// IsBoolean reports whether v is a boolean. The empty Value is not.
func (v Value) IsBoolean(ctx *Context) bool {
	v.use(ctx)
	return ctx.engine.ValueIsBoolean(ctx.raw, v.raw)
}

// IsNull reports whether v is JavaScript null. The empty Value is not null.
func (v Value) IsNull(ctx *Context) bool {
	v.use(ctx)
	return ctx.engine.ValueIsNull(ctx.raw, v.raw)
}

// IsUndefined reports whether v is undefined. The empty Value is not.
func (v Value) IsUndefined(ctx *Context) bool {
	v.use(ctx)
	return ctx.engine.ValueIsUndefined(ctx.raw, v.raw)
}

// IsNumber reports whether v is a number.
func (v Value) IsNumber(ctx *Context) bool {
	v.use(ctx)
	return ctx.engine.ValueIsNumber(ctx.raw, v.raw)
}

// IsString reports whether v is a string.
func (v Value) IsString(ctx *Context) bool {
	v.use(ctx)
	return ctx.engine.ValueIsString(ctx.raw, v.raw)
}

// IsObject reports whether v is an object. Functions are objects.
func (v Value) IsObject(ctx *Context) bool {
	v.use(ctx)
	return ctx.engine.ValueIsObject(ctx.raw, v.raw)
}

// IsArray reports whether v is an Array.
func (v Value) IsArray(ctx *Context) bool {
	v.use(ctx)
	return ctx.engine.ValueIsArray(ctx.raw, v.raw)
}

// IsDate reports whether v is a Date.
func (v Value) IsDate(ctx *Context) bool {
	v.use(ctx)
	return ctx.engine.ValueIsDate(ctx.raw, v.raw)
}

// ToBoolean converts v by JavaScript truthiness. The empty Value is false.
func (v Value) ToBoolean(ctx *Context) bool {
	v.use(ctx)
	return ctx.engine.ValueToBoolean(ctx.raw, v.raw)
}

// ToNumber converts v to a number. Conversion can throw (symbols, objects
// whose valueOf throws); the thrown value is returned as an *Exception.
// The empty Value converts to NaN.
func (v Value) ToNumber(ctx *Context) (float64, error) {
	v.use(ctx)
	var exc ffi.ValueRef
	n := ctx.engine.ValueToNumber(ctx.raw, v.raw, &exc)
	if !exc.IsNull() {
		return 0, ctx.exception(exc)
	}
	return n, nil
}

// ToString converts v to a string as String(v) would, except that symbols throw.
func (v Value) ToString(ctx *Context) (string, error) {
	v.use(ctx)
	s, exc := ctx.toString(v.raw)
	if !exc.IsNull() {
		return "", ctx.exception(exc)
	}
	return s, nil
}

// ToJSON serializes v with JSON.stringify using indent spaces per level.
// Values without a JSON form, such as undefined, produce "".
func (v Value) ToJSON(ctx *Context, indent int) (string, error) {
	v.use(ctx)
	var exc ffi.ValueRef
	raw := ctx.engine.ValueCreateJSONString(ctx.raw, v.raw, indent, &exc)
	if !exc.IsNull() {
		return "", ctx.exception(exc)
	}
	if raw == 0 {
		return "", nil
	}
	defer ctx.engine.StringRelease(raw)
	return ctx.engine.StringGetUTF8(raw), nil
}

// AsObject narrows v to an Object.
func (v Value) AsObject(ctx *Context) (Object, bool) {
	if !v.IsObject(ctx) {
		return Object{}, false
	}
	return Object{v: v}, true
}

// Protect keeps v reachable while it is held outside the engine. Each
// Protect must be paired with an Unprotect.
func (v Value) Protect(ctx *Context) {
	v.use(ctx)
	ctx.engine.ValueProtect(ctx.raw, v.raw)
}

// Unprotect undoes one Protect.
func (v Value) Unprotect(ctx *Context) {
	v.use(ctx)
	ctx.engine.ValueUnprotect(ctx.raw, v.raw)
}

// toString converts raw without wrapping failures; the caller decides what
// a throw means.
func (c *Context) toString(raw ffi.ValueRef) (string, ffi.ValueRef) {
	var exc ffi.ValueRef
	s := c.engine.ValueToStringCopy(c.raw, raw, &exc)
	if !exc.IsNull() || s == 0 {
		return "", exc
	}
	defer c.engine.StringRelease(s)
	return c.engine.StringGetUTF8(s), exc
}
