package ffi

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/dop251/goja"
)

// Type is the dynamic type tag of a value.
type Type int

const (
	TypeUndefined Type = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeObject
	TypeSymbol
	TypeBigInt
)

var typeNames = [...]string{"undefined", "null", "boolean", "number", "string", "object", "symbol", "bigint"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// cell is the storage behind a value reference. The collector owns it:
// nothing releases a cell, it lives as long as some reference does.
type cell struct {
	v   goja.Value
	ctx GlobalContextRef
}

// ValueRef is an opaque reference to an engine value. The zero ValueRef is NULL.
type ValueRef struct {
	c *cell
}

// IsNull reports whether r is the NULL reference. This is not the JavaScript
// null value.
func (r ValueRef) IsNull() bool { return r.c == nil }

// ObjectRef is an opaque reference to an engine object. The zero ObjectRef is NULL.
type ObjectRef struct {
	c *cell
}

// IsNull reports whether r is the NULL reference.
func (r ObjectRef) IsNull() bool { return r.c == nil }

// Value widens r to a ValueRef.
func (r ObjectRef) Value() ValueRef { return ValueRef{c: r.c} }

func (c *globalContext) wrap(v goja.Value) *cell {
	return &cell{v: v, ctx: c.id}
}

// val unwraps r inside c. NULL becomes nil.
func (c *globalContext) val(r ValueRef) goja.Value {
	if r.c == nil {
		return nil
	}
	if r.c.ctx != c.id {
		panic(fmt.Sprintf("ffi: value from context %d used in context %d", r.c.ctx, c.id))
	}
	return r.c.v
}

func (c *globalContext) obj(r ObjectRef) *goja.Object {
	v := c.val(r.Value())
	if v == nil {
		return nil
	}
	o, ok := v.(*goja.Object)
	if !ok {
		panic("ffi: object reference does not hold an object")
	}
	return o
}

// throw stores the JS exception ex in the slot, if there is one.
func (c *globalContext) throw(exception *ValueRef, ex *goja.Exception) {
	if exception != nil && ex != nil {
		*exception = ValueRef{c: c.wrap(ex.Value())}
	}
}

// throwGo converts a non-JS error into an Error object and stores it.
func (c *globalContext) throwGo(exception *ValueRef, err error) {
	if exception != nil && err != nil {
		*exception = ValueRef{c: c.wrap(c.rt.NewGoError(err))}
	}
}

func (e *Engine) wrapIn(ctx GlobalContextRef, v goja.Value) ValueRef {
	return ValueRef{c: e.context(ctx).wrap(v)}
}

// ValueMakeBoolean creates a boolean value.
func (e *Engine) ValueMakeBoolean(ctx GlobalContextRef, b bool) ValueRef {
	c := e.context(ctx)
	return ValueRef{c: c.wrap(c.rt.ToValue(b))}
}

// ValueMakeNumber creates a number value.
func (e *Engine) ValueMakeNumber(ctx GlobalContextRef, n float64) ValueRef {
	c := e.context(ctx)
	return ValueRef{c: c.wrap(c.rt.ToValue(n))}
}

// ValueMakeString creates a string value holding a copy of s.
func (e *Engine) ValueMakeString(ctx GlobalContextRef, s StringRef) ValueRef {
	c := e.context(ctx)
	return ValueRef{c: c.wrap(c.rt.ToValue(e.StringGetUTF8(s)))}
}

// ValueMakeNull creates the JavaScript null value.
func (e *Engine) ValueMakeNull(ctx GlobalContextRef) ValueRef {
	return e.wrapIn(ctx, goja.Null())
}

// ValueMakeUndefined creates the JavaScript undefined value.
func (e *Engine) ValueMakeUndefined(ctx GlobalContextRef) ValueRef {
	return e.wrapIn(ctx, goja.Undefined())
}

// ValueMakeFromJSONString parses s as JSON. It returns NULL if s is not
// valid JSON; no exception is reported.
func (e *Engine) ValueMakeFromJSONString(ctx GlobalContextRef, s StringRef) ValueRef {
	c := e.context(ctx)
	parse, ok := goja.AssertFunction(c.rt.Get("JSON").ToObject(c.rt).Get("parse"))
	if !ok {
		return ValueRef{}
	}
	v, err := parse(goja.Undefined(), c.rt.ToValue(e.StringGetUTF8(s)))
	if err != nil {
		return ValueRef{}
	}
	return ValueRef{c: c.wrap(v)}
}

var bigIntType = reflect.TypeOf((*big.Int)(nil))

func typeOf(v goja.Value) Type {
	if v == nil || goja.IsUndefined(v) {
		return TypeUndefined
	}
	if goja.IsNull(v) {
		return TypeNull
	}
	switch v.(type) {
	case *goja.Object:
		return TypeObject
	case *goja.Symbol:
		return TypeSymbol
	}
	t := v.ExportType()
	if t == nil {
		return TypeUndefined
	}
	if t == bigIntType {
		return TypeBigInt
	}
	switch t.Kind() {
	case reflect.Bool:
		return TypeBoolean
	case reflect.Int64, reflect.Float64:
		return TypeNumber
	case reflect.String:
		return TypeString
	}
	return TypeObject
}

// ValueGetType returns the dynamic type of v. NULL reports TypeUndefined.
func (e *Engine) ValueGetType(ctx GlobalContextRef, v ValueRef) Type {
	return typeOf(e.context(ctx).val(v))
}

func (e *Engine) is(ctx GlobalContextRef, v ValueRef, t Type) bool {
	if v.IsNull() {
		return false
	}
	return e.ValueGetType(ctx, v) == t
}

// ValueIsBoolean reports whether v is a boolean primitive. NULL is not.
func (e *Engine) ValueIsBoolean(ctx GlobalContextRef, v ValueRef) bool {
	return e.is(ctx, v, TypeBoolean)
}

// ValueIsNull reports whether v is JavaScript null. A NULL ValueRef is not
// null; it is no value at all.
func (e *Engine) ValueIsNull(ctx GlobalContextRef, v ValueRef) bool {
	return e.is(ctx, v, TypeNull)
}

// ValueIsUndefined reports whether v is undefined.
func (e *Engine) ValueIsUndefined(ctx GlobalContextRef, v ValueRef) bool {
	return e.is(ctx, v, TypeUndefined)
}

// ValueIsNumber reports whether v is a number primitive.
func (e *Engine) ValueIsNumber(ctx GlobalContextRef, v ValueRef) bool {
	return e.is(ctx, v, TypeNumber)
}

// ValueIsString reports whether v is a string primitive.
func (e *Engine) ValueIsString(ctx GlobalContextRef, v ValueRef) bool {
	return e.is(ctx, v, TypeString)
}

// ValueIsObject reports whether v is an object, functions included.
func (e *Engine) ValueIsObject(ctx GlobalContextRef, v ValueRef) bool {
	return e.is(ctx, v, TypeObject)
}

func (e *Engine) classIs(ctx GlobalContextRef, v ValueRef, class string) bool {
	if v.IsNull() {
		return false
	}
	o, ok := e.context(ctx).val(v).(*goja.Object)
	return ok && o.ClassName() == class
}

// ValueIsArray reports whether v is an Array instance.
func (e *Engine) ValueIsArray(ctx GlobalContextRef, v ValueRef) bool {
	return e.classIs(ctx, v, "Array")
}

// ValueIsDate reports whether v is a Date instance.
func (e *Engine) ValueIsDate(ctx GlobalContextRef, v ValueRef) bool {
	return e.classIs(ctx, v, "Date")
}

// ValueToBoolean converts v by JavaScript truthiness. NULL is false.
func (e *Engine) ValueToBoolean(ctx GlobalContextRef, v ValueRef) bool {
	gv := e.context(ctx).val(v)
	if gv == nil {
		return false
	}
	return gv.ToBoolean()
}

// ValueToNumber converts v to a number. If the conversion throws, the thrown
// value is stored in exception and the result is NaN-like garbage; callers
// must test the slot, not the result.
func (e *Engine) ValueToNumber(ctx GlobalContextRef, v ValueRef, exception *ValueRef) float64 {
	c := e.context(ctx)
	gv := c.val(v)
	if gv == nil {
		gv = goja.Undefined()
	}
	var n float64
	ex := c.rt.Try(func() {
		n = gv.ToFloat()
	})
	c.throw(exception, ex)
	return n
}

// ValueToStringCopy converts v to a string. The caller owns the returned
// StringRef and must release it. On exception the result is 0. Symbols
// throw a TypeError, as String concatenation does.
func (e *Engine) ValueToStringCopy(ctx GlobalContextRef, v ValueRef, exception *ValueRef) StringRef {
	c := e.context(ctx)
	gv := c.val(v)
	if gv == nil {
		gv = goja.Undefined()
	}
	if _, ok := gv.(*goja.Symbol); ok {
		if exception != nil {
			*exception = ValueRef{c: c.wrap(c.rt.NewTypeError("Cannot convert a Symbol value to a string"))}
		}
		return 0
	}
	var s string
	if ex := c.rt.Try(func() {
		s = gv.ToString().String()
	}); ex != nil {
		c.throw(exception, ex)
		return 0
	}
	return e.newString(s)
}

// ValueCreateJSONString serializes v with JSON.stringify. indent is the
// number of spaces per level, capped at 10. A value that has no JSON form
// (undefined, functions) yields 0 without an exception. The caller owns
// the returned StringRef.
func (e *Engine) ValueCreateJSONString(ctx GlobalContextRef, v ValueRef, indent int, exception *ValueRef) StringRef {
	c := e.context(ctx)
	gv := c.val(v)
	if gv == nil {
		gv = goja.Undefined()
	}
	if indent > 10 {
		indent = 10
	}
	if indent < 0 {
		indent = 0
	}
	stringify, ok := goja.AssertFunction(c.rt.Get("JSON").ToObject(c.rt).Get("stringify"))
	if !ok {
		return 0
	}
	out, err := stringify(goja.Undefined(), gv, goja.Undefined(), c.rt.ToValue(indent))
	if err != nil {
		if ex, ok := err.(*goja.Exception); ok {
			c.throw(exception, ex)
		} else {
			c.throwGo(exception, err)
		}
		return 0
	}
	if goja.IsUndefined(out) {
		return 0
	}
	return e.newString(out.String())
}

// ValueProtect pins v so it stays reachable while referenced from outside
// the engine. Protections nest.
func (e *Engine) ValueProtect(ctx GlobalContextRef, v ValueRef) {
	if v.IsNull() {
		return
	}
	c := e.context(ctx)
	c.val(v)

	e.mu.Lock()
	defer e.mu.Unlock()
	c.pins[v.c]++
}

// ValueUnprotect removes one protection from v.
func (e *Engine) ValueUnprotect(ctx GlobalContextRef, v ValueRef) {
	if v.IsNull() {
		return
	}
	c := e.context(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if n := c.pins[v.c]; n > 1 {
		c.pins[v.c] = n - 1
	} else {
		delete(c.pins, v.c)
	}
}

// ProtectedCount returns the number of distinct values pinned in ctx.
func (e *Engine) ProtectedCount(ctx GlobalContextRef) int {
	c := e.context(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(c.pins)
}
