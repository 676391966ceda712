package jsc

import (
	"github.com/chazu/jscore/ffi"
)

// Object is a Value known to be an object. Objects come only from
// ObjectArray, Value.AsObject and Context.GlobalObject. The zero Object is
// empty.
type Object struct {
	v Value
}

// Value widens o back to a Value.
func (o Object) Value() Value {
	return o.v
}

// IsEmpty reports whether o refers to nothing.
func (o Object) IsEmpty() bool {
	return o.v.IsEmpty()
}

// IsArray reports whether o is an Array.
func (o Object) IsArray(ctx *Context) bool {
	return o.v.IsArray(ctx)
}

// IsDate reports whether o is a Date.
func (o Object) IsDate(ctx *Context) bool {
	return o.v.IsDate(ctx)
}

// ToJSON serializes o like JSON.stringify.
func (o Object) ToJSON(ctx *Context, indent int) (string, error) {
	return o.v.ToJSON(ctx, indent)
}

// ObjectArray creates an array holding elements in order. Empty Values in
// elements become undefined.
func ObjectArray(ctx *Context, elements []Value) (Object, error) {
	ctx.own.check()
	raws := make([]ffi.ValueRef, len(elements))
	for i, el := range elements {
		el.use(ctx)
		raws[i] = el.raw
	}

	var exc ffi.ValueRef
	arr := ctx.engine.ObjectMakeArray(ctx.raw, raws, &exc)
	if !exc.IsNull() {
		return Object{}, ctx.exception(exc)
	}
	return Object{v: Value{raw: arr.Value(), ctx: ctx}}, nil
}

func (o Object) ref(ctx *Context) ffi.ObjectRef {
	o.v.use(ctx)
	return ctx.engine.ValueToObject(ctx.raw, o.v.raw)
}

// IsConstructor reports whether o can be called with new.
func (o Object) IsConstructor(ctx *Context) bool {
	return ctx.engine.ObjectIsConstructor(ctx.raw, o.ref(ctx))
}

// IsFunction reports whether o can be called.
func (o Object) IsFunction(ctx *Context) bool {
	return ctx.engine.ObjectIsFunction(ctx.raw, o.ref(ctx))
}

// Get reads the property name. Getters can throw.
func (o Object) Get(ctx *Context, name string) (Value, error) {
	ref := o.ref(ctx)
	key := newString(ctx.engine, name)
	defer key.Close()

	var exc ffi.ValueRef
	raw := ctx.engine.ObjectGetProperty(ctx.raw, ref, key.raw, &exc)
	if !exc.IsNull() {
		return Value{}, ctx.exception(exc)
	}
	return Value{raw: raw, ctx: ctx}, nil
}

// PropertyNames returns the enumerable own property names of o.
func (o Object) PropertyNames(ctx *Context) []string {
	return ctx.engine.ObjectCopyPropertyNames(ctx.raw, o.ref(ctx))
}
