package ffi

import (
	"github.com/dop251/goja"
)

// ObjectMakeArray creates an Array holding elements in order. NULL elements
// become undefined.
func (e *Engine) ObjectMakeArray(ctx GlobalContextRef, elements []ValueRef, exception *ValueRef) ObjectRef {
	c := e.context(ctx)
	items := make([]interface{}, len(elements))
	for i, el := range elements {
		v := c.val(el)
		if v == nil {
			v = goja.Undefined()
		}
		items[i] = v
	}

	var arr *goja.Object
	if ex := c.rt.Try(func() {
		arr = c.rt.NewArray(items...)
	}); ex != nil {
		c.throw(exception, ex)
		return ObjectRef{}
	}
	return ObjectRef{c: c.wrap(arr)}
}

// ValueToObject narrows v to an object reference. It returns NULL if v is
// not an object; primitives are not boxed.
func (e *Engine) ValueToObject(ctx GlobalContextRef, v ValueRef) ObjectRef {
	if !e.ValueIsObject(ctx, v) {
		return ObjectRef{}
	}
	return ObjectRef{c: v.c}
}

// ObjectIsConstructor reports whether o can be called with new.
func (e *Engine) ObjectIsConstructor(ctx GlobalContextRef, o ObjectRef) bool {
	obj := e.context(ctx).obj(o)
	if obj == nil {
		return false
	}
	_, ok := goja.AssertConstructor(obj)
	return ok
}

// ObjectIsFunction reports whether o can be called.
func (e *Engine) ObjectIsFunction(ctx GlobalContextRef, o ObjectRef) bool {
	obj := e.context(ctx).obj(o)
	if obj == nil {
		return false
	}
	_, ok := goja.AssertFunction(obj)
	return ok
}

// ObjectGetProperty reads o[name]. Getters may throw.
func (e *Engine) ObjectGetProperty(ctx GlobalContextRef, o ObjectRef, name StringRef, exception *ValueRef) ValueRef {
	c := e.context(ctx)
	obj := c.obj(o)
	key := e.StringGetUTF8(name)

	var v goja.Value
	if obj != nil {
		if ex := c.rt.Try(func() {
			v = obj.Get(key)
		}); ex != nil {
			c.throw(exception, ex)
			return ValueRef{}
		}
	}
	if v == nil {
		v = goja.Undefined()
	}
	return ValueRef{c: c.wrap(v)}
}

// ObjectCopyPropertyNames returns the enumerable own property names of o.
func (e *Engine) ObjectCopyPropertyNames(ctx GlobalContextRef, o ObjectRef) []string {
	obj := e.context(ctx).obj(o)
	if obj == nil {
		return nil
	}
	return obj.Keys()
}
