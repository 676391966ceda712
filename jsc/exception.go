package jsc

import (
	"errors"

	"github.com/chazu/jscore/ffi"
)

// Exception is a value thrown by the engine. It is the only error kind the
// engine operations in this package return.
type Exception struct {
	// Value is the thrown value. It can be any type, not only Error objects.
	Value Value

	// Message is the thrown value converted to a string while its context
	// was still open.
	Message string
}

func (e *Exception) Error() string {
	return e.Message
}

// AsException returns the *Exception in err's chain, if any.
func AsException(err error) (*Exception, bool) {
	var ex *Exception
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}

// Position returns the line and column carried by a thrown Error. Syntax
// errors and uncaught runtime Errors both carry them.
// ok is false when the thrown value has no numeric line property.
func (e *Exception) Position(ctx *Context) (line, column int, ok bool) {
	obj, isObj := e.Value.AsObject(ctx)
	if !isObj {
		return 0, 0, false
	}
	lv, err := obj.Get(ctx, "line")
	if err != nil || !lv.IsNumber(ctx) {
		return 0, 0, false
	}
	l, _ := lv.ToNumber(ctx)
	if cv, err := obj.Get(ctx, "column"); err == nil && cv.IsNumber(ctx) {
		c, _ := cv.ToNumber(ctx)
		column = int(c)
	}
	return int(l), column, true
}

func (c *Context) exception(raw ffi.ValueRef) *Exception {
	msg, exc := c.toString(raw)
	if !exc.IsNull() {
		msg = "uncaught exception (not convertible to string)"
	}
	return &Exception{
		Value:   Value{raw: raw, ctx: c},
		Message: msg,
	}
}
