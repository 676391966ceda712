package jsc

import (
	"net/url"
	"runtime"

	"github.com/chazu/jscore/ffi"
)

// Context owns one global execution context created in a VM's group.
type Context struct {
	vm      *VM
	engine  *ffi.Engine
	raw     ffi.GlobalContextRef
	own     *owner
	cleanup runtime.Cleanup
}

// NewContext creates a global context in vm's group. The Context must not
// outlive vm.
func NewContext(vm *VM) *Context {
	vm.own.check()

	e := vm.engine
	raw := e.GlobalContextCreateInGroup(vm.raw)
	c := &Context{
		vm:     vm,
		engine: e,
		raw:    raw,
		own: &owner{
			kind:    "Context",
			release: func() { e.GlobalContextRelease(raw) },
		},
	}
	c.cleanup = track(c, c.own)
	log.Debugf("context: created %d in group %d", raw, vm.raw)
	return c
}

// VM returns the VM the context was created in.
func (c *Context) VM() *VM {
	return c.vm
}

// Close releases the context. Values produced by it become unusable.
func (c *Context) Close() {
	if c.own.close() {
		c.cleanup.Stop()
		log.Debugf("context: released %d", c.raw)
	}
}

// Closed reports whether Close has run.
func (c *Context) Closed() bool {
	return c.own.released.Load()
}

// EvaluateScript compiles and runs source as a program. receiver is the
// this binding; an empty Object means the global object. label names the
// source in diagnostics and may be nil. startingLine is the 1-based line
// number the first line of source reports as.
//
// On a syntax error or an uncaught throw the error is an *Exception holding
// the thrown value.
func (c *Context) EvaluateScript(source string, receiver Object, label *url.URL, startingLine int) (Value, error) {
	c.own.check()
	script := newString(c.engine, source)
	defer script.Close()
	sourceURL := c.label(label)
	if sourceURL != nil {
		defer sourceURL.Close()
	}

	var this ffi.ObjectRef
	if !receiver.IsEmpty() {
		this = receiver.ref(c)
	}

	var exc ffi.ValueRef
	raw := c.engine.EvaluateScript(c.raw, script.raw, this, rawString(sourceURL), startingLine, &exc)
	if !exc.IsNull() {
		return Value{}, c.exception(exc)
	}
	return Value{raw: raw, ctx: c}, nil
}

// CheckSyntax parses source without running it. A syntax error comes back
// as an *Exception, never as (false, nil).
func (c *Context) CheckSyntax(source string, label *url.URL, startingLine int) (bool, error) {
	c.own.check()
	script := newString(c.engine, source)
	defer script.Close()
	sourceURL := c.label(label)
	if sourceURL != nil {
		defer sourceURL.Close()
	}

	var exc ffi.ValueRef
	ok := c.engine.CheckScriptSyntax(c.raw, script.raw, rawString(sourceURL), startingLine, &exc)
	if !exc.IsNull() {
		return false, c.exception(exc)
	}
	return ok, nil
}

// GlobalObject returns the context's global object.
func (c *Context) GlobalObject() Object {
	c.own.check()
	return Object{v: Value{raw: c.engine.ContextGetGlobalObject(c.raw).Value(), ctx: c}}
}

// ProtectedCount returns the number of values currently protected in the context.
func (c *Context) ProtectedCount() int {
	c.own.check()
	return c.engine.ProtectedCount(c.raw)
}

func (c *Context) label(u *url.URL) *String {
	if u == nil {
		return nil
	}
	return newString(c.engine, u.String())
}

func rawString(s *String) ffi.StringRef {
	if s == nil {
		return 0
	}
	return s.raw
}
