// Package jsc is the safe binding layer over the ffi engine API.
//
// Three kinds of values own a foreign handle and must be closed: VM (a
// context group), String (an interned string) and Context (a global
// execution context). Each releases its handle exactly once; Close is
// idempotent and the usual pattern is
//
//	vm := jsc.NewVM()
//	defer vm.Close()
//	ctx := jsc.NewContext(vm)
//	defer ctx.Close()
//
// Value and Object are collector-owned references and are never released.
// They are only meaningful while the Context that produced them is open.
// Every operation that takes a Context checks this and panics with
// ErrStaleValue when a value is used with a different or closed Context.
//
// Fallible engine operations return the thrown value as an *Exception error.
// There is no other error kind: failures the engine does not report through
// an exception (such as a NUL byte inside source text) panic.
//
// Nothing here is safe for concurrent use. Serialize access to a VM and
// everything derived from it, for example through server.VMWorker.
package jsc
