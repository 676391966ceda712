package jsc

import (
	"runtime"

	"github.com/chazu/jscore/ffi"
)

// VM owns one context group, the allocation and isolation root for the
// Contexts created from it.
type VM struct {
	engine  *ffi.Engine
	raw     ffi.GroupRef
	own     *owner
	cleanup runtime.Cleanup
}

// Option configures a VM.
type Option func(*vmConfig)

type vmConfig struct {
	engine *ffi.Engine
}

// WithEngine selects the foreign engine instance. The default is ffi.Default().
func WithEngine(e *ffi.Engine) Option {
	return func(c *vmConfig) { c.engine = e }
}

// NewVM allocates a fresh context group.
func NewVM(opts ...Option) *VM {
	cfg := &vmConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.engine == nil {
		cfg.engine = ffi.Default()
	}

	e := cfg.engine
	raw := e.ContextGroupCreate()
	vm := &VM{
		engine: e,
		raw:    raw,
		own: &owner{
			kind:    "VM",
			release: func() { e.ContextGroupRelease(raw) },
		},
	}
	vm.cleanup = track(vm, vm.own)
	log.Debugf("vm: created group %d", raw)
	return vm
}

// Close releases the group. Contexts created from the VM must be closed
// first; that order is the caller's responsibility.
func (vm *VM) Close() {
	if vm.own.close() {
		vm.cleanup.Stop()
		log.Debugf("vm: released group %d", vm.raw)
	}
}

// Closed reports whether Close has run.
func (vm *VM) Closed() bool {
	return vm.own.released.Load()
}

// Engine returns the foreign engine the VM was created on.
func (vm *VM) Engine() *ffi.Engine {
	return vm.engine
}

// NewString creates a String on the VM's engine.
func (vm *VM) NewString(text string) *String {
	return newString(vm.engine, text)
}
