// Package ffi is the foreign boundary of jscore. It exposes a handle-based
// JavaScript engine API in the shape of a C embedding interface: owning
// handles (context groups, strings, global contexts) that must be released
// exactly once, collector-owned value references that are never released,
// and exception out-parameters instead of error returns.
//
// The engine behind the boundary is goja. Nothing outside this package
// imports goja; the jsc package builds the safe, ownership-checked layer on
// top of the primitives here.
//
// Releasing a handle that is unknown or already released is undefined in a
// C API. Here it panics, so that double release is observable.
package ffi

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// GroupRef is an opaque handle to a context group. The zero GroupRef is NULL.
type GroupRef uint64

// StringRef is an opaque handle to an interned string. The zero StringRef is NULL.
type StringRef uint64

// GlobalContextRef is an opaque handle to a global execution context.
// The zero GlobalContextRef is NULL.
type GlobalContextRef uint64

// Stats counts handle creation and release calls made through an Engine.
type Stats struct {
	GroupsCreated    int
	GroupsReleased   int
	StringsCreated   int
	StringsReleased  int
	ContextsCreated  int
	ContextsReleased int
}

// LiveGroups returns the number of groups created but not yet released by a caller.
func (s Stats) LiveGroups() int { return s.GroupsCreated - s.GroupsReleased }

// LiveStrings returns the number of strings created but not yet released.
func (s Stats) LiveStrings() int { return s.StringsCreated - s.StringsReleased }

// LiveContexts returns the number of contexts created but not yet released.
func (s Stats) LiveContexts() int { return s.ContextsCreated - s.ContextsReleased }

type group struct {
	refs int
}

type interned struct {
	units []uint16
}

type globalContext struct {
	id    GlobalContextRef
	group GroupRef
	rt    *goja.Runtime
	pins  map[*cell]int
}

// Engine is one instance of the foreign library. All handle tables live
// here; the tables are guarded by a mutex but goja runtimes are not, so a
// context and its values must be used from one goroutine at a time.
type Engine struct {
	mu       sync.Mutex
	nextID   uint64
	groups   map[GroupRef]*group
	strings  map[StringRef]*interned
	contexts map[GlobalContextRef]*globalContext
	stats    Stats
}

// New creates an isolated Engine with empty handle tables.
func New() *Engine {
	return &Engine{
		groups:   make(map[GroupRef]*group),
		strings:  make(map[StringRef]*interned),
		contexts: make(map[GlobalContextRef]*globalContext),
	}
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the process-wide Engine.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = New()
	})
	return defaultEngine
}

// Stats returns a snapshot of the handle counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) allocID() uint64 {
	e.nextID++
	return e.nextID
}

// ContextGroupCreate allocates a new context group with a reference count of one.
func (e *Engine) ContextGroupCreate() GroupRef {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := GroupRef(e.allocID())
	e.groups[g] = &group{refs: 1}
	e.stats.GroupsCreated++
	return g
}

// ContextGroupRetain adds a reference to g.
func (e *Engine) ContextGroupRetain(g GroupRef) GroupRef {
	e.mu.Lock()
	defer e.mu.Unlock()

	grp, ok := e.groups[g]
	if !ok {
		panic(fmt.Sprintf("ffi: retain of released context group %d", g))
	}
	grp.refs++
	return g
}

// ContextGroupRelease drops a caller reference to g. The group is freed when
// the last reference, including those held by its contexts, is gone.
func (e *Engine) ContextGroupRelease(g GroupRef) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.releaseGroupLocked(g)
	e.stats.GroupsReleased++
}

func (e *Engine) releaseGroupLocked(g GroupRef) {
	grp, ok := e.groups[g]
	if !ok {
		panic(fmt.Sprintf("ffi: release of released context group %d", g))
	}
	grp.refs--
	if grp.refs == 0 {
		delete(e.groups, g)
	}
}

// GlobalContextCreateInGroup creates a global execution context whose
// group is g. The context retains g until it is released.
func (e *Engine) GlobalContextCreateInGroup(g GroupRef) GlobalContextRef {
	rt := goja.New()

	e.mu.Lock()
	defer e.mu.Unlock()

	grp, ok := e.groups[g]
	if !ok {
		panic(fmt.Sprintf("ffi: context created in released group %d", g))
	}
	grp.refs++

	id := GlobalContextRef(e.allocID())
	e.contexts[id] = &globalContext{
		id:    id,
		group: g,
		rt:    rt,
		pins:  make(map[*cell]int),
	}
	e.stats.ContextsCreated++
	return id
}

// GlobalContextRelease releases ctx and its reference to its group.
func (e *Engine) GlobalContextRelease(ctx GlobalContextRef) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.contexts[ctx]
	if !ok {
		panic(fmt.Sprintf("ffi: release of released global context %d", ctx))
	}
	delete(e.contexts, ctx)
	e.releaseGroupLocked(c.group)
	e.stats.ContextsReleased++
}

// ContextGetGroup returns the group ctx was created in.
func (e *Engine) ContextGetGroup(ctx GlobalContextRef) GroupRef {
	return e.context(ctx).group
}

// ContextGetGlobalObject returns the global object of ctx.
func (e *Engine) ContextGetGlobalObject(ctx GlobalContextRef) ObjectRef {
	c := e.context(ctx)
	return ObjectRef{c: c.wrap(c.rt.GlobalObject())}
}

func (e *Engine) context(ctx GlobalContextRef) *globalContext {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.contexts[ctx]
	if !ok {
		panic(fmt.Sprintf("ffi: use of released global context %d", ctx))
	}
	return c
}
