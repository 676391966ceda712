package jsc

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("jscore.jsc")

var (
	// ErrReleased is the panic value for using a VM, String or Context after Close.
	ErrReleased = errors.New("jsc: use of released handle")

	// ErrStaleValue is the panic value for using a Value with a Context other
	// than the open one that produced it.
	ErrStaleValue = errors.New("jsc: value used outside its context")
)

// owner guards one foreign handle. release runs at most once, either from
// Close or from the collector when the holder leaked.
type owner struct {
	kind     string
	released atomic.Bool
	release  func()
}

func (o *owner) close() bool {
	if o.released.Swap(true) {
		return false
	}
	o.release()
	return true
}

func (o *owner) check() {
	if o.released.Load() {
		panic(ErrReleased)
	}
}

func leaked(o *owner) {
	if o.close() {
		log.Warningf("%s was not closed; released by the collector", o.kind)
	}
}

// track arranges for o to be released if holder becomes unreachable
// without being closed.
func track[T any](holder *T, o *owner) runtime.Cleanup {
	return runtime.AddCleanup(holder, leaked, o)
}
