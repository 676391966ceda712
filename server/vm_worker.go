package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/jscore/jsc"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("vm worker stopped")

// vmRequest represents a unit of work to be executed on the VM goroutine.
type vmRequest struct {
	fn   func(*jsc.VM) interface{}
	done chan vmResult
}

// vmResult holds the return value from a VM operation.
type vmResult struct {
	value interface{}
	err   error
}

// VMWorker serializes all VM access through a single goroutine.
// A VM, its contexts and their values are not safe for concurrent use;
// every RPC and LSP handler must go through the worker.
type VMWorker struct {
	vm       *jsc.VM
	requests chan vmRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
// The worker owns v and closes it on Stop.
func NewVMWorker(v *jsc.VM) *VMWorker {
	w := &VMWorker{
		vm:       v,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes VM requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			result := w.execute(req.fn)
			req.done <- result
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the VM, recovering from panics. jsc reports
// misuse (stale values, released handles) by panicking, so a bad request
// must not take the worker down.
func (w *VMWorker) execute(fn func(*jsc.VM) interface{}) vmResult {
	var result vmResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok {
					result.err = err
				} else {
					result.err = fmt.Errorf("%v", r)
				}
				log.Errorf("vm worker: recovered panic: %v", result.err)
			}
		}()
		result.value = fn(w.vm)
	}()
	return result
}

// Do submits a function for execution on the VM goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *VMWorker) Do(fn func(*jsc.VM) interface{}) (interface{}, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}

	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		select {
		case result := <-req.done:
			return result.value, result.err
		default:
			return nil, ErrWorkerStopped
		}
	}
}

// Stop closes the VM on the worker goroutine and shuts the worker down.
// Contexts created on the VM must be closed before Stop.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() {
		_, _ = w.Do(func(v *jsc.VM) interface{} {
			v.Close()
			return nil
		})
		close(w.quit)
	})
}

// VM returns the underlying VM. Only call methods that do not touch engine
// state (Closed, Engine) outside Do.
func (w *VMWorker) VM() *jsc.VM {
	return w.vm
}
