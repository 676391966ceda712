package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/jscore/jsc"
)

// handle is a server-side reference to an engine value.
type handle struct {
	id        string
	value     jsc.Value
	ctx       *jsc.Context
	typeName  string
	display   string
	sessionID string
	created   time.Time
	lastUsed  time.Time
}

// HandleStore maps opaque string IDs to engine values.
// Values referenced by handles are protected in their context so the
// collector keeps them while a client may still name them.
//
// Create and ReleaseSession touch the engine and must run on
// the VM worker goroutine. Release and Sweep submit their engine work to
// the worker themselves.
type HandleStore struct {
	mu      sync.RWMutex
	handles map[string]*handle
	nextID  atomic.Uint64
	worker  *VMWorker
}

// NewHandleStore creates a new handle store.
func NewHandleStore(worker *VMWorker) *HandleStore {
	return &HandleStore{
		handles: make(map[string]*handle),
		worker:  worker,
	}
}

// Create registers a value and returns an opaque handle ID.
// Must be called on the VM worker goroutine.
func (s *HandleStore) Create(value jsc.Value, ctx *jsc.Context, typeName, display, sessionID string) string {
	id := fmt.Sprintf("h-%d", s.nextID.Add(1))

	if !value.IsEmpty() {
		value.Protect(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.handles[id] = &handle{
		id:        id,
		value:     value,
		ctx:       ctx,
		typeName:  typeName,
		display:   display,
		sessionID: sessionID,
		created:   now,
		lastUsed:  now,
	}

	return id
}

// Lookup retrieves the value for a handle along with the ID of the session
// that owns it. Returns false if the handle doesn't exist.
func (s *HandleStore) Lookup(id string) (jsc.Value, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return jsc.Value{}, "", false
	}
	h.lastUsed = time.Now()
	return h.value, h.sessionID, true
}

// Len returns the number of live handles.
func (s *HandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Release removes a handle and unprotects its value.
func (s *HandleStore) Release(id string) error {
	s.mu.Lock()
	h, ok := s.handles[id]
	if ok {
		delete(s.handles, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	_, err := s.worker.Do(func(*jsc.VM) interface{} {
		unprotect(h)
		return nil
	})
	return err
}

// ReleaseSession releases all handles owned by a session.
// Must be called on the VM worker goroutine.
func (s *HandleStore) ReleaseSession(sessionID string) int {
	s.mu.Lock()
	var owned []*handle
	for id, h := range s.handles {
		if h.sessionID == sessionID {
			owned = append(owned, h)
			delete(s.handles, id)
		}
	}
	s.mu.Unlock()

	for _, h := range owned {
		unprotect(h)
	}
	return len(owned)
}

// Sweep removes handles that haven't been accessed within the TTL.
func (s *HandleStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	var stale []*handle
	for id, h := range s.handles {
		if h.lastUsed.Before(cutoff) {
			stale = append(stale, h)
			delete(s.handles, id)
		}
	}
	s.mu.Unlock()

	if len(stale) == 0 {
		return 0
	}
	if _, err := s.worker.Do(func(*jsc.VM) interface{} {
		for _, h := range stale {
			unprotect(h)
		}
		return nil
	}); err != nil {
		log.Warningf("handle sweep: %v", err)
	}
	log.Debugf("handle sweep: removed %d", len(stale))
	return len(stale)
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *HandleStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// unprotect drops the handle's protection unless its context is already gone.
func unprotect(h *handle) {
	if h.value.IsEmpty() || h.ctx.Closed() {
		return
	}
	h.value.Unprotect(h.ctx)
}
