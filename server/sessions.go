package server

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/jscore/jsc"
)

// Script is source run in every new session before it is handed out.
type Script struct {
	Label  *url.URL
	Source string
}

// Session is a client workspace: one global context with its own globals.
type Session struct {
	ID      string
	Name    string
	Context *jsc.Context
	Created time.Time
}

// SessionStore manages workspace sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	worker   *VMWorker
	handles  *HandleStore
	preload  []Script
}

// NewSessionStore creates a new session store. preload runs in order in
// each new session.
func NewSessionStore(worker *VMWorker, handles *HandleStore, preload ...Script) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		worker:   worker,
		handles:  handles,
		preload:  preload,
	}
}

// Create creates a new session with an optional name. If a preload script
// throws, the session is discarded and the exception is returned.
func (s *SessionStore) Create(name string) (*Session, error) {
	result, err := s.worker.Do(func(v *jsc.VM) interface{} {
		ctx := jsc.NewContext(v)
		for _, script := range s.preload {
			if _, err := ctx.EvaluateScript(script.Source, jsc.Object{}, script.Label, 1); err != nil {
				ctx.Close()
				return fmt.Errorf("preload %s: %w", script.Label, err)
			}
		}
		return ctx
	})
	if err != nil {
		return nil, err
	}
	if err, ok := result.(error); ok {
		return nil, err
	}

	session := &Session{
		ID:      uuid.NewString(),
		Name:    name,
		Context: result.(*jsc.Context),
		Created: time.Now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Infof("session %s created (%q)", session.ID, name)
	return session, nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// List returns all sessions, oldest first.
func (s *SessionStore) List() []*Session {
	s.mu.RLock()
	list := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, session)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Created.Before(list[j].Created)
	})
	return list
}

// Destroy removes a session, releases all its handles and closes its
// context. Returns the number of handles released and false if the
// session did not exist.
func (s *SessionStore) Destroy(id string) (int, bool) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return 0, false
	}

	result, err := s.worker.Do(func(*jsc.VM) interface{} {
		n := s.handles.ReleaseSession(id)
		session.Context.Close()
		return n
	})
	if err != nil {
		log.Errorf("session %s: destroy: %v", id, err)
		return 0, true
	}
	log.Infof("session %s destroyed", id)
	return result.(int), true
}

// DestroyAll destroys every session. Called before the worker stops so no
// context outlives the VM.
func (s *SessionStore) DestroyAll() {
	for _, session := range s.List() {
		s.Destroy(session.ID)
	}
}
