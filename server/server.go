package server

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/jscore/jsc"
)

var log = commonlog.GetLogger("jscore.server")

// JSCoreServer is the RPC server wrapping a running VM.
// It serves the Connect protocol with CBOR and JSON codecs on one port.
type JSCoreServer struct {
	worker   *VMWorker
	handles  *HandleStore
	sessions *SessionStore
	mux      *http.ServeMux

	mu   sync.Mutex
	http *http.Server

	defaultSession string
	stopSweeper    func()
}

// ServerOption configures a JSCoreServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	label         *url.URL
	line          int
	handleTTL     time.Duration
	sweepInterval time.Duration
	preload       []Script
}

// WithLabel sets the source label used when a request carries none.
func WithLabel(u *url.URL) ServerOption {
	return func(c *serverConfig) { c.label = u }
}

// WithStartingLine sets the starting line used when a request carries none.
func WithStartingLine(line int) ServerOption {
	return func(c *serverConfig) { c.line = line }
}

// WithHandleTTL sets how long an unused handle survives and how often the
// sweeper looks for expired ones.
func WithHandleTTL(ttl, sweepInterval time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.handleTTL = ttl
		c.sweepInterval = sweepInterval
	}
}

// WithPreload sets scripts run in every new session, including the default one.
func WithPreload(scripts ...Script) ServerOption {
	return func(c *serverConfig) { c.preload = scripts }
}

// New creates a JSCoreServer wrapping the given VM. The server owns v and
// closes it on Stop. It fails only if a preload script throws.
func New(v *jsc.VM, opts ...ServerOption) (*JSCoreServer, error) {
	cfg := &serverConfig{
		line:          1,
		handleTTL:     30 * time.Minute,
		sweepInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewVMWorker(v)
	handles := NewHandleStore(worker)
	sessions := NewSessionStore(worker, handles, cfg.preload...)

	fallback, err := sessions.Create("default")
	if err != nil {
		worker.Stop()
		return nil, err
	}

	s := &JSCoreServer{
		worker:         worker,
		handles:        handles,
		sessions:       sessions,
		mux:            http.NewServeMux(),
		defaultSession: fallback.ID,
	}

	evalSvc := NewEvalService(worker, handles, sessions, EvalDefaults{
		Session: fallback.ID,
		Label:   cfg.label,
		Line:    cfg.line,
	})
	sessionSvc := NewSessionServiceImpl(sessions, handles)

	evalPath, evalHandler := NewEvalServiceHandler(evalSvc)
	sessionPath, sessionHandler := NewSessionServiceHandler(sessionSvc)

	s.mux.Handle(evalPath, evalHandler)
	s.mux.Handle(sessionPath, sessionHandler)

	s.stopSweeper = handles.StartSweeper(cfg.sweepInterval, cfg.handleTTL)

	return s, nil
}

// Handler returns the HTTP handler serving all services.
func (s *JSCoreServer) Handler() http.Handler {
	return s.mux
}

// DefaultSession returns the ID of the session used by requests that name none.
func (s *JSCoreServer) DefaultSession() string {
	return s.defaultSession
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *JSCoreServer) ListenAndServe(addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	log.Noticef("jscore server listening on %s", addr)
	log.Infof("  Connect (CBOR/JSON): http://%s%s", addr, EvalServiceEvaluateProcedure)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts down the server, destroys every session and closes the VM.
func (s *JSCoreServer) Stop() {
	s.mu.Lock()
	if s.http != nil {
		_ = s.http.Close()
	}
	s.mu.Unlock()
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.sessions.DestroyAll()
	s.worker.Stop()
}
