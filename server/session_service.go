package server

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
)

const (
	// SessionServiceName is the fully-qualified name of the SessionService.
	SessionServiceName = "jscore.v1.SessionService"

	SessionServiceCreateProcedure        = "/jscore.v1.SessionService/Create"
	SessionServiceDestroyProcedure       = "/jscore.v1.SessionService/Destroy"
	SessionServiceReleaseHandleProcedure = "/jscore.v1.SessionService/ReleaseHandle"
)

// SessionServiceImpl implements the SessionService Connect handler.
type SessionServiceImpl struct {
	sessions *SessionStore
	handles  *HandleStore
}

// NewSessionServiceImpl creates a SessionServiceImpl.
func NewSessionServiceImpl(sessions *SessionStore, handles *HandleStore) *SessionServiceImpl {
	return &SessionServiceImpl{
		sessions: sessions,
		handles:  handles,
	}
}

// NewSessionServiceHandler builds an HTTP handler for svc. It returns the
// path to mount the handler on.
func NewSessionServiceHandler(svc *SessionServiceImpl, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(handlerOptions(), opts...)
	create := connect.NewUnaryHandler(SessionServiceCreateProcedure, svc.CreateSession, opts...)
	destroy := connect.NewUnaryHandler(SessionServiceDestroyProcedure, svc.DestroySession, opts...)
	release := connect.NewUnaryHandler(SessionServiceReleaseHandleProcedure, svc.ReleaseHandle, opts...)
	return "/" + SessionServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SessionServiceCreateProcedure:
			create.ServeHTTP(w, r)
		case SessionServiceDestroyProcedure:
			destroy.ServeHTTP(w, r)
		case SessionServiceReleaseHandleProcedure:
			release.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// CreateSession creates a new workspace session with its own context.
func (s *SessionServiceImpl) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	session, err := s.sessions.Create(req.Msg.Name)
	if err != nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	}
	return connect.NewResponse(&CreateSessionResponse{
		SessionID: session.ID,
	}), nil
}

// DestroySession destroys a session and releases its handles.
func (s *SessionServiceImpl) DestroySession(
	ctx context.Context,
	req *connect.Request[DestroySessionRequest],
) (*connect.Response[DestroySessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("sessionId is required"))
	}

	released, ok := s.sessions.Destroy(req.Msg.SessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	return connect.NewResponse(&DestroySessionResponse{ReleasedHandles: released}), nil
}

// ReleaseHandle drops one handle. Releasing an unknown handle is not an error.
func (s *SessionServiceImpl) ReleaseHandle(
	ctx context.Context,
	req *connect.Request[ReleaseHandleRequest],
) (*connect.Response[ReleaseHandleResponse], error) {
	if req.Msg.Handle == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("handle is required"))
	}
	if err := s.handles.Release(req.Msg.Handle); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&ReleaseHandleResponse{}), nil
}
