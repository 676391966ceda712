package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"connectrpc.com/connect"

	"github.com/chazu/jscore/ffi"
	"github.com/chazu/jscore/jsc"
)

const (
	// EvalServiceName is the fully-qualified name of the EvalService.
	EvalServiceName = "jscore.v1.EvalService"

	EvalServiceEvaluateProcedure    = "/jscore.v1.EvalService/Evaluate"
	EvalServiceCheckSyntaxProcedure = "/jscore.v1.EvalService/CheckSyntax"
)

// maxStartingLine bounds the line a request may start numbering from.
const maxStartingLine = ffi.MaxStartingLine

// EvalDefaults fills in what an EvaluateRequest leaves out.
type EvalDefaults struct {
	// Session is used when a request names no session.
	Session string
	Label   *url.URL
	Line    int
}

// EvalService implements the EvalService Connect handler.
type EvalService struct {
	worker   *VMWorker
	handles  *HandleStore
	sessions *SessionStore
	defaults EvalDefaults
}

// NewEvalService creates an EvalService.
func NewEvalService(worker *VMWorker, handles *HandleStore, sessions *SessionStore, defaults EvalDefaults) *EvalService {
	if defaults.Line < 1 {
		defaults.Line = 1
	}
	return &EvalService{
		worker:   worker,
		handles:  handles,
		sessions: sessions,
		defaults: defaults,
	}
}

// NewEvalServiceHandler builds an HTTP handler for svc. It returns the path
// to mount the handler on.
func NewEvalServiceHandler(svc *EvalService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(handlerOptions(), opts...)
	evaluate := connect.NewUnaryHandler(EvalServiceEvaluateProcedure, svc.Evaluate, opts...)
	checkSyntax := connect.NewUnaryHandler(EvalServiceCheckSyntaxProcedure, svc.CheckSyntax, opts...)
	return "/" + EvalServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EvalServiceEvaluateProcedure:
			evaluate.ServeHTTP(w, r)
		case EvalServiceCheckSyntaxProcedure:
			checkSyntax.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// Evaluate runs source in a session. A thrown exception is a normal
// response with Success false; RPC errors are reserved for bad requests.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[EvaluateRequest],
) (*connect.Response[EvaluateResponse], error) {
	source := req.Msg.Source
	if err := checkSource(source); err != nil {
		return nil, err
	}

	session, err := s.session(req.Msg.Session)
	if err != nil {
		return nil, err
	}
	label, err := s.label(req.Msg.Label)
	if err != nil {
		return nil, err
	}
	line, err := s.line(req.Msg.Line)
	if err != nil {
		return nil, err
	}

	var receiver jsc.Value
	if id := req.Msg.Receiver; id != "" {
		value, owner, ok := s.handles.Lookup(id)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("handle %q not found", id))
		}
		if owner != session.ID {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("handle %q belongs to another session", id))
		}
		receiver = value
	}

	result, err := s.worker.Do(func(*jsc.VM) interface{} {
		return s.evaluate(session, source, receiver, label, line)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if err, ok := result.(error); ok {
		return nil, err
	}

	return connect.NewResponse(result.(*EvaluateResponse)), nil
}

// CheckSyntax validates source without executing it.
func (s *EvalService) CheckSyntax(
	ctx context.Context,
	req *connect.Request[CheckSyntaxRequest],
) (*connect.Response[CheckSyntaxResponse], error) {
	source := req.Msg.Source
	if err := checkSource(source); err != nil {
		return nil, err
	}

	session, err := s.session(req.Msg.Session)
	if err != nil {
		return nil, err
	}
	label, err := s.label(req.Msg.Label)
	if err != nil {
		return nil, err
	}
	line, err := s.line(req.Msg.Line)
	if err != nil {
		return nil, err
	}

	result, err := s.worker.Do(func(*jsc.VM) interface{} {
		if err := sessionLive(session); err != nil {
			return err
		}
		return checkSyntax(session.Context, source, label, line)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if err, ok := result.(error); ok {
		return nil, err
	}

	return connect.NewResponse(result.(*CheckSyntaxResponse)), nil
}

// evaluate runs source and describes the outcome.
// Must be called on the VM worker goroutine.
func (s *EvalService) evaluate(session *Session, source string, receiver jsc.Value, label *url.URL, line int) interface{} {
	if err := sessionLive(session); err != nil {
		return err
	}
	ctx := session.Context

	var this jsc.Object
	if !receiver.IsEmpty() {
		obj, ok := receiver.AsObject(ctx)
		if !ok {
			return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("receiver is a %s, not an object", receiver.Type(ctx)))
		}
		this = obj
	}

	result, err := ctx.EvaluateScript(source, this, label, line)
	if err != nil {
		return failure(ctx, err)
	}

	typeName := typeNameFor(ctx, result)
	display := formatValue(ctx, result)
	resp := &EvaluateResponse{
		Success: true,
		Result:  display,
		Type:    typeName,
	}
	if js, err := result.ToJSON(ctx, 0); err == nil {
		resp.JSON = js
	}

	if result.IsObject(ctx) {
		id := s.handles.Create(result, ctx, typeName, display, session.ID)
		resp.Handle = &ValueHandle{
			ID:      id,
			Type:    typeName,
			Display: display,
		}
	}
	return resp
}

// checkSyntax parses source and reports a syntax error as a diagnostic.
// Must be called on the VM worker goroutine.
func checkSyntax(ctx *jsc.Context, source string, label *url.URL, line int) *CheckSyntaxResponse {
	ok, err := ctx.CheckSyntax(source, label, line)
	if err == nil {
		return &CheckSyntaxResponse{Valid: ok}
	}

	diag := Diagnostic{
		Severity: SeverityError,
		Message:  err.Error(),
	}
	if ex, isEx := jsc.AsException(err); isEx {
		if l, c, hasPos := ex.Position(ctx); hasPos {
			diag.Line = l
			diag.Column = c
		}
	}
	return &CheckSyntaxResponse{
		Valid:       false,
		Diagnostics: []Diagnostic{diag},
	}
}

// failure describes a thrown exception.
// Must be called on the VM worker goroutine.
func failure(ctx *jsc.Context, err error) *EvaluateResponse {
	resp := &EvaluateResponse{
		Success: false,
		Error:   err.Error(),
	}
	if ex, ok := jsc.AsException(err); ok {
		if line, column, hasPos := ex.Position(ctx); hasPos {
			resp.ErrorLine = line
			resp.ErrorColumn = column
		}
	}
	return resp
}

// formatValue converts a value to a display string.
// Must be called on the VM worker goroutine.
func formatValue(ctx *jsc.Context, val jsc.Value) string {
	switch {
	case val.IsEmpty():
		return "<empty>"
	case val.IsString(ctx):
		s, _ := val.ToString(ctx)
		return fmt.Sprintf("%q", s)
	}
	s, err := val.ToString(ctx)
	if err != nil {
		return "<" + typeNameFor(ctx, val) + ">"
	}
	return s
}

// typeNameFor returns the typeof-style name of a value.
func typeNameFor(ctx *jsc.Context, val jsc.Value) string {
	if obj, ok := val.AsObject(ctx); ok && obj.IsFunction(ctx) {
		return "function"
	}
	return val.Type(ctx).String()
}

func (s *EvalService) session(id string) (*Session, error) {
	if id == "" {
		id = s.defaults.Session
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

func (s *EvalService) label(raw string) (*url.URL, error) {
	if raw == "" {
		return s.defaults.Label, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("label: %w", err))
	}
	if !u.IsAbs() {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("label %q is not an absolute URI", raw))
	}
	return u, nil
}

func (s *EvalService) line(n int) (int, error) {
	if n > maxStartingLine {
		return 0, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("line %d is out of range", n))
	}
	if n < 1 {
		return s.defaults.Line, nil
	}
	return n, nil
}

// sessionLive reports a session destroyed after it was looked up.
// Must be called on the VM worker goroutine.
func sessionLive(session *Session) error {
	if session.Context.Closed() {
		return connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", session.ID))
	}
	return nil
}

// checkSource rejects sources the engine cannot accept.
func checkSource(source string) error {
	if strings.TrimSpace(source) == "" {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	if strings.ContainsRune(source, 0) {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source contains a NUL character"))
	}
	return nil
}
