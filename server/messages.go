package server

// Wire messages for the jscore.v1 services. Field tags serve both codecs:
// the CBOR codec falls back to json tags.

// EvaluateRequest runs source in a session.
type EvaluateRequest struct {
	// Session is the session ID. Empty means the server's default session.
	Session string `json:"session,omitempty"`
	Source  string `json:"source"`
	// Label is an absolute URI naming the source in diagnostics.
	Label string `json:"label,omitempty"`
	// Line is the 1-based starting line. Zero means the server default.
	Line int `json:"line,omitempty"`
	// Receiver is a handle ID whose object becomes this. Empty means the
	// global object.
	Receiver string `json:"receiver,omitempty"`
}

// ValueHandle names a value held by the server between requests.
type ValueHandle struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Display string `json:"display,omitempty"`
}

// EvaluateResponse carries either a result or the thrown exception.
type EvaluateResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	JSON    string `json:"json,omitempty"`
	Type    string `json:"type,omitempty"`
	// Handle is set when the result is an object.
	Handle *ValueHandle `json:"handle,omitempty"`

	Error       string `json:"error,omitempty"`
	ErrorLine   int    `json:"errorLine,omitempty"`
	ErrorColumn int    `json:"errorColumn,omitempty"`
}

// CheckSyntaxRequest parses source without running it.
type CheckSyntaxRequest struct {
	Session string `json:"session,omitempty"`
	Source  string `json:"source"`
	Label   string `json:"label,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// SeverityError marks a diagnostic that prevents the source from running.
const SeverityError = "error"

// Diagnostic is one problem found in source. Line and Column are 1-based;
// zero means unknown.
type Diagnostic struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

type CheckSyntaxResponse struct {
	Valid       bool         `json:"valid"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

type CreateSessionRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type DestroySessionRequest struct {
	SessionID string `json:"sessionId"`
}

type DestroySessionResponse struct {
	ReleasedHandles int `json:"releasedHandles"`
}

type ReleaseHandleRequest struct {
	Handle string `json:"handle"`
}

type ReleaseHandleResponse struct{}
