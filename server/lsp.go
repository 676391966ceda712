package server

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/jscore/jsc"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "jscore-lsp"

var lspLog = commonlog.GetLogger("jscore.lsp")

// globalsScript lists the global object's own properties with their types.
const globalsScript = `Object.getOwnPropertyNames(globalThis).map(function (n) {
	return [n, typeof globalThis[n]];
})`

// hoverScript describes one global; %s is the JSON-quoted name.
const hoverScript = `(function (v) {
	var t = typeof v;
	return [t, t === "function" ? String(v).split("\n")[0] : ""];
})(globalThis[%s])`

// LspServer bridges LSP editor features to a context via VMWorker.
// Documents are only parsed, never run.
type LspServer struct {
	worker *VMWorker
	ctx    *jsc.Context

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server wrapping the given VM. The server owns v.
func NewLSP(v *jsc.VM) (*LspServer, error) {
	worker := NewVMWorker(v)
	result, err := worker.Do(func(v *jsc.VM) interface{} {
		return jsc.NewContext(v)
	})
	if err != nil {
		worker.Stop()
		return nil, err
	}

	s := &LspServer{
		worker:  worker,
		ctx:     result.(*jsc.Context),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s, nil
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// Stop closes the context and the VM.
func (s *LspServer) Stop() {
	_, _ = s.worker.Do(func(*jsc.VM) interface{} {
		s.ctx.Close()
		return nil
	})
	s.worker.Stop()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("jscore LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(*jsc.VM) interface{} {
		return s.complete(prefix)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" || unicode.IsDigit(rune(word[0])) {
		return nil, nil
	}

	result, err := s.worker.Do(func(*jsc.VM) interface{} {
		return s.hover(word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	hover, _ := result.(*protocol.Hover)
	return hover, nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Engine-backed logic (called on worker goroutine) ---

func (s *LspServer) complete(prefix string) []protocol.CompletionItem {
	result, err := s.ctx.EvaluateScript(globalsScript, jsc.Object{}, nil, 1)
	if err != nil {
		lspLog.Warningf("completion: %v", err)
		return nil
	}
	encoded, err := result.ToJSON(s.ctx, 0)
	if err != nil {
		lspLog.Warningf("completion: %v", err)
		return nil
	}

	var globals [][]string
	if err := json.Unmarshal([]byte(encoded), &globals); err != nil {
		lspLog.Warningf("completion: %v", err)
		return nil
	}
	sort.Slice(globals, func(i, j int) bool { return globals[i][0] < globals[j][0] })

	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)
	for _, g := range globals {
		if len(g) != 2 || !strings.HasPrefix(strings.ToLower(g[0]), lowerPrefix) {
			continue
		}
		name, detail := g[0], g[1]
		kind := protocol.CompletionItemKindVariable
		if detail == "function" {
			kind = protocol.CompletionItemKindFunction
			if len(name) > 0 && unicode.IsUpper(rune(name[0])) {
				kind = protocol.CompletionItemKindClass
			}
		}
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &name,
		})
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func (s *LspServer) hover(word string) *protocol.Hover {
	quoted, err := json.Marshal(word)
	if err != nil {
		return nil
	}
	result, err := s.ctx.EvaluateScript(fmt.Sprintf(hoverScript, quoted), jsc.Object{}, nil, 1)
	if err != nil {
		return nil
	}
	encoded, err := result.ToJSON(s.ctx, 0)
	if err != nil {
		return nil
	}

	var info []string
	if err := json.Unmarshal([]byte(encoded), &info); err != nil || len(info) != 2 {
		return nil
	}
	if info[0] == "undefined" {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**: `%s`", word, info[0])
	if info[1] != "" {
		fmt.Fprintf(&b, "\n\n```js\n%s\n```", info[1])
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// diagnose parses a document and converts a syntax error to LSP form.
// Must be called on the VM worker goroutine.
func (s *LspServer) diagnose(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName

	if strings.ContainsRune(text, 0) {
		return []protocol.Diagnostic{{
			Severity: &severity,
			Source:   &source,
			Message:  "document contains a NUL character",
		}}
	}

	var label *url.URL
	if u, err := url.Parse(string(uri)); err == nil && u.IsAbs() {
		label = u
	}

	resp := checkSyntax(s.ctx, text, label, 1)
	diagnostics := []protocol.Diagnostic{}
	for _, d := range resp.Diagnostics {
		pos := protocol.Position{Line: 0, Character: 0}
		if d.Line > 0 {
			pos.Line = protocol.UInteger(d.Line - 1)
		}
		if d.Column > 0 {
			pos.Character = protocol.UInteger(d.Column - 1)
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    protocol.Range{Start: pos, End: pos},
			Severity: &severity,
			Source:   &source,
			Message:  d.Message,
		})
	}
	return diagnostics
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(*jsc.VM) interface{} {
		return s.diagnose(uri, text)
	})
	if err != nil {
		lspLog.Errorf("diagnostics for %s: %v", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

// --- Text extraction helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '$'
}

// extractPrefix returns the identifier fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}

	end := col
	for end < len(line) && isIdentRune(rune(line[end])) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
