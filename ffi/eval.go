package ffi

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
	"github.com/goccy/go-json"
)

// MaxStartingLine is the largest starting line EvaluateScript and
// CheckScriptSyntax honor. Larger values are clamped.
const MaxStartingLine = math.MaxInt32

// evalSource is the name goja gives code run by eval, and code compiled
// without a name.
const evalSource = "<eval>"

// unit is one script being compiled: its label and the line its first
// line reports as.
type unit struct {
	label string
	line  int
}

func newUnit(label string, startingLine int) unit {
	switch {
	case startingLine < 1:
		startingLine = 1
	case startingLine > MaxStartingLine:
		startingLine = MaxStartingLine
	}
	return unit{label: label, line: startingLine}
}

// shift maps a line of the source as compiled to the caller's numbering.
func (u unit) shift(line int) int {
	return line + u.line - 1
}

// owns reports whether a stack frame source name refers to this unit.
func (u unit) owns(src string) bool {
	return src == evalSource || src == u.label
}

// EvaluateScript compiles and runs script in ctx. this is the receiver for
// the program; NULL means the global object. sourceURL labels diagnostics
// and may be NULL. On a syntax error or an uncaught throw, the thrown value
// is stored in exception and NULL is returned.
func (e *Engine) EvaluateScript(ctx GlobalContextRef, script StringRef, this ObjectRef, sourceURL StringRef, startingLine int, exception *ValueRef) ValueRef {
	c := e.context(ctx)
	u := newUnit(e.goString(sourceURL), startingLine)
	src := e.StringGetUTF8(script)

	prog, err := compile(src, u)
	if err != nil {
		c.syntaxError(exception, err, u)
		return ValueRef{}
	}

	var res goja.Value
	if recv := c.obj(this); recv == nil {
		res, err = c.rt.RunProgram(prog)
	} else {
		res, err = c.runWith(recv, src, u)
	}
	if err != nil {
		c.fail(exception, err, u)
		return ValueRef{}
	}
	if res == nil {
		res = goja.Undefined()
	}
	return ValueRef{c: c.wrap(res)}
}

// CheckScriptSyntax parses script without running it. A syntax error is
// stored in exception and false is returned.
func (e *Engine) CheckScriptSyntax(ctx GlobalContextRef, script StringRef, sourceURL StringRef, startingLine int, exception *ValueRef) bool {
	c := e.context(ctx)
	u := newUnit(e.goString(sourceURL), startingLine)

	if _, err := compile(e.StringGetUTF8(script), u); err != nil {
		c.syntaxError(exception, err, u)
		return false
	}
	return true
}

// compile parses src under the unit's label. Parse failures come back as
// parser.ErrorList, compiler failures as *goja.CompilerSyntaxError.
func compile(src string, u unit) (*goja.Program, error) {
	prg, err := parser.ParseFile(nil, u.label, src, 0)
	if err != nil {
		return nil, err
	}
	return goja.CompileAST(prg, false)
}

// runWith runs src with recv as its this binding. goja binds this only for
// function code, so src runs through a direct eval inside a bridge function
// built for this call. The bridge's parameter is named arguments so that
// src sees no arguments object.
func (c *globalContext) runWith(recv *goja.Object, src string, u unit) (goja.Value, error) {
	lit, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	v, err := c.rt.RunScript(u.label, "(function (arguments) { return eval("+string(lit)+"); })")
	if err != nil {
		return nil, err
	}
	bridge, ok := goja.AssertFunction(v)
	if !ok {
		return nil, errors.New("ffi: eval bridge is not callable")
	}
	return bridge(recv)
}

func (c *globalContext) fail(exception *ValueRef, err error, u unit) {
	var ex *goja.Exception
	var syn *goja.CompilerSyntaxError
	switch {
	case errors.As(err, &ex):
		c.annotate(ex, u)
		c.throw(exception, ex)
	case errors.As(err, &syn):
		c.syntaxError(exception, syn, u)
	default:
		c.throwGo(exception, err)
	}
}

// syntaxError stores a SyntaxError object built from a compile error. The
// object carries line, column and sourceURL properties.
func (c *globalContext) syntaxError(exception *ValueRef, err error, u unit) {
	if exception == nil {
		return
	}
	msg, line, column := syntaxPosition(err)
	obj, nerr := c.rt.New(c.rt.Get("SyntaxError"), c.rt.ToValue(msg))
	if nerr != nil {
		c.throwGo(exception, err)
		return
	}
	_ = obj.Set("line", u.shift(line))
	_ = obj.Set("column", column)
	if u.label != "" {
		_ = obj.Set("sourceURL", u.label)
	}
	*exception = ValueRef{c: c.wrap(obj)}
}

// syntaxPosition returns the message and 1-based position of a parse or
// compile error. An error without a position reports line 1, column 0.
func syntaxPosition(err error) (msg string, line, column int) {
	var list parser.ErrorList
	var syn *goja.CompilerSyntaxError
	switch {
	case errors.As(err, &list) && len(list) > 0:
		return list[0].Message, list[0].Position.Line, list[0].Position.Column
	case errors.As(err, &syn):
		if syn.File != nil {
			p := syn.File.Position(syn.Offset)
			return syn.Message, p.Line, p.Column
		}
		return syn.Message, 1, 0
	}
	return strings.TrimPrefix(err.Error(), "SyntaxError: "), 1, 0
}

// annotate stamps sourceURL, line and column of the throw site onto an
// uncaught Error that does not carry them yet. Lines in this unit are
// shifted to the caller's numbering and eval frames take the unit's label.
func (c *globalContext) annotate(ex *goja.Exception, u unit) {
	obj, ok := ex.Value().(*goja.Object)
	if !ok || obj.ClassName() != "Error" {
		return
	}

	var trace string
	stamped := false
	if c.rt.Try(func() {
		if stamped = obj.Get("line") != nil; !stamped {
			trace = ex.String()
		}
	}) != nil || stamped {
		return
	}
	src, line, column, found := throwSite(trace)
	if !found {
		return
	}
	if u.owns(src) {
		src = u.label
		line = u.shift(line)
	}
	_ = obj.Set("line", line)
	_ = obj.Set("column", column)
	if src != "" {
		_ = obj.Set("sourceURL", src)
	}
}

// throwSite finds the innermost script frame of a goja stack trace. goja
// prints frames as "src:line:col(pc)" or "name (src:line:col(pc))"; native
// frames carry no position and are skipped.
func throwSite(trace string) (src string, line, column int, ok bool) {
	const at = "\n\tat "
	for {
		i := strings.Index(trace, at)
		if i < 0 {
			return "", 0, 0, false
		}
		trace = trace[i+len(at)-1:]
		frame := trace[1:]
		if j := strings.IndexByte(frame, '\n'); j >= 0 {
			frame = frame[:j]
		}
		if src, line, column, ok = parseFrame(frame); ok {
			return src, line, column, true
		}
	}
}

func parseFrame(frame string) (src string, line, column int, ok bool) {
	k := strings.LastIndexByte(frame, '(')
	if k < 0 {
		return "", 0, 0, false
	}
	pos := frame[:k]
	if strings.HasSuffix(frame, "))") {
		j := strings.Index(pos, " (")
		if j < 0 {
			return "", 0, 0, false
		}
		pos = pos[j+2:]
	}

	j := strings.LastIndexByte(pos, ':')
	if j < 0 {
		return "", 0, 0, false
	}
	column, err := strconv.Atoi(pos[j+1:])
	if err != nil {
		return "", 0, 0, false
	}
	pos = pos[:j]
	j = strings.LastIndexByte(pos, ':')
	if j < 0 {
		return "", 0, 0, false
	}
	line, err = strconv.Atoi(pos[j+1:])
	if err != nil {
		return "", 0, 0, false
	}
	return pos[:j], line, column, true
}
