package ffi

import (
	"math"
	"strings"
	"testing"
)

func newTestContext(t *testing.T) (*Engine, GroupRef, GlobalContextRef) {
	t.Helper()
	e := New()
	g := e.ContextGroupCreate()
	ctx := e.GlobalContextCreateInGroup(g)
	t.Cleanup(func() {
		e.GlobalContextRelease(ctx)
		e.ContextGroupRelease(g)
	})
	return e, g, ctx
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}

// ---------------------------------------------------------------------------
// Handle lifecycle
// ---------------------------------------------------------------------------

func TestStats_CreateReleaseBalanced(t *testing.T) {
	e := New()
	g := e.ContextGroupCreate()
	ctx := e.GlobalContextCreateInGroup(g)
	s := e.StringCreateWithUTF8CString([]byte("hello\x00"))

	e.StringRelease(s)
	e.GlobalContextRelease(ctx)
	e.ContextGroupRelease(g)

	st := e.Stats()
	if st.LiveGroups() != 0 || st.LiveStrings() != 0 || st.LiveContexts() != 0 {
		t.Fatalf("live handles after release: %+v", st)
	}
	if st.GroupsCreated != 1 || st.StringsCreated != 1 || st.ContextsCreated != 1 {
		t.Errorf("created counts = %+v, want one of each", st)
	}
}

func TestGroup_OutlivedByContext(t *testing.T) {
	e := New()
	g := e.ContextGroupCreate()
	ctx := e.GlobalContextCreateInGroup(g)

	// The context still holds the group after the caller lets go.
	e.ContextGroupRelease(g)
	if got := e.ContextGetGroup(ctx); got != g {
		t.Errorf("ContextGetGroup = %d, want %d", got, g)
	}
	e.GlobalContextRelease(ctx)

	mustPanic(t, "retain of freed group", func() { e.ContextGroupRetain(g) })
}

func TestRelease_TwicePanics(t *testing.T) {
	e := New()
	g := e.ContextGroupCreate()
	e.ContextGroupRelease(g)
	mustPanic(t, "double group release", func() { e.ContextGroupRelease(g) })

	s := e.StringCreateWithUTF8CString([]byte("x"))
	e.StringRelease(s)
	mustPanic(t, "double string release", func() { e.StringRelease(s) })
	mustPanic(t, "length of released string", func() { e.StringGetLength(s) })
}

func TestContext_UseAfterReleasePanics(t *testing.T) {
	e := New()
	g := e.ContextGroupCreate()
	ctx := e.GlobalContextCreateInGroup(g)
	e.GlobalContextRelease(ctx)
	e.ContextGroupRelease(g)

	mustPanic(t, "ValueMakeNull on released context", func() { e.ValueMakeNull(ctx) })
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

func TestString_LengthInUTF16Units(t *testing.T) {
	e := New()
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"Hello World", 11},
		{"héllo", 5},
		{"😀", 2},
	}
	for _, tc := range cases {
		s := e.StringCreateWithUTF8CString([]byte(tc.text))
		if got := e.StringGetLength(s); got != tc.want {
			t.Errorf("StringGetLength(%q) = %d, want %d", tc.text, got, tc.want)
		}
		if got := e.StringGetUTF8(s); got != tc.text {
			t.Errorf("StringGetUTF8 = %q, want %q", got, tc.text)
		}
		e.StringRelease(s)
	}
}

func TestString_StopsAtNUL(t *testing.T) {
	e := New()
	s := e.StringCreateWithUTF8CString([]byte("abc\x00def"))
	defer e.StringRelease(s)
	if got := e.StringGetUTF8(s); got != "abc" {
		t.Errorf("StringGetUTF8 = %q, want %q", got, "abc")
	}
}

func TestString_IsEqual(t *testing.T) {
	e := New()
	a := e.StringCreateWithUTF8CString([]byte("same"))
	b := e.StringCreateWithUTF8CString([]byte("same"))
	c := e.StringCreateWithUTF8CString([]byte("other"))
	defer e.StringRelease(a)
	defer e.StringRelease(b)
	defer e.StringRelease(c)

	if !e.StringIsEqual(a, b) {
		t.Error("equal strings compared unequal")
	}
	if e.StringIsEqual(a, c) {
		t.Error("different strings compared equal")
	}
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func TestValue_Probes(t *testing.T) {
	e, _, ctx := newTestContext(t)

	b := e.ValueMakeBoolean(ctx, true)
	n := e.ValueMakeNumber(ctx, 1.5)
	null := e.ValueMakeNull(ctx)
	undef := e.ValueMakeUndefined(ctx)

	if !e.ValueIsBoolean(ctx, b) || e.ValueIsNumber(ctx, b) {
		t.Error("boolean probes wrong")
	}
	if !e.ValueIsNumber(ctx, n) || e.ValueIsString(ctx, n) {
		t.Error("number probes wrong")
	}
	if !e.ValueIsNull(ctx, null) || e.ValueIsUndefined(ctx, null) {
		t.Error("null probes wrong")
	}
	if !e.ValueIsUndefined(ctx, undef) || e.ValueIsNull(ctx, undef) {
		t.Error("undefined probes wrong")
	}
}

func TestValue_NullRefIsNotJSNull(t *testing.T) {
	e, _, ctx := newTestContext(t)

	var empty ValueRef
	if !empty.IsNull() {
		t.Fatal("zero ValueRef should be NULL")
	}
	if e.ValueIsNull(ctx, empty) || e.ValueIsUndefined(ctx, empty) {
		t.Error("NULL reference should not probe as null or undefined")
	}
	if e.ValueMakeNull(ctx).IsNull() {
		t.Error("JS null should not be a NULL reference")
	}
}

func TestValue_ToNumberThrowsForSymbol(t *testing.T) {
	e, _, ctx := newTestContext(t)

	script := e.StringCreateWithUTF8CString([]byte("Symbol('s')"))
	defer e.StringRelease(script)

	var exc ValueRef
	sym := e.EvaluateScript(ctx, script, ObjectRef{}, 0, 1, &exc)
	if !exc.IsNull() {
		t.Fatal("creating a symbol threw")
	}
	if got := e.ValueGetType(ctx, sym); got != TypeSymbol {
		t.Fatalf("ValueGetType = %v, want symbol", got)
	}

	e.ValueToNumber(ctx, sym, &exc)
	if exc.IsNull() {
		t.Fatal("ValueToNumber(symbol) should throw")
	}
	if !e.ValueIsObject(ctx, exc) {
		t.Error("thrown value should be a TypeError object")
	}
}

func TestValue_ToStringThrowsForSymbol(t *testing.T) {
	e, _, ctx := newTestContext(t)

	script := e.StringCreateWithUTF8CString([]byte("Symbol('s')"))
	defer e.StringRelease(script)

	var exc ValueRef
	sym := e.EvaluateScript(ctx, script, ObjectRef{}, 0, 1, &exc)
	if !exc.IsNull() {
		t.Fatal("creating a symbol threw")
	}

	if s := e.ValueToStringCopy(ctx, sym, &exc); s != 0 {
		e.StringRelease(s)
		t.Fatal("ValueToStringCopy(symbol) should not produce a string")
	}
	if exc.IsNull() {
		t.Fatal("ValueToStringCopy(symbol) should throw")
	}

	var inner ValueRef
	msg := e.ValueToStringCopy(ctx, exc, &inner)
	defer e.StringRelease(msg)
	if got := e.StringGetUTF8(msg); !strings.HasPrefix(got, "TypeError") {
		t.Errorf("thrown = %q, want TypeError", got)
	}
}

func TestValue_ToNumberOfNullRefIsNaN(t *testing.T) {
	e, _, ctx := newTestContext(t)

	var exc ValueRef
	n := e.ValueToNumber(ctx, ValueRef{}, &exc)
	if !exc.IsNull() {
		t.Fatal("unexpected exception")
	}
	if !math.IsNaN(n) {
		t.Errorf("ValueToNumber(NULL) = %v, want NaN", n)
	}
}

func TestValue_ForeignContextPanics(t *testing.T) {
	e := New()
	g := e.ContextGroupCreate()
	a := e.GlobalContextCreateInGroup(g)
	b := e.GlobalContextCreateInGroup(g)
	defer e.ContextGroupRelease(g)
	defer e.GlobalContextRelease(a)
	defer e.GlobalContextRelease(b)

	v := e.ValueMakeNumber(a, 1)
	mustPanic(t, "value used in another context", func() { e.ValueIsNumber(b, v) })
}

func TestValue_JSONRoundTrip(t *testing.T) {
	e, _, ctx := newTestContext(t)

	src := e.StringCreateWithUTF8CString([]byte(`{"a":[1,2,3],"b":"x"}`))
	defer e.StringRelease(src)

	v := e.ValueMakeFromJSONString(ctx, src)
	if v.IsNull() || !e.ValueIsObject(ctx, v) {
		t.Fatal("ValueMakeFromJSONString did not produce an object")
	}

	var exc ValueRef
	out := e.ValueCreateJSONString(ctx, v, 0, &exc)
	if out == 0 {
		t.Fatal("ValueCreateJSONString returned NULL")
	}
	defer e.StringRelease(out)
	if got := e.StringGetUTF8(out); got != `{"a":[1,2,3],"b":"x"}` {
		t.Errorf("JSON = %s", got)
	}
}

func TestValue_BadJSONIsNull(t *testing.T) {
	e, _, ctx := newTestContext(t)

	src := e.StringCreateWithUTF8CString([]byte(`{nope`))
	defer e.StringRelease(src)
	if v := e.ValueMakeFromJSONString(ctx, src); !v.IsNull() {
		t.Error("invalid JSON should produce NULL")
	}
}

func TestValue_ProtectNests(t *testing.T) {
	e, _, ctx := newTestContext(t)

	v := e.ValueMakeNumber(ctx, 7)
	e.ValueProtect(ctx, v)
	e.ValueProtect(ctx, v)
	if got := e.ProtectedCount(ctx); got != 1 {
		t.Fatalf("ProtectedCount = %d, want 1", got)
	}
	e.ValueUnprotect(ctx, v)
	if got := e.ProtectedCount(ctx); got != 1 {
		t.Fatalf("ProtectedCount after one unprotect = %d, want 1", got)
	}
	e.ValueUnprotect(ctx, v)
	if got := e.ProtectedCount(ctx); got != 0 {
		t.Errorf("ProtectedCount = %d, want 0", got)
	}
}

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

func TestObject_ArrayPreservesOrder(t *testing.T) {
	e, _, ctx := newTestContext(t)

	elems := []ValueRef{
		e.ValueMakeNumber(ctx, 3),
		e.ValueMakeNumber(ctx, 1),
		e.ValueMakeNumber(ctx, 3),
	}
	var exc ValueRef
	arr := e.ObjectMakeArray(ctx, elems, &exc)
	if !exc.IsNull() || arr.IsNull() {
		t.Fatal("ObjectMakeArray failed")
	}
	if !e.ValueIsArray(ctx, arr.Value()) {
		t.Fatal("result is not an array")
	}

	out := e.ValueCreateJSONString(ctx, arr.Value(), 0, &exc)
	defer e.StringRelease(out)
	if got := e.StringGetUTF8(out); got != "[3,1,3]" {
		t.Errorf("array = %s, want [3,1,3]", got)
	}
}

func TestObject_IsConstructor(t *testing.T) {
	e, _, ctx := newTestContext(t)

	name := e.StringCreateWithUTF8CString([]byte("Date"))
	defer e.StringRelease(name)

	var exc ValueRef
	date := e.ObjectGetProperty(ctx, e.ContextGetGlobalObject(ctx), name, &exc)
	if !exc.IsNull() {
		t.Fatal("reading Date threw")
	}
	if !e.ObjectIsConstructor(ctx, e.ValueToObject(ctx, date)) {
		t.Error("Date should be a constructor")
	}

	arr := e.ObjectMakeArray(ctx, nil, &exc)
	if e.ObjectIsConstructor(ctx, arr) {
		t.Error("an array should not be a constructor")
	}
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

func TestEvaluateScript_CompletionValue(t *testing.T) {
	e, _, ctx := newTestContext(t)

	script := e.StringCreateWithUTF8CString([]byte("40 + 2"))
	defer e.StringRelease(script)

	var exc ValueRef
	v := e.EvaluateScript(ctx, script, ObjectRef{}, 0, 1, &exc)
	if !exc.IsNull() {
		t.Fatal("unexpected exception")
	}
	if n := e.ValueToNumber(ctx, v, &exc); n != 42 {
		t.Errorf("result = %v, want 42", n)
	}
}

func TestEvaluateScript_ThisIsReceiver(t *testing.T) {
	e, _, ctx := newTestContext(t)

	script := e.StringCreateWithUTF8CString([]byte("this.length"))
	defer e.StringRelease(script)

	var exc ValueRef
	recv := e.ObjectMakeArray(ctx, []ValueRef{e.ValueMakeNull(ctx), e.ValueMakeNull(ctx)}, &exc)
	v := e.EvaluateScript(ctx, script, recv, 0, 1, &exc)
	if !exc.IsNull() {
		t.Fatal("unexpected exception")
	}
	if n := e.ValueToNumber(ctx, v, &exc); n != 2 {
		t.Errorf("this.length = %v, want 2", n)
	}
}

func TestEvaluateScript_ThrowFillsSlot(t *testing.T) {
	e, _, ctx := newTestContext(t)

	script := e.StringCreateWithUTF8CString([]byte("throw 'boom'"))
	defer e.StringRelease(script)

	var exc ValueRef
	v := e.EvaluateScript(ctx, script, ObjectRef{}, 0, 1, &exc)
	if !v.IsNull() {
		t.Error("result should be NULL on throw")
	}
	if exc.IsNull() || !e.ValueIsString(ctx, exc) {
		t.Fatal("exception slot should hold the thrown string")
	}
}

func TestCheckScriptSyntax_ErrorHasPosition(t *testing.T) {
	e, _, ctx := newTestContext(t)

	script := e.StringCreateWithUTF8CString([]byte("function"))
	label := e.StringCreateWithUTF8CString([]byte("https://webkit.org"))
	defer e.StringRelease(script)
	defer e.StringRelease(label)

	var exc ValueRef
	if e.CheckScriptSyntax(ctx, script, label, 3, &exc) {
		t.Fatal("CheckScriptSyntax accepted an incomplete function")
	}
	if exc.IsNull() {
		t.Fatal("syntax error should fill the exception slot")
	}

	lineName := e.StringCreateWithUTF8CString([]byte("line"))
	defer e.StringRelease(lineName)
	line := e.ObjectGetProperty(ctx, e.ValueToObject(ctx, exc), lineName, nil)
	if n := e.ValueToNumber(ctx, line, nil); n != 3 {
		t.Errorf("line = %v, want 3", n)
	}

	msg := e.ValueToStringCopy(ctx, exc, nil)
	defer e.StringRelease(msg)
	if got := e.StringGetUTF8(msg); !strings.HasPrefix(got, "SyntaxError") {
		t.Errorf("message = %q, want SyntaxError prefix", got)
	}
}

func TestCheckScriptSyntax_PositionFromParser(t *testing.T) {
	e, _, ctx := newTestContext(t)

	script := e.StringCreateWithUTF8CString([]byte("var a = 1;\nvar x = ;"))
	defer e.StringRelease(script)

	var exc ValueRef
	if e.CheckScriptSyntax(ctx, script, 0, 20, &exc) {
		t.Fatal("CheckScriptSyntax accepted a missing initializer")
	}
	obj := e.ValueToObject(ctx, exc)
	prop := func(name string) ValueRef {
		s := e.StringCreateWithUTF8CString([]byte(name))
		defer e.StringRelease(s)
		return e.ObjectGetProperty(ctx, obj, s, nil)
	}
	if n := e.ValueToNumber(ctx, prop("line"), nil); n != 21 {
		t.Errorf("line = %v, want 21", n)
	}
	if n := e.ValueToNumber(ctx, prop("column"), nil); n < 2 {
		t.Errorf("column = %v, want the offending token's column", n)
	}

	msg := e.ValueToStringCopy(ctx, exc, nil)
	defer e.StringRelease(msg)
	if got := e.StringGetUTF8(msg); strings.Contains(got, "Line ") {
		t.Errorf("message %q still embeds the parser's position text", got)
	}
}

func TestThrowSite(t *testing.T) {
	tests := []struct {
		trace  string
		src    string
		line   int
		column int
		ok     bool
	}{
		{"TypeError: x\n\tat <eval>:2:5(3)\n", "<eval>", 2, 5, true},
		{"Error: y\n\tat f (https://a.b:9/x.js:3:7(12))\n\tat https://a.b:9/x.js:5:1(4)\n", "https://a.b:9/x.js", 3, 7, true},
		{"Error: z\n\tat JSON.parse (native)\n\tat native\n\tat lib.js:8:2(0)\n", "lib.js", 8, 2, true},
		{"Error: none\n\tat native\n", "", 0, 0, false},
		{"7\n", "", 0, 0, false},
	}
	for _, tt := range tests {
		src, line, column, ok := throwSite(tt.trace)
		if src != tt.src || line != tt.line || column != tt.column || ok != tt.ok {
			t.Errorf("throwSite(%q) = %q, %d, %d, %v; want %q, %d, %d, %v",
				tt.trace, src, line, column, ok, tt.src, tt.line, tt.column, tt.ok)
		}
	}
}

func TestEvaluateScript_ReceiverErrorLabel(t *testing.T) {
	e, _, ctx := newTestContext(t)

	script := e.StringCreateWithUTF8CString([]byte("1;\nundefinedName"))
	label := e.StringCreateWithUTF8CString([]byte("https://webkit.org"))
	defer e.StringRelease(script)
	defer e.StringRelease(label)

	var exc ValueRef
	recv := e.ObjectMakeArray(ctx, nil, &exc)
	e.EvaluateScript(ctx, script, recv, label, 4, &exc)
	if exc.IsNull() {
		t.Fatal("ReferenceError should fill the exception slot")
	}
	obj := e.ValueToObject(ctx, exc)

	urlName := e.StringCreateWithUTF8CString([]byte("sourceURL"))
	lineName := e.StringCreateWithUTF8CString([]byte("line"))
	defer e.StringRelease(urlName)
	defer e.StringRelease(lineName)

	url := e.ValueToStringCopy(ctx, e.ObjectGetProperty(ctx, obj, urlName, nil), nil)
	defer e.StringRelease(url)
	if got := e.StringGetUTF8(url); got != "https://webkit.org" {
		t.Errorf("sourceURL = %q, want https://webkit.org", got)
	}
	if n := e.ValueToNumber(ctx, e.ObjectGetProperty(ctx, obj, lineName, nil), nil); n != 5 {
		t.Errorf("line = %v, want 5", n)
	}
}
