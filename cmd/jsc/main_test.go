package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/jscore/ffi"
	"github.com/chazu/jscore/jsc"
	"github.com/chazu/jscore/manifest"
)

func newTestContext(t *testing.T) *jsc.Context {
	t.Helper()
	vm := jsc.NewVM(jsc.WithEngine(ffi.New()))
	ctx := jsc.NewContext(vm)
	t.Cleanup(func() {
		ctx.Close()
		vm.Close()
	})
	return ctx
}

func writeScript(t *testing.T, name, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDisplay(t *testing.T) {
	ctx := newTestContext(t)

	tests := []struct {
		source string
		quote  bool
		want   string
	}{
		{"1 + 2", false, "3"},
		{"'hi'", false, "hi"},
		{"'hi'", true, `"hi"`},
		{"[1, 2]", false, "[\n  1,\n  2\n]"},
		{"null", false, "null"},
		{"undefined", false, "undefined"},
		{"Symbol('s')", false, "<symbol>"},
	}
	for _, tt := range tests {
		v, err := ctx.EvaluateScript(tt.source, jsc.Object{}, nil, 1)
		if err != nil {
			t.Fatalf("EvaluateScript(%s): %v", tt.source, err)
		}
		if got := display(ctx, v, tt.quote); got != tt.want {
			t.Errorf("display(%s) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestIncomplete(t *testing.T) {
	ctx := newTestContext(t)

	if !incomplete(ctx, "function f() {", nil) {
		t.Error("an open function body should be incomplete")
	}
	if incomplete(ctx, "1 +* 2", nil) {
		t.Error("a plain syntax error is not incomplete")
	}
	if incomplete(ctx, "1 + 2", nil) {
		t.Error("valid source is not incomplete")
	}
}

func TestResolveLabel(t *testing.T) {
	m := manifest.Default()

	u, err := resolveLabel(m, "")
	if err != nil {
		t.Fatal(err)
	}
	if u.String() != "jscore:eval" {
		t.Errorf("default label = %q, want jscore:eval", u)
	}

	u, err = resolveLabel(m, "https://example.com/repl.js")
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "example.com" {
		t.Errorf("label host = %q, want example.com", u.Host)
	}

	if _, err := resolveLabel(m, "relative.js"); err == nil {
		t.Error("a relative -label should be rejected")
	}
}

func TestFileLabel(t *testing.T) {
	u := fileLabel("/tmp/app/main.js")
	if u.Scheme != "file" || u.Path != "/tmp/app/main.js" {
		t.Errorf("fileLabel = %q, want file:///tmp/app/main.js", u)
	}
}

func TestLoadScripts_Nul(t *testing.T) {
	path := writeScript(t, "nul.js", "1\x002")
	if _, err := loadScripts([]string{path}); err == nil {
		t.Error("loadScripts should reject a file containing NUL")
	}
}

func TestRunLocal_Files(t *testing.T) {
	lib := writeScript(t, "lib.js", "function double(x) { return x * 2 }")
	main := writeScript(t, "main.js", "if (double(21) !== 42) throw new Error('wrong')")

	if code := runLocal(localOptions{files: []string{lib, main}, line: 1}); code != 0 {
		t.Errorf("runLocal = %d, want 0", code)
	}
}

func TestRunLocal_Throw(t *testing.T) {
	path := writeScript(t, "throw.js", "throw new Error('boom')")

	if code := runLocal(localOptions{files: []string{path}, line: 1}); code != 1 {
		t.Errorf("runLocal = %d, want 1", code)
	}
}

func TestRunLocal_CheckOnly(t *testing.T) {
	good := writeScript(t, "good.js", "throw new Error('not run')")
	bad := writeScript(t, "bad.js", "var = ;")

	if code := runLocal(localOptions{files: []string{good}, checkOnly: true, line: 1}); code != 0 {
		t.Errorf("check of valid file = %d, want 0", code)
	}
	if code := runLocal(localOptions{files: []string{good, bad}, checkOnly: true, line: 1}); code != 1 {
		t.Errorf("check with a bad file = %d, want 1", code)
	}
}

func TestRunLocal_Preload(t *testing.T) {
	scripts, err := loadScripts([]string{writeScript(t, "pre.js", "var preloaded = 'yes'")})
	if err != nil {
		t.Fatal(err)
	}
	main := writeScript(t, "main.js", "if (preloaded !== 'yes') throw 1")

	if code := runLocal(localOptions{files: []string{main}, preload: scripts, line: 1}); code != 0 {
		t.Errorf("runLocal = %d, want 0", code)
	}
	if !strings.HasPrefix(scripts[0].Label.String(), "file://") {
		t.Errorf("preload label = %q, want a file URI", scripts[0].Label)
	}
}
