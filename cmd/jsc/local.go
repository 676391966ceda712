package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/chazu/jscore/jsc"
	"github.com/chazu/jscore/server"
)

type localOptions struct {
	expr        string
	files       []string
	label       *url.URL
	line        int
	preload     []server.Script
	checkOnly   bool
	interactive bool
}

// runLocal runs everything in one context and returns the exit status.
func runLocal(opts localOptions) int {
	vm := jsc.NewVM()
	defer vm.Close()
	ctx := jsc.NewContext(vm)
	defer func() { ctx.Close() }()

	for _, script := range opts.preload {
		if _, err := ctx.EvaluateScript(script.Source, jsc.Object{}, script.Label, 1); err != nil {
			printException(ctx, script.Label, err)
			return 1
		}
	}

	status := 0
	for _, path := range opts.files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		source := string(data)
		if strings.ContainsRune(source, 0) {
			fmt.Fprintf(os.Stderr, "Error: %s contains a NUL character\n", path)
			return 1
		}

		label := fileLabel(path)
		if opts.checkOnly {
			if _, err := ctx.CheckSyntax(source, label, 1); err != nil {
				printException(ctx, label, err)
				status = 1
			}
			continue
		}
		if _, err := ctx.EvaluateScript(source, jsc.Object{}, label, 1); err != nil {
			printException(ctx, label, err)
			return 1
		}
	}

	if opts.expr != "" {
		if strings.ContainsRune(opts.expr, 0) {
			fmt.Fprintln(os.Stderr, "Error: expression contains a NUL character")
			return 1
		}
		if opts.checkOnly {
			if _, err := ctx.CheckSyntax(opts.expr, opts.label, opts.line); err != nil {
				printException(ctx, opts.label, err)
				return 1
			}
			return status
		}
		result, err := ctx.EvaluateScript(opts.expr, jsc.Object{}, opts.label, opts.line)
		if err != nil {
			printException(ctx, opts.label, err)
			return 1
		}
		fmt.Println(display(ctx, result, false))
	}

	if opts.interactive || (len(opts.files) == 0 && opts.expr == "") {
		if opts.checkOnly {
			return status
		}
		ctx = runREPL(ctx, opts.label)
	}
	return status
}

// printException reports an uncaught exception with its position when known.
func printException(ctx *jsc.Context, label *url.URL, err error) {
	ex, ok := jsc.AsException(err)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if line, column, hasPos := ex.Position(ctx); hasPos {
		fmt.Fprintf(os.Stderr, "%s:%d:%d: ", label, line, column)
	}
	fmt.Fprintf(os.Stderr, "Uncaught %s\n", ex.Message)
}

// display renders a value for the terminal. quote controls whether strings
// are shown as literals.
func display(ctx *jsc.Context, v jsc.Value, quote bool) string {
	switch {
	case v.IsEmpty():
		return ""
	case v.IsString(ctx):
		s, _ := v.ToString(ctx)
		if quote {
			return fmt.Sprintf("%q", s)
		}
		return s
	}
	if obj, ok := v.AsObject(ctx); ok && !obj.IsFunction(ctx) && !v.IsDate(ctx) {
		if js, err := v.ToJSON(ctx, 2); err == nil && js != "" {
			return js
		}
	}
	s, err := v.ToString(ctx)
	if err != nil {
		return "<" + v.Type(ctx).String() + ">"
	}
	return s
}

// runREPL reads and evaluates input until EOF or exit. It returns the
// context in use at the end, which :reset may have replaced.
func runREPL(ctx *jsc.Context, label *url.URL) *jsc.Context {
	fmt.Println("jsc REPL (type 'exit' to quit, ':help' for commands)")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	lineBuffer := strings.Builder{}
	line := 1

	for {
		// Show prompt
		if lineBuffer.Len() == 0 {
			fmt.Print(">> ")
		} else {
			fmt.Print(".. ")
		}

		if !scanner.Scan() {
			break
		}

		text := scanner.Text()

		// Handle exit
		if lineBuffer.Len() == 0 && (text == "exit" || text == "quit") {
			break
		}

		// Handle REPL commands (start with ':')
		if lineBuffer.Len() == 0 && strings.HasPrefix(text, ":") {
			ctx = handleREPLCommand(ctx, text)
			continue
		}

		if strings.ContainsRune(text, 0) {
			fmt.Fprintln(os.Stderr, "Error: input contains a NUL character")
			lineBuffer.Reset()
			continue
		}

		if lineBuffer.Len() > 0 {
			lineBuffer.WriteString("\n")
		}
		lineBuffer.WriteString(text)

		input := lineBuffer.String()
		if strings.TrimSpace(input) == "" {
			lineBuffer.Reset()
			continue
		}

		// Keep reading while the input is an unfinished statement; an empty
		// line forces evaluation.
		if text != "" && incomplete(ctx, input, label) {
			continue
		}
		lineBuffer.Reset()

		result, err := ctx.EvaluateScript(input, jsc.Object{}, label, line)
		line += strings.Count(input, "\n") + 1
		if err != nil {
			printException(ctx, label, err)
			continue
		}
		fmt.Println(display(ctx, result, true))
	}

	fmt.Println()
	return ctx
}

// incomplete reports whether source fails to parse only because it ends early.
func incomplete(ctx *jsc.Context, source string, label *url.URL) bool {
	_, err := ctx.CheckSyntax(source, label, 1)
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "end of input")
}

// handleREPLCommand handles REPL meta-commands
func handleREPLCommand(ctx *jsc.Context, cmd string) *jsc.Context {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Println("REPL Commands:")
		fmt.Println("  :help, :h, :?     Show this help")
		fmt.Println("  :globals          List enumerable globals")
		fmt.Println("  :stats            Show engine handle counters")
		fmt.Println("  :reset            Discard all globals and start a fresh context")
		fmt.Println("  exit, quit        Exit REPL")
	case ":globals":
		names := ctx.GlobalObject().PropertyNames(ctx)
		sort.Strings(names)
		for _, name := range names {
			fmt.Println("  " + name)
		}
	case ":stats":
		st := ctx.VM().Engine().Stats()
		fmt.Printf("groups   %d live (%d created)\n", st.LiveGroups(), st.GroupsCreated)
		fmt.Printf("contexts %d live (%d created)\n", st.LiveContexts(), st.ContextsCreated)
		fmt.Printf("strings  %d live (%d created)\n", st.LiveStrings(), st.StringsCreated)
		fmt.Printf("protected values %d\n", ctx.ProtectedCount())
	case ":reset":
		vm := ctx.VM()
		ctx.Close()
		ctx = jsc.NewContext(vm)
		fmt.Println("Context reset")
	default:
		fmt.Printf("Unknown command: %s (type :help for commands)\n", cmd)
	}
	return ctx
}
