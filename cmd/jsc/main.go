// jsc CLI - evaluate JavaScript, check syntax, or host the jscore server
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/jscore/jsc"
	"github.com/chazu/jscore/manifest"
	"github.com/chazu/jscore/server"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbosity := flag.Int("v", -1, "Log verbosity (0 quiet .. 4 debug); -1 uses jscore.toml")
	expr := flag.String("e", "", "Evaluate an expression and print the result")
	checkOnly := flag.Bool("check", false, "Check syntax only, do not run")
	interactive := flag.Bool("i", false, "Start interactive REPL after running files")
	label := flag.String("label", "", "Source label URI for -e and the REPL")
	serveMode := flag.Bool("serve", false, "Start the jscore RPC server (Connect, CBOR and JSON)")
	servePort := flag.Int("port", 0, "Server port (used with -serve); 0 uses jscore.toml")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")
	remote := flag.String("remote", "", "Evaluate on a running server at this URL instead of locally")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: jsc [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs JavaScript files in one shared context. Settings are read from the\n")
		fmt.Fprintf(os.Stderr, "nearest %s, if any.\n\n", manifest.FileName)
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  jsc                        # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  jsc -e '[1,2,3].length'    # Print 3\n")
		fmt.Fprintf(os.Stderr, "  jsc lib.js main.js         # Run files in order\n")
		fmt.Fprintf(os.Stderr, "  jsc -check src/*.js        # Report syntax errors\n")
		fmt.Fprintf(os.Stderr, "\nServers:\n")
		fmt.Fprintf(os.Stderr, "  jsc -serve -port 8080                        # RPC server on :8080\n")
		fmt.Fprintf(os.Stderr, "  jsc -remote http://localhost:8080 -e '1+1'   # Evaluate remotely\n")
		fmt.Fprintf(os.Stderr, "  jsc -lsp                                     # Language server on stdio\n")
	}
	flag.Parse()

	m, err := loadManifest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	configureLogging(m, *verbosity)

	defaultLabel, err := resolveLabel(m, *label)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *remote != "" {
		os.Exit(runRemote(*remote, *expr, flag.Args(), defaultLabel, *checkOnly))
	}

	if *lspMode {
		lsp, err := server.NewLSP(jsc.NewVM())
		if err != nil {
			fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
			os.Exit(1)
		}
		if err := lsp.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	preload, err := loadScripts(m.PreloadPaths())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *serveMode {
		if *servePort != 0 {
			m.Server.Port = *servePort
		}
		os.Exit(runServer(m, defaultLabel, preload))
	}

	os.Exit(runLocal(localOptions{
		expr:        *expr,
		files:       flag.Args(),
		label:       defaultLabel,
		line:        m.Engine.StartingLine,
		preload:     preload,
		checkOnly:   *checkOnly,
		interactive: *interactive,
	}))
}

// loadManifest finds jscore.toml from the working directory up, falling
// back to defaults.
func loadManifest() (*manifest.Manifest, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

func configureLogging(m *manifest.Manifest, verbosity int) {
	if verbosity < 0 {
		verbosity = m.Log.Verbosity
	}
	var path *string
	if m.Log.File != "" {
		path = &m.Log.File
	}
	commonlog.Configure(verbosity, path)
}

func resolveLabel(m *manifest.Manifest, flagLabel string) (*url.URL, error) {
	if flagLabel == "" {
		return m.Label()
	}
	u, err := url.Parse(flagLabel)
	if err != nil {
		return nil, fmt.Errorf("-label: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("-label %q is not an absolute URI", flagLabel)
	}
	return u, nil
}

// fileLabel names a script file by its absolute file: URI.
func fileLabel(path string) *url.URL {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
}

// loadScripts reads script files for preloading.
func loadScripts(paths []string) ([]server.Script, error) {
	var scripts []server.Script
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("preload: %w", err)
		}
		if strings.ContainsRune(string(data), 0) {
			return nil, fmt.Errorf("preload %s: file contains a NUL character", path)
		}
		scripts = append(scripts, server.Script{Label: fileLabel(path), Source: string(data)})
	}
	return scripts, nil
}

func runServer(m *manifest.Manifest, label *url.URL, preload []server.Script) int {
	srv, err := server.New(jsc.NewVM(),
		server.WithLabel(label),
		server.WithStartingLine(m.Engine.StartingLine),
		server.WithHandleTTL(m.Server.HandleTTL, m.Server.SweepInterval),
		server.WithPreload(preload...),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	defer srv.Stop()

	if err := srv.ListenAndServe(m.Addr()); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

// runRemote sends an expression or files to a running server.
func runRemote(baseURL, expr string, files []string, label *url.URL, checkOnly bool) int {
	client := server.NewClient(nil, baseURL)
	ctx := context.Background()

	type job struct {
		source string
		label  string
		print  bool
	}
	var jobs []job
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		jobs = append(jobs, job{source: string(data), label: fileLabel(path).String()})
	}
	if expr != "" {
		jobs = append(jobs, job{source: expr, label: label.String(), print: true})
	}
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -remote needs -e or files")
		return 2
	}

	for _, j := range jobs {
		if checkOnly {
			resp, err := client.CheckSyntax(ctx, &server.CheckSyntaxRequest{Source: j.source, Label: j.label})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return 1
			}
			if !resp.Valid {
				for _, d := range resp.Diagnostics {
					fmt.Fprintf(os.Stderr, "%s:%d:%d: %s\n", j.label, d.Line, d.Column, d.Message)
				}
				return 1
			}
			continue
		}

		resp, err := client.Evaluate(ctx, &server.EvaluateRequest{Source: j.source, Label: j.label})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if !resp.Success {
			fmt.Fprintf(os.Stderr, "Uncaught %s\n", resp.Error)
			return 1
		}
		if resp.Handle != nil {
			_ = client.ReleaseHandle(ctx, resp.Handle.ID)
		}
		if j.print {
			fmt.Println(resp.Result)
		}
	}
	return 0
}
