// Package manifest handles jscore.toml configuration.
package manifest

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "jscore.toml"

// Manifest represents a jscore.toml configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Engine  Engine  `toml:"engine"`
	Server  Server  `toml:"server"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the jscore.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Engine configures script evaluation defaults.
type Engine struct {
	// SourceLabel is the URI attached to evaluated source when the caller
	// does not supply one.
	SourceLabel  string   `toml:"source-label"`
	StartingLine int      `toml:"starting-line"`
	Preload      []string `toml:"preload"`
}

// Server configures the RPC server and its handle store.
type Server struct {
	Port          int           `toml:"port"`
	HandleTTL     time.Duration `toml:"handle-ttl"`
	SweepInterval time.Duration `toml:"sweep-interval"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns a manifest with every default applied and no project.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Engine.SourceLabel == "" {
		m.Engine.SourceLabel = "jscore:eval"
	}
	if m.Engine.StartingLine < 1 {
		m.Engine.StartingLine = 1
	}
	if m.Server.Port == 0 {
		m.Server.Port = 4567
	}
	if m.Server.HandleTTL == 0 {
		m.Server.HandleTTL = 30 * time.Minute
	}
	if m.Server.SweepInterval == 0 {
		m.Server.SweepInterval = 5 * time.Minute
	}
}

// Load parses a jscore.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if _, err := m.Label(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a jscore.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Label returns the default source label as an absolute URI.
func (m *Manifest) Label() (*url.URL, error) {
	u, err := url.Parse(m.Engine.SourceLabel)
	if err != nil {
		return nil, fmt.Errorf("source-label: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("source-label %q is not an absolute URI", m.Engine.SourceLabel)
	}
	return u, nil
}

// PreloadPaths returns absolute paths of the scripts run in every new session.
func (m *Manifest) PreloadPaths() []string {
	var paths []string
	for _, p := range m.Engine.Preload {
		if filepath.IsAbs(p) {
			paths = append(paths, p)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, p))
	}
	return paths
}

// Addr returns the listen address for the RPC server.
func (m *Manifest) Addr() string {
	return fmt.Sprintf(":%d", m.Server.Port)
}
