// Package manifest handles jsbc.toml project configuration.
package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/jsbc/compiler"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "jsbc.toml"

// Manifest represents a jsbc.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Source  Source       `toml:"source"`
	Compile CompileFlags `toml:"compile"`
	Output  Output       `toml:"output"`
	Cache   Cache        `toml:"cache"`
	Server  Server       `toml:"server"`

	// Dir is the directory containing the jsbc.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures where ESTree JSON inputs live.
type Source struct {
	Dirs []string `toml:"dirs"`
}

// CompileFlags sets compiler options for every unit of the project.
type CompileFlags struct {
	CompileAndGo bool `toml:"compile-and-go"`
	NoScriptRval bool `toml:"no-script-rval"`
	Strict       bool `toml:"strict"`
	MaxDepth     int  `toml:"max-depth"`
	FirstLine    int  `toml:"first-line"`
}

// Output configures where compiled scripts are written.
type Output struct {
	Dir    string `toml:"dir"`
	Format string `toml:"format"`
}

// Cache configures the persistent script cache.
type Cache struct {
	Path    string `toml:"path"`
	Enabled bool   `toml:"enabled"`
}

// Server configures the compile service.
type Server struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no jsbc.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"."}
	}
	if m.Output.Format == "" {
		m.Output.Format = "cbor"
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".jsbc", "cache.db")
	}
	if m.Server.Addr == "" {
		m.Server.Addr = "localhost:8457"
	}
}

func (m *Manifest) validate() error {
	switch m.Output.Format {
	case "cbor", "disasm":
	default:
		return fmt.Errorf("output format %q: want cbor or disasm", m.Output.Format)
	}
	if m.Compile.MaxDepth < 0 {
		return fmt.Errorf("compile max-depth %d is negative", m.Compile.MaxDepth)
	}
	if m.Compile.FirstLine < 0 {
		return fmt.Errorf("compile first-line %d is negative", m.Compile.FirstLine)
	}
	return nil
}

// Load parses a jsbc.toml file from the given directory.
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
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a jsbc.toml file,
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

// Options returns the compiler options for the named unit.
func (m *Manifest) Options(filename string) compiler.Options {
	return compiler.Options{
		Filename:     filename,
		FirstLine:    m.Compile.FirstLine,
		CompileAndGo: m.Compile.CompileAndGo,
		NoScriptRval: m.Compile.NoScriptRval,
		Strict:       m.Compile.Strict,
		MaxDepth:     m.Compile.MaxDepth,
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// SourceFiles returns every .json file under the source directories,
// sorted. Hidden directories are skipped.
func (m *Manifest) SourceFiles() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, root := range m.SourceDirPaths() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) == ".json" && !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// OutputPath returns where the compiled form of source is written: the
// source path with a .jsbc extension, under Output.Dir when set.
func (m *Manifest) OutputPath(source string) string {
	base := strings.TrimSuffix(source, filepath.Ext(source)) + ".jsbc"
	if m.Output.Dir == "" {
		return base
	}
	return filepath.Join(m.resolve(m.Output.Dir), filepath.Base(base))
}

// CachePath returns the absolute path of the cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
