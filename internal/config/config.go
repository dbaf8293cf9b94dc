// Package config loads and writes the project settings file, arbor.hcl.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/gobwas/glob"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// FileName is the settings file name searched for by Load.
const FileName = "arbor.hcl"

// Settings is the decoded form of arbor.hcl. Zero values mean "use the
// default" and are filled by Load.
type Settings struct {
	// Evaluator selects the constant expression evaluator: "hcl" or "risor".
	Evaluator string `hcl:"evaluator,optional"`
	// ScriptsDir holds prelude.risor for the risor evaluator.
	ScriptsDir     string `hcl:"scripts_dir,optional"`
	DefaultNetType string `hcl:"default_nettype,optional"`
	// Parallel is the number of tops elaborated at once; 0 means one per CPU.
	Parallel  int `hcl:"parallel,optional"`
	MaxDepth  int `hcl:"max_depth,optional"`
	LoopLimit int `hcl:"max_generate_iterations,optional"`
	// ArrayOrder is "ascending" or "declared".
	ArrayOrder string   `hcl:"array_order,optional"`
	Tops       []string `hcl:"tops,optional"`
	Configs    []string `hcl:"configs,optional"`
	// Files are glob patterns, relative to the settings file, naming the
	// design files to load. "**" matches any number of directories.
	Files    []string `hcl:"files,optional"`
	Database string   `hcl:"database,optional"`

	// Path is the file the settings were read from, empty for defaults.
	Path string
}

// DefaultSettings returns the settings used when no arbor.hcl exists.
func DefaultSettings() *Settings {
	return &Settings{
		Evaluator:      "hcl",
		DefaultNetType: "wire",
		Parallel:       0,
		MaxDepth:       256,
		LoopLimit:      1 << 16,
		ArrayOrder:     "ascending",
		Files:          []string{"**/*.json", "**/*.yaml", "**/*.yml"},
		Database:       "arbor.db",
	}
}

// Load finds and loads the settings file.
// Search order:
//  1. <dir>/arbor.hcl
//  2. <dir>/.arbor.hcl
//  3. $XDG_CONFIG_HOME/arbor/arbor.hcl (os.UserConfigDir)
//
// Returns DefaultSettings if no file is found.
func Load(dir string) (*Settings, error) {
	searchPaths := []string{
		filepath.Join(dir, FileName),
		filepath.Join(dir, "."+FileName),
	}
	if cfgDir, err := os.UserConfigDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(cfgDir, "arbor", FileName))
	}
	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return DefaultSettings(), nil
}

// LoadFile loads settings from a specific file.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("arbor: read settings: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes settings text; filename is used in error messages and as
// the base for relative file patterns.
func Parse(data []byte, filename string) (*Settings, error) {
	f, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("arbor: parse settings %s: %w", filename, diags)
	}
	var s Settings
	if diags := gohcl.DecodeBody(f.Body, nil, &s); diags.HasErrors() {
		return nil, fmt.Errorf("arbor: decode settings %s: %w", filename, diags)
	}
	s.Path = filename
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("arbor: settings %s: %w", filename, err)
	}
	return &s, nil
}

func (s *Settings) applyDefaults() {
	d := DefaultSettings()
	if s.Evaluator == "" {
		s.Evaluator = d.Evaluator
	}
	if s.DefaultNetType == "" {
		s.DefaultNetType = d.DefaultNetType
	}
	if s.MaxDepth == 0 {
		s.MaxDepth = d.MaxDepth
	}
	if s.LoopLimit == 0 {
		s.LoopLimit = d.LoopLimit
	}
	if s.ArrayOrder == "" {
		s.ArrayOrder = d.ArrayOrder
	}
	if len(s.Files) == 0 {
		s.Files = d.Files
	}
	if s.Database == "" {
		s.Database = d.Database
	}
}

// Validate checks enumerated and bounded fields.
func (s *Settings) Validate() error {
	var errs []error
	if s.Evaluator != "hcl" && s.Evaluator != "risor" {
		errs = append(errs, fmt.Errorf("evaluator must be \"hcl\" or \"risor\", got %q", s.Evaluator))
	}
	if s.ArrayOrder != "ascending" && s.ArrayOrder != "declared" {
		errs = append(errs, fmt.Errorf("array_order must be \"ascending\" or \"declared\", got %q", s.ArrayOrder))
	}
	if s.Parallel < 0 {
		errs = append(errs, fmt.Errorf("parallel must not be negative, got %d", s.Parallel))
	}
	if s.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("max_depth must be positive, got %d", s.MaxDepth))
	}
	if s.LoopLimit < 1 {
		errs = append(errs, fmt.Errorf("max_generate_iterations must be positive, got %d", s.LoopLimit))
	}
	return errors.Join(errs...)
}

// Save writes s to path as HCL.
func (s *Settings) Save(path string) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	gohcl.EncodeIntoBody(s, body)
	// Unset lists would be written as null.
	if len(s.Tops) == 0 {
		body.RemoveAttribute("tops")
	}
	if len(s.Configs) == 0 {
		body.RemoveAttribute("configs")
	}
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		return fmt.Errorf("arbor: write settings: %w", err)
	}
	return nil
}

// Root is the directory relative patterns and paths are resolved against.
func (s *Settings) Root() string {
	if s.Path == "" {
		return "."
	}
	return filepath.Dir(s.Path)
}

// DatabasePath returns the database path resolved against Root.
func (s *Settings) DatabasePath() string {
	if s.Database == "" || filepath.IsAbs(s.Database) {
		return s.Database
	}
	return filepath.Join(s.Root(), s.Database)
}

// DesignFiles expands the Files patterns under Root. Results are sorted and
// free of duplicates; hidden directories are skipped.
func (s *Settings) DesignFiles() ([]string, error) {
	root := s.Root()
	var patterns []glob.Glob
	for _, p := range s.Files {
		g, err := glob.Compile(filepath.ToSlash(p), '/')
		if err != nil {
			return nil, fmt.Errorf("arbor: file pattern %q: %w", p, err)
		}
		patterns = append(patterns, g)
	}

	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && len(d.Name()) > 1 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == FileName || rel == "."+FileName {
			return nil
		}
		for _, g := range patterns {
			// "**/x" should also match x at the root.
			if g.Match(rel) || g.Match("/"+rel) {
				out = append(out, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("arbor: expand design files: %w", err)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
