// Package config implements component O: a narrow loader for a
// project-level options file that seeds the §6 Option surface for a whole
// map pool. It never reads os.Args or owns a CLI.
package config

import (
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"

	"github.com/Aciz/Pack3r/internal/diagnostics"
)

// Project mirrors the subset of the Option surface that makes sense to pin
// for an entire map pool rather than pass per-invocation.
type Project struct {
	UseShaderlist    bool     `toml:"use_shaderlist"`
	LoadPk3s         bool     `toml:"load_pk3s"`
	RequireAllAssets bool     `toml:"require_all_assets"`
	ExcludeSources   []string `toml:"exclude_sources"`
	IgnoreSources    []string `toml:"ignore_sources"`
}

// Load parses a TOML project file at path into a Project.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, diagnostics.Wrap(diagnostics.IO, err, "read project config %s", path)
	}

	var p Project
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, diagnostics.Wrap(diagnostics.InvalidData, err, "parse project config %s", path)
	}

	if err := p.validatePatterns(); err != nil {
		return nil, err
	}
	return &p, nil
}

// validatePatterns rejects malformed glob patterns early, before they are
// matched against source names deep inside asset enumeration.
func (p *Project) validatePatterns() error {
	for _, pat := range append(append([]string{}, p.ExcludeSources...), p.IgnoreSources...) {
		if !doublestar.ValidatePattern(pat) {
			return diagnostics.New(diagnostics.InvalidData, "invalid source pattern %q", pat)
		}
	}
	return nil
}
