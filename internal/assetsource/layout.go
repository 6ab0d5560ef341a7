package assetsource

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Aciz/Pack3r/internal/diagnostics"
)

// Layout describes the etmain-relative placement of a .map file, validated
// per §3's Map invariants: the map's parent directory must be
// "…/etmain/maps" or "…/etmain/<x>.pk3dir/maps".
type Layout struct {
	MapPath string // absolute path to the .map file
	MapName string // filename stem
	EtMain  string // the etmain directory
	MapRoot string // one level up from maps/: etmain itself, or a .pk3dir
}

// ResolveLayout validates mapPath against the required directory shape and
// returns its Layout, or an Environment diagnostics.Error.
func ResolveLayout(mapPath string) (*Layout, error) {
	abs, err := filepath.Abs(mapPath)
	if err != nil {
		return nil, diagnostics.Wrap(diagnostics.IO, err, "resolve map path %s", mapPath)
	}

	mapsDir := filepath.Dir(abs)
	if !strings.EqualFold(filepath.Base(mapsDir), "maps") {
		return nil, diagnostics.New(diagnostics.Environment,
			"%s is not inside a maps/ directory", abs)
	}

	mapRoot := filepath.Dir(mapsDir)
	base := filepath.Base(mapRoot)

	var etMain string
	switch {
	case strings.EqualFold(base, "etmain"):
		etMain = mapRoot
	case strings.HasSuffix(strings.ToLower(base), ".pk3dir"):
		parent := filepath.Dir(mapRoot)
		if !strings.EqualFold(filepath.Base(parent), "etmain") {
			return nil, diagnostics.New(diagnostics.Environment,
				"%s: .pk3dir map root must sit directly under etmain/, found under %s", abs, parent)
		}
		etMain = parent
	default:
		return nil, diagnostics.New(diagnostics.Environment,
			"%s: maps/ parent must be etmain or an etmain/*.pk3dir, found %s", abs, mapRoot)
	}

	name := filepath.Base(abs)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &Layout{MapPath: abs, MapName: name, EtMain: etMain, MapRoot: mapRoot}, nil
}

// Options configures source enumeration per the §6 Option surface.
type Options struct {
	UseShaderlist  bool
	LoadPk3s       bool
	ExcludeSources []string // glob patterns matched against source basenames
	IgnoreSources  []string
}

// Sources holds the fully ordered, opened asset-source list for a map.
type Sources struct {
	All         []Source // full precedence-ordered list, pak0 pseudo-source first when present
	Directories []Source // the directory-kind subset, in the same relative order
	archives    []*ArchiveSource
}

// Close releases every archive handle opened while enumerating sources.
func (s *Sources) Close() error {
	var firstErr error
	for _, a := range s.archives {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Enumerate builds the ordered asset-source list for layout per §4.B:
//  1. the pak0 pseudo-source at the absolute front, when etmain/pak0.pk3 exists
//  2. map_root, then etmain (if distinct), then every *.pk3dir directly
//     under etmain sorted by name descending, case-insensitively
//  3. every other *.pk3 found directly under those directories, sorted by
//     filename descending
//
// A source is dropped entirely when its basename matches opts.IgnoreSources,
// or marked Excluded when it matches opts.ExcludeSources.
func Enumerate(layout *Layout, opts Options) (*Sources, error) {
	sources := &Sources{}
	precedence := 0

	matchAny := func(patterns []string, name string) bool {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, name); ok {
				return true
			}
		}
		return false
	}

	// (i) pak0 pseudo-source.
	pak0Path := filepath.Join(layout.EtMain, "pak0.pk3")
	if _, err := os.Stat(pak0Path); err == nil {
		src, aerr := NewArchiveSource(pak0Path, precedence, true)
		if aerr != nil {
			return nil, diagnostics.Wrap(diagnostics.IO, aerr, "open %s", pak0Path)
		}
		sources.All = append(sources.All, src)
		sources.archives = append(sources.archives, src)
		precedence++
	}

	// (ii) directory roots.
	var dirRoots []string
	dirRoots = append(dirRoots, layout.MapRoot)
	if !strings.EqualFold(layout.MapRoot, layout.EtMain) {
		dirRoots = append(dirRoots, layout.EtMain)
	}

	entries, _ := os.ReadDir(layout.EtMain)
	var pk3dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".pk3dir") {
			full := filepath.Join(layout.EtMain, e.Name())
			if strings.EqualFold(full, layout.MapRoot) {
				continue // already placed first
			}
			pk3dirs = append(pk3dirs, full)
		}
	}
	sort.Slice(pk3dirs, func(i, j int) bool {
		return strings.ToLower(filepath.Base(pk3dirs[i])) > strings.ToLower(filepath.Base(pk3dirs[j]))
	})
	dirRoots = append(dirRoots, pk3dirs...)

	for _, root := range dirRoots {
		name := filepath.Base(root)
		if matchAny(opts.IgnoreSources, name) {
			continue
		}
		excluded := matchAny(opts.ExcludeSources, name)
		src := NewDirectorySource(root, precedence, excluded)
		sources.All = append(sources.All, src)
		sources.Directories = append(sources.Directories, src)
		precedence++
	}

	// (iii) remaining pk3 archives, only when requested or when exclusion
	// rules are configured (§4.B: "if archive loading is enabled or
	// exclusions are configured, every *.pk3 is considered").
	if opts.LoadPk3s || len(opts.ExcludeSources) > 0 || len(opts.IgnoreSources) > 0 {
		var found []string
		for _, root := range dirRoots {
			entries, err := os.ReadDir(root)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				lower := strings.ToLower(e.Name())
				if !strings.HasSuffix(lower, ".pk3") || lower == "pak0.pk3" {
					continue
				}
				found = append(found, filepath.Join(root, e.Name()))
			}
		}
		sort.Slice(found, func(i, j int) bool {
			return strings.ToLower(filepath.Base(found[i])) > strings.ToLower(filepath.Base(found[j]))
		})
		for _, path := range found {
			name := filepath.Base(path)
			if matchAny(opts.IgnoreSources, name) {
				continue
			}
			excluded := matchAny(opts.ExcludeSources, name)
			src, err := NewArchiveSource(path, precedence, excluded)
			if err != nil {
				return nil, diagnostics.Wrap(diagnostics.IO, err, "open %s", path)
			}
			sources.All = append(sources.All, src)
			sources.archives = append(sources.archives, src)
			precedence++
		}
	}

	return sources, nil
}
