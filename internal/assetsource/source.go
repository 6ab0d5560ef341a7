// Package assetsource enumerates and orders the asset roots a map can
// pull resources from — the map's own directory, etmain, *.pk3dir
// directories, and nested *.pk3 archives — per the fixed precedence of
// §4.B, with per-source exclusion/ignore handling.
package assetsource

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Source is one asset root: a filesystem directory, or a pk3 archive.
type Source interface {
	// Name identifies the source for diagnostics (a directory path or
	// archive path).
	Name() string
	// RootPath returns the filesystem root a relative asset path resolves
	// against (the directory itself, or the archive's containing
	// directory for archive sources — archive sources resolve entries
	// from inside the zip, not the filesystem, via Open).
	RootPath() string
	// Precedence is this source's index in the final ordered list; lower
	// wins on conflict.
	Precedence() int
	// Excluded reports whether the source is kept in the source list but
	// never contributes content to the output. An excluded source's own
	// files and shaders are not indexed, so they are not subtracted from
	// what other sources contribute; base-game archives are subtracted
	// separately, by package builtin.
	Excluded() bool
	// Exists reports whether relPath is present in this source.
	Exists(relPath string) bool
	// Open opens relPath for reading. The caller must Close it.
	Open(relPath string) (io.ReadCloser, error)
	// EnumerateShaderFiles lists every "scripts/*.shader" entry this
	// source contains, relative paths using forward slashes.
	EnumerateShaderFiles() ([]string, error)
	// ShaderList returns the configured scripts/shaderlist.txt contents
	// (lowercased file stems) and whether one was found.
	ShaderList() (map[string]bool, bool)
}

// DirectorySource is a filesystem-directory asset root.
type DirectorySource struct {
	root       string
	precedence int
	excluded   bool
}

// NewDirectorySource constructs a DirectorySource rooted at root.
func NewDirectorySource(root string, precedence int, excluded bool) *DirectorySource {
	return &DirectorySource{root: root, precedence: precedence, excluded: excluded}
}

func (d *DirectorySource) Name() string     { return d.root }
func (d *DirectorySource) RootPath() string { return d.root }
func (d *DirectorySource) Precedence() int  { return d.precedence }
func (d *DirectorySource) Excluded() bool   { return d.excluded }

func (d *DirectorySource) Exists(relPath string) bool {
	_, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(relPath)))
	return err == nil
}

func (d *DirectorySource) Open(relPath string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(d.root, filepath.FromSlash(relPath)))
}

func (d *DirectorySource) EnumerateShaderFiles() ([]string, error) {
	return globRelative(os.DirFS(d.root), "scripts/*.shader")
}

func (d *DirectorySource) ShaderList() (map[string]bool, bool) {
	return readShaderList(func() (io.ReadCloser, error) { return d.Open("scripts/shaderlist.txt") })
}

// ArchiveSource is a .pk3 (zip) asset root. excluded=true means it stays
// in the source list but contributes no content.
type ArchiveSource struct {
	path       string
	precedence int
	excluded   bool
	reader     *zip.ReadCloser
	byName     map[string]*zip.File
}

// NewArchiveSource opens path as a pk3 archive source.
func NewArchiveSource(path string, precedence int, excluded bool) (*ArchiveSource, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open pk3 %s: %w", path, err)
	}
	byName := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		byName[strings.ToLower(strings.ReplaceAll(f.Name, "\\", "/"))] = f
	}
	return &ArchiveSource{path: path, precedence: precedence, excluded: excluded, reader: r, byName: byName}, nil
}

func (a *ArchiveSource) Name() string     { return a.path }
func (a *ArchiveSource) RootPath() string { return filepath.Dir(a.path) }
func (a *ArchiveSource) Precedence() int  { return a.precedence }
func (a *ArchiveSource) Excluded() bool   { return a.excluded }

func (a *ArchiveSource) Exists(relPath string) bool {
	_, ok := a.byName[strings.ToLower(relPath)]
	return ok
}

func (a *ArchiveSource) Open(relPath string) (io.ReadCloser, error) {
	f, ok := a.byName[strings.ToLower(relPath)]
	if !ok {
		return nil, fmt.Errorf("%s: not found in %s", relPath, a.path)
	}
	return f.Open()
}

func (a *ArchiveSource) EnumerateShaderFiles() ([]string, error) {
	var out []string
	for name := range a.byName {
		if strings.HasPrefix(name, "scripts/") && strings.HasSuffix(name, ".shader") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Entries returns every non-directory entry name in the archive,
// normalized to forward slashes and lowercased, in no particular order.
func (a *ArchiveSource) Entries() []string {
	out := make([]string, 0, len(a.byName))
	for name := range a.byName {
		out = append(out, name)
	}
	return out
}

func (a *ArchiveSource) ShaderList() (map[string]bool, bool) {
	return readShaderList(func() (io.ReadCloser, error) { return a.Open("scripts/shaderlist.txt") })
}

// Close releases the underlying zip file handle.
func (a *ArchiveSource) Close() error {
	if a.reader == nil {
		return nil
	}
	return a.reader.Close()
}

func readShaderList(open func() (io.ReadCloser, error)) (map[string]bool, bool) {
	rc, err := open()
	if err != nil {
		return nil, false
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false
	}

	list := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		list[strings.ToLower(line)] = true
	}
	return list, true
}

// AllEntries lists every file path a source contains, relative to its
// root and using forward slashes. Used only for suggestion enrichment
// (component M); the resolution pipeline itself never needs a full file
// listing.
func AllEntries(src Source) ([]string, error) {
	switch s := src.(type) {
	case *DirectorySource:
		return globRelative(os.DirFS(s.root), "**/*")
	case *ArchiveSource:
		return s.Entries(), nil
	default:
		return nil, fmt.Errorf("AllEntries: unsupported source type %T", src)
	}
}

func globRelative(fsys fs.FS, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}
