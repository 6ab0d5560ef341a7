// Package builtin implements component G: indexing the base game's
// archives once to build the subtraction set of shaders and resources that
// the packager must never repack.
package builtin

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aciz/Pack3r/internal/assetsource"
	"github.com/Aciz/Pack3r/internal/diagnostics"
	"github.com/Aciz/Pack3r/internal/resourcename"
	"github.com/Aciz/Pack3r/internal/shaderparser"
)

// Index is the union of every base archive's shaders and resources: the
// §3 "Built-in content" data model.
type Index struct {
	Shaders   *resourcename.Set
	Resources *resourcename.Set

	// Archives lists the base archive paths actually indexed, for cache
	// keying and diagnostics.
	Archives []string
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{Shaders: resourcename.NewSet(), Resources: resourcename.NewSet()}
}

// DiscoverArchives locates the base archives per §6: etmain/pak0.pk3
// (required — its absence is the caller's problem, not this function's),
// etmain/sd-mapobjects.pk3 (optional), and the newest etjump-*.pk3 under
// a sibling etjump_stable/ directory (optional, "newest" by mtime since
// the filenames carry no defined version-ordering scheme).
func DiscoverArchives(etMain string) []string {
	var found []string

	pak0 := filepath.Join(etMain, "pak0.pk3")
	if _, err := os.Stat(pak0); err == nil {
		found = append(found, pak0)
	}

	mapobjects := filepath.Join(etMain, "sd-mapobjects.pk3")
	if _, err := os.Stat(mapobjects); err == nil {
		found = append(found, mapobjects)
	}

	stableDir := filepath.Join(filepath.Dir(etMain), "etjump_stable")
	entries, err := os.ReadDir(stableDir)
	if err == nil {
		var newest string
		var newestMod int64
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			lower := strings.ToLower(e.Name())
			if !strings.HasPrefix(lower, "etjump-") || !strings.HasSuffix(lower, ".pk3") {
				continue
			}
			info, ierr := e.Info()
			if ierr != nil {
				continue
			}
			if mt := info.ModTime().UnixNano(); mt > newestMod {
				newestMod = mt
				newest = filepath.Join(stableDir, e.Name())
			}
		}
		if newest != "" {
			found = append(found, newest)
		}
	}

	return found
}

// BuildIndex opens every archive path and indexes its contents
// concurrently (§5: "built-in content indexing runs concurrently").
func BuildIndex(ctx context.Context, archivePaths []string, diags *diagnostics.Diagnostics) (*Index, error) {
	idx := NewIndex()
	idx.Archives = append(idx.Archives, archivePaths...)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range archivePaths {
		p := p
		g.Go(func() error {
			return indexArchive(gctx, p, idx, &mu, diags)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return idx, nil
}

func indexArchive(ctx context.Context, archivePath string, idx *Index, mu *sync.Mutex, diags *diagnostics.Diagnostics) error {
	src, err := assetsource.NewArchiveSource(archivePath, 0, true)
	if err != nil {
		return diagnostics.Wrap(diagnostics.IO, err, "open base archive %s", archivePath)
	}
	defer src.Close()

	shaderFiles, err := src.EnumerateShaderFiles()
	if err != nil {
		return diagnostics.Wrap(diagnostics.IO, err, "enumerate shaders in %s", archivePath)
	}
	shaderFileSet := make(map[string]bool, len(shaderFiles))
	for _, f := range shaderFiles {
		shaderFileSet[f] = true
	}

	names := src.Entries()
	sort.Strings(names)

	for _, name := range names {
		select {
		case <-ctx.Done():
			return diagnostics.Wrap(diagnostics.Canceled, ctx.Err(), "indexing %s", archivePath)
		default:
		}

		if shaderFileSet[name] {
			rc, oerr := src.Open(name)
			if oerr != nil {
				diags.Warnf(diagnostics.IO, archivePath, "open %s: %v", name, oerr)
				continue
			}
			defs, perr := shaderparser.ParseFile(name, rc, shaderparser.Options{IncludeSource: false})
			rc.Close()
			if perr != nil {
				diags.Warnf(diagnostics.InvalidData, archivePath, "parse %s: %v", name, perr)
				continue
			}
			mu.Lock()
			for _, d := range defs {
				idx.Shaders.Add(resourcename.New(d.Name))
			}
			mu.Unlock()
			continue
		}

		mu.Lock()
		idx.Resources.Add(resourcename.New(name))
		mu.Unlock()
	}

	return nil
}
