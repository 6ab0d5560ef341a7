// Package pipeline implements component-level orchestration: the single
// entry point a driver calls to turn a .map path into a packaged .pk3,
// wiring components A-M together per §6. The watch driver (N) and the
// project config loader (O) sit outside Run: one calls it, the other feeds
// its Options.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aciz/Pack3r/internal/assetsource"
	"github.com/Aciz/Pack3r/internal/auxparser"
	"github.com/Aciz/Pack3r/internal/builtin"
	"github.com/Aciz/Pack3r/internal/cache"
	"github.com/Aciz/Pack3r/internal/diagnostics"
	"github.com/Aciz/Pack3r/internal/digest"
	"github.com/Aciz/Pack3r/internal/ledger"
	"github.com/Aciz/Pack3r/internal/mapmodel"
	"github.com/Aciz/Pack3r/internal/mapparser"
	"github.com/Aciz/Pack3r/internal/packager"
	"github.com/Aciz/Pack3r/internal/provenance"
	"github.com/Aciz/Pack3r/internal/resolver"
	"github.com/Aciz/Pack3r/internal/resourcename"
	"github.com/Aciz/Pack3r/internal/shaderparser"
)

// Options is the Go type for the §6 Option surface.
type Options struct {
	MapPath          string
	Output           string
	Overwrite        bool
	DryRun           bool
	IncludeSource    bool
	UseShaderlist    bool
	LoadPk3s         bool
	RequireAllAssets bool
	Suggest          bool
	ExcludeSources   []string
	IgnoreSources    []string

	CacheDir string // empty disables the built-in content cache

	Logger diagnostics.Logger // nil defaults to diagnostics.Nop

	Ledger        ledger.BuildLedger // nil defaults to ledger.NoopLedger
	ProvenanceKey []byte             // empty disables provenance signing
}

// Result carries the written archive path, the sorted list of
// archive-relative entries actually written, the archive's combined
// content digest, the drained diagnostics, and (when Options.ProvenanceKey
// was set) a signed provenance token attesting to this run.
type Result struct {
	ArchivePath     string
	Entries         []string
	Digest          digest.Digest
	Diagnostics     []diagnostics.Diagnostic
	ProvenanceToken string
}

// Run is the module's single entry point: resolve layout and asset
// sources, parse the map and its auxiliary references, build the shader
// index, resolve the transitive asset closure against it and the built-in
// content index, and package the result.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = diagnostics.Nop{}
	}

	layout, err := assetsource.ResolveLayout(opts.MapPath)
	if err != nil {
		return nil, err
	}

	sources, err := assetsource.Enumerate(layout, assetsource.Options{
		UseShaderlist:  opts.UseShaderlist,
		LoadPk3s:       opts.LoadPk3s,
		ExcludeSources: opts.ExcludeSources,
		IgnoreSources:  opts.IgnoreSources,
	})
	if err != nil {
		return nil, err
	}
	m := mapmodel.New(layout, sources)
	defer m.Close()
	diags := diagnostics.NewCollector()

	if err := parseMap(ctx, m, opts); err != nil {
		return nil, err
	}
	if err := parseAuxiliary(ctx, m); err != nil {
		return nil, err
	}

	var (
		shaderIdx  *shaderparser.Index
		builtinIdx *builtin.Index
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		idx, err := shaderparser.BuildIndex(gctx, m.ActiveSources(), shaderparser.Options{
			IncludeSource: opts.IncludeSource,
			UseShaderlist: opts.UseShaderlist,
		}, diags)
		if err != nil {
			return err
		}
		shaderIdx = idx
		return nil
	})
	g.Go(func() error {
		idx, err := builtinContentIndex(gctx, layout.EtMain, opts.CacheDir, diags)
		if err != nil {
			return err
		}
		builtinIdx = idx
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	closure := resolver.Resolve(shaderIdx, builtinIdx, m.Shaders)
	for _, sh := range closure.Shaders {
		if sh.HasLightStyles {
			m.HasStyleLights = true
		}
	}

	outputPath, err := packager.ResolveOutputPath(opts.Output, m.Name)
	if err != nil {
		return nil, err
	}

	res, err := packager.Package(ctx, m, builtinIdx, closure, packager.Options{
		Overwrite:        opts.Overwrite,
		DryRun:           opts.DryRun,
		IncludeSource:    opts.IncludeSource,
		RequireAllAssets: opts.RequireAllAssets,
		Suggest:          opts.Suggest,
	}, outputPath, diags)
	if err != nil {
		return nil, err
	}

	if info, statErr := os.Stat(res.ArchivePath); statErr == nil {
		logger.Infof("packaged %s: %d entries, %s, %d diagnostics", m.Name, len(res.Entries), diagnostics.HumanBytes(info.Size()), diags.Len())
	}

	builtAt := time.Now()
	recordBuild(ctx, opts.Ledger, m.Name, res, diags, builtAt, logger)

	var token string
	if len(opts.ProvenanceKey) > 0 {
		signed, err := provenance.Sign(provenance.Manifest{
			MapName:     m.Name,
			ArchivePath: res.ArchivePath,
			Digest:      res.Digest.String(),
			FileCount:   len(res.Entries),
			BuiltAt:     builtAt,
		}, opts.ProvenanceKey)
		if err != nil {
			logger.Warnf("sign provenance token for %s: %v", m.Name, err)
		} else {
			token = signed
		}
	}

	return &Result{
		ArchivePath:     res.ArchivePath,
		Entries:         res.Entries,
		Digest:          res.Digest,
		Diagnostics:     diags.Entries(),
		ProvenanceToken: token,
	}, nil
}

// recordBuild writes a BuildRecord for this run to opts.Ledger (component
// J), defaulting to a no-op when none is configured. A record failure is
// logged, not fatal: the archive is already written by this point.
func recordBuild(ctx context.Context, l ledger.BuildLedger, mapName string, res *packager.Result, diags *diagnostics.Diagnostics, builtAt time.Time, logger diagnostics.Logger) {
	if l == nil {
		l = ledger.NoopLedger{}
	}

	outcome := "ok"
	dupCount := 0
	for _, d := range diags.Entries() {
		if d.Kind == diagnostics.MissingAsset {
			outcome = "missing-assets"
		}
		if strings.HasPrefix(d.Message, "duplicate shader ") {
			dupCount++
		}
	}

	rec := ledger.BuildRecord{
		MapName:        mapName,
		ArchivePath:    res.ArchivePath,
		Digest:         res.Digest.String(),
		FileCount:      len(res.Entries),
		DuplicateCount: dupCount,
		BuiltAt:        builtAt,
		Outcome:        outcome,
	}
	if err := l.RecordBuild(ctx, rec); err != nil {
		logger.Warnf("record build for %s: %v", mapName, err)
	}
}

func parseMap(ctx context.Context, m *mapmodel.Map, opts Options) error {
	f, err := os.Open(m.Path)
	if err != nil {
		return diagnostics.Wrap(diagnostics.IO, err, "open %s", m.Path)
	}
	defer f.Close()

	result, err := mapparser.Parse(ctx, m.Path, f, mapparser.Options{IncludeSource: opts.IncludeSource})
	if err != nil {
		return err
	}

	m.Shaders = m.Shaders.Union(result.Shaders)
	m.Resources = m.Resources.Union(result.Resources)
	if opts.IncludeSource {
		m.Resources = m.Resources.Union(result.MiscModels)
	}
	m.HasStyleLights = m.HasStyleLights || result.HasStyleLights
	return nil
}

// parseAuxiliary runs every auxparser.Parser concurrently: each reads a
// file whose presence is independent of the others, so a missing
// mapscript never blocks the soundscript from being read.
func parseAuxiliary(ctx context.Context, m *mapmodel.Map) error {
	parsers := auxparser.Default()
	results := make([][]auxparser.Resource, len(parsers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parsers {
		i, p := i, p
		g.Go(func() error {
			path := p.GetPath(m)
			if path == "" {
				return nil
			}
			refs, err := p.Parse(gctx, path)
			if err != nil {
				if auxparser.IsNotExist(err) {
					return nil
				}
				return fmt.Errorf("%s: %w", p.Description(), err)
			}
			results[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, refs := range results {
		for _, r := range refs {
			name := resourcename.New(r.Value)
			if r.IsShader {
				m.Shaders.Add(name)
			} else {
				m.Resources.Add(name)
			}
		}
	}
	return nil
}

// builtinContentIndex loads the built-in content index from cache when
// possible, rebuilding and repopulating the cache on a miss (§4.K).
func builtinContentIndex(ctx context.Context, etMain, cacheDir string, diags *diagnostics.Diagnostics) (*builtin.Index, error) {
	archives := builtin.DiscoverArchives(etMain)
	if len(archives) == 0 {
		return builtin.NewIndex(), nil
	}

	if cacheDir == "" {
		return builtin.BuildIndex(ctx, archives, diags)
	}

	store, err := cache.NewStore(cacheDir)
	if err != nil {
		return nil, err
	}
	key, err := cache.NewKey(archives)
	if err != nil {
		return nil, err
	}

	if idx, ok, err := store.Load(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return idx, nil
	}

	idx, err := builtin.BuildIndex(ctx, archives, diags)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, key, idx); err != nil {
		diags.Warnf(diagnostics.IO, cacheDir, "save built-in content cache: %v", err)
	}
	return idx, nil
}
