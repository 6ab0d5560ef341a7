package shaderparser

import (
	"context"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aciz/Pack3r/internal/assetsource"
	"github.com/Aciz/Pack3r/internal/diagnostics"
	"github.com/Aciz/Pack3r/internal/resourcename"
)

// Shader is one resolved shader definition: a Def attached to the source
// and path it was read from, per the §3 "Shader" data model.
type Shader struct {
	Name            resourcename.Name
	Source          assetsource.Source
	Path            string
	Shaders         *resourcename.Set
	Resources       *resourcename.Set
	ImplicitMapping resourcename.Name
	HasLightStyles  bool
}

// Index is the concurrency-safe, precedence-resolved shader table built by
// BuildIndex. Lower Source.Precedence() wins on a name collision.
type Index struct {
	mu    sync.Mutex
	byKey map[string]*Shader
	diags *diagnostics.Diagnostics
}

// NewIndex returns an empty Index that records conflicts into diags.
func NewIndex(diags *diagnostics.Diagnostics) *Index {
	return &Index{byKey: make(map[string]*Shader), diags: diags}
}

// Get looks up a shader by name.
func (idx *Index) Get(name resourcename.Name) (*Shader, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	s, ok := idx.byKey[name.Key()]
	return s, ok
}

// Len reports the number of distinct shader names held.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.byKey)
}

// All returns every held shader, in no particular order.
func (idx *Index) All() []*Shader {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]*Shader, 0, len(idx.byKey))
	for _, s := range idx.byKey {
		out = append(out, s)
	}
	return out
}

// addOrUpdate applies precedence-based compare-and-merge: on conflict, the
// entry from the lower-numbered (higher-priority) source wins. Per §9, the
// loser is recorded in the duplicate diagnostic set whenever neither source
// is excluded — this fires for ordinary cross-source overrides, not only
// the defensive equal-precedence case §4.E calls out.
func (idx *Index) addOrUpdate(candidate *Shader) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := candidate.Name.Key()
	existing, ok := idx.byKey[key]
	if !ok {
		idx.byKey[key] = candidate
		return
	}

	winner, loser := existing, candidate
	if candidate.Source.Precedence() < existing.Source.Precedence() {
		winner, loser = candidate, existing
	}

	if !winner.Source.Excluded() && !loser.Source.Excluded() {
		idx.diags.Warnf(diagnostics.InvalidData, loser.Path,
			"duplicate shader %q also defined in %s (using %s)", loser.Name, loser.Source.Name(), winner.Source.Name())
	}

	idx.byKey[key] = winner
}

// BuildIndex parses every scripts/*.shader file across sources concurrently
// (§5: "parallel parse points") and merges the results into a single Index.
func BuildIndex(ctx context.Context, sources []assetsource.Source, opts Options, diags *diagnostics.Diagnostics) (*Index, error) {
	idx := NewIndex(diags)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		if src.Excluded() {
			continue
		}
		src := src
		g.Go(func() error {
			return parseSource(gctx, src, opts, idx)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return idx, nil
}

func parseSource(ctx context.Context, src assetsource.Source, opts Options, idx *Index) error {
	files, err := src.EnumerateShaderFiles()
	if err != nil {
		return diagnostics.Wrap(diagnostics.IO, err, "enumerate shaders in %s", src.Name())
	}

	var allowed map[string]bool
	var haveList bool
	if opts.UseShaderlist {
		allowed, haveList = src.ShaderList()
	}

	for _, file := range files {
		select {
		case <-ctx.Done():
			return diagnostics.Wrap(diagnostics.Canceled, ctx.Err(), "parsing %s", src.Name())
		default:
		}

		stem := strings.TrimSuffix(path.Base(file), path.Ext(file))
		if shouldSkipFile(stem) {
			continue
		}
		if haveList && !strings.EqualFold(stem, "levelshots") && !allowed[strings.ToLower(stem)] {
			continue
		}

		if err := parseOneFile(src, file, opts, idx); err != nil {
			return err
		}
	}
	return nil
}

func parseOneFile(src assetsource.Source, file string, opts Options, idx *Index) error {
	rc, err := src.Open(file)
	if err != nil {
		return diagnostics.Wrap(diagnostics.IO, err, "open %s in %s", file, src.Name())
	}
	defer rc.Close()

	defs, err := ParseFile(file, rc, opts)
	if err != nil {
		return err
	}

	for _, d := range defs {
		sh := &Shader{
			Name:      toName(d.Name),
			Source:    src,
			Path:      file,
			Shaders:   resourcename.NewSet(),
			Resources: resourcename.NewSet(),
		}
		for _, ref := range d.ShaderRefs {
			sh.Shaders.Add(toName(ref))
		}
		for _, ref := range d.ResourceRefs {
			sh.Resources.Add(toName(ref))
		}
		if d.ImplicitMapping != "" {
			sh.ImplicitMapping = toName(d.ImplicitMapping)
		}
		sh.HasLightStyles = d.HasLightStyles
		idx.addOrUpdate(sh)
	}
	return nil
}
