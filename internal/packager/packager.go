// Package packager implements component H: assembling the resolved
// closure of files into the output .pk3 archive, applying the texture
// fallback rule and the always-included-files checks along the way.
package packager

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"

	"github.com/Aciz/Pack3r/internal/assetsource"
	"github.com/Aciz/Pack3r/internal/builtin"
	"github.com/Aciz/Pack3r/internal/diagnostics"
	"github.com/Aciz/Pack3r/internal/digest"
	"github.com/Aciz/Pack3r/internal/mapmodel"
	"github.com/Aciz/Pack3r/internal/resolver"
	"github.com/Aciz/Pack3r/internal/resourcename"
	"github.com/Aciz/Pack3r/internal/skinref"
	"github.com/Aciz/Pack3r/internal/suggest"
)

func init() {
	// Faster deflate: Pack3r archives routinely carry hundreds of
	// megabytes of texture data.
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
}

// Options mirrors the §6 Option surface fields the packager consumes
// directly.
type Options struct {
	Overwrite        bool
	DryRun           bool
	IncludeSource    bool
	RequireAllAssets bool
	Suggest          bool // enrich MissingAsset diagnostics with suggest.Hint
}

// Result is returned by Package: the final archive path, the sorted list
// of archive-relative entries written, and a combined content digest of
// those entries (zero on a DryRun, since nothing was hashed). Running the
// pipeline twice on unchanged inputs produces the same Digest, which is
// the idempotence check's basis for comparing two runs without diffing
// archive bytes directly.
type Result struct {
	ArchivePath string
	Entries     []string
	Digest      digest.Digest
}

// ResolveOutputPath implements the "output may be a directory" rule: a
// directory argument implies "<map-name>.pk3" inside it.
func ResolveOutputPath(output, mapName string) (string, error) {
	info, err := os.Stat(output)
	if err == nil && info.IsDir() {
		return filepath.Join(output, mapName+".pk3"), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", diagnostics.Wrap(diagnostics.IO, err, "stat output %s", output)
	}
	if strings.HasSuffix(output, string(os.PathSeparator)) || strings.HasSuffix(output, "/") {
		return filepath.Join(output, mapName+".pk3"), nil
	}
	return output, nil
}

type writtenEntry struct {
	archivePath string
	open        func() (io.ReadCloser, error)
}

type packager struct {
	ctx     context.Context
	m       *mapmodel.Map
	active  []assetsource.Source
	builtin *builtin.Index
	opts    Options
	diags   *diagnostics.Diagnostics

	added        *resourcename.Set
	writtenFiles map[string]bool
	entries      []writtenEntry

	warnedLightmapStale bool
	warnedStyleStale    bool

	fileIndex []resourcename.Name // lazily built, for suggestion only
}

// Package resolves and writes the output archive for m, using closure
// (component F's output) and builtinIdx (component G's output).
func Package(ctx context.Context, m *mapmodel.Map, builtinIdx *builtin.Index, closure *resolver.Closure, opts Options, outputPath string, diags *diagnostics.Diagnostics) (*Result, error) {
	p := &packager{
		ctx:          ctx,
		m:            m,
		active:       m.ActiveSources(),
		builtin:      builtinIdx,
		opts:         opts,
		diags:        diags,
		added:        resourcename.NewSet(),
		writtenFiles: make(map[string]bool),
	}

	bspPath := m.BSPPath()
	bspInfo, err := os.Stat(bspPath)
	if err != nil {
		return nil, diagnostics.Wrap(diagnostics.Environment, err, "required .bsp not found: %s", bspPath)
	}
	p.addRaw("maps/"+m.Name+".bsp", func() (io.ReadCloser, error) { return os.Open(bspPath) })

	if opts.IncludeSource {
		p.addRaw("maps/"+m.Name+".map", func() (io.ReadCloser, error) { return os.Open(m.Path) })
	}

	lightmapsIncluded, err := p.includeLightmaps(bspInfo)
	if err != nil {
		return nil, err
	}

	if err := p.runResourceLoop(m.Resources); err != nil {
		return nil, err
	}
	if err := p.runShaderLoop(closure); err != nil {
		return nil, err
	}
	// §4.F: a referenced shader name with no definition anywhere is treated
	// as a bare texture reference, subject to the same .tga/.jpg fallback
	// as a shader's own texture-class resources.
	for _, name := range closure.Missing.Slice() {
		if err := p.resolveTextureFallback(name); err != nil {
			return nil, err
		}
	}

	if m.HasStyleLights && lightmapsIncluded {
		p.includeStyleShader(bspInfo)
	}

	sort.Slice(p.entries, func(i, j int) bool { return p.entries[i].archivePath < p.entries[j].archivePath })

	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.archivePath
	}

	if opts.DryRun {
		return &Result{ArchivePath: outputPath, Entries: names}, nil
	}

	manifestDigest, err := p.write(outputPath)
	if err != nil {
		return nil, err
	}

	return &Result{ArchivePath: outputPath, Entries: names, Digest: manifestDigest}, nil
}

func (p *packager) addRaw(archivePath string, open func() (io.ReadCloser, error)) {
	p.entries = append(p.entries, writtenEntry{archivePath: archivePath, open: open})
}

func (p *packager) addFromSource(archivePath string, src assetsource.Source, relPath string) {
	p.addRaw(archivePath, func() (io.ReadCloser, error) { return src.Open(relPath) })
}

// includeLightmaps adds every lm_NNNN.tga adjacent to the map (§4.H); when
// any are present they are required, each is header-validated, and
// staleness relative to the .bsp is warned about once.
func (p *packager) includeLightmaps(bspInfo os.FileInfo) (bool, error) {
	lmDir := filepath.Join(filepath.Dir(p.m.Path), p.m.Name)
	matches, err := filepath.Glob(filepath.Join(lmDir, "lm_*.tga"))
	if err != nil || len(matches) == 0 {
		return false, nil
	}
	sort.Strings(matches)

	for _, lm := range matches {
		info, serr := os.Stat(lm)
		if serr != nil {
			return false, diagnostics.Wrap(diagnostics.IO, serr, "required lightmap missing: %s", lm)
		}

		if err := validateTGA(lm); err != nil {
			p.diags.Warnf(diagnostics.IO, lm, "lightmap failed header validation: %v", err)
		}

		if !p.warnedLightmapStale && bspInfo.ModTime().After(info.ModTime()) {
			p.diags.Warnf(diagnostics.IO, lm, "lightmap is older than the .bsp (%s); map may need recompiling", bspInfo.ModTime())
			p.warnedLightmapStale = true
		}

		rel := "maps/" + p.m.Name + "/" + filepath.Base(lm)
		lmPath := lm
		p.addRaw(rel, func() (io.ReadCloser, error) { return os.Open(lmPath) })
	}

	return true, nil
}

func validateTGA(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = tga.Decode(f)
	return err
}

// includeStyleShader attempts to add scripts/q3map_<name>.shader (§4.H).
// Absence is a warning, not an error.
func (p *packager) includeStyleShader(bspInfo os.FileInfo) {
	rel := "scripts/q3map_" + p.m.Name + ".shader"
	src, ok := p.resolveInActive(rel)
	if !ok {
		p.diags.Warnf(diagnostics.MissingAsset, rel, "style shader not found for a map with style lights")
		return
	}

	if ds, isDir := src.(*assetsource.DirectorySource); isDir {
		full := filepath.Join(ds.RootPath(), filepath.FromSlash(rel))
		if info, err := os.Stat(full); err == nil && !p.warnedStyleStale && bspInfo.ModTime().After(info.ModTime()) {
			p.diags.Warnf(diagnostics.IO, rel, "style shader is older than the .bsp (%s); map may need recompiling", bspInfo.ModTime())
			p.warnedStyleStale = true
		}
	}

	p.addEntryOnce(rel, src, rel)
}

// runResourceLoop implements §4.H's resource loop for a flat set of
// non-shader resources.
func (p *packager) runResourceLoop(resources *resourcename.Set) error {
	for _, res := range resources.Slice() {
		select {
		case <-p.ctx.Done():
			return diagnostics.Wrap(diagnostics.Canceled, p.ctx.Err(), "packaging %s", p.m.Name)
		default:
		}
		if err := p.resolveAndAdd(res); err != nil {
			return err
		}
	}
	return nil
}

// runShaderLoop implements §4.H's shader loop over the resolver's closure.
func (p *packager) runShaderLoop(closure *resolver.Closure) error {
	for _, sh := range closure.Shaders {
		select {
		case <-p.ctx.Done():
			return diagnostics.Wrap(diagnostics.Canceled, p.ctx.Err(), "packaging %s", p.m.Name)
		default:
		}

		if !sh.Source.Excluded() {
			p.addEntryOnce(sh.Path, sh.Source, sh.Path)
		}

		if !sh.ImplicitMapping.IsZero() {
			if err := p.resolveTextureFallback(sh.ImplicitMapping); err != nil {
				return err
			}
		}

		for _, res := range sh.Resources.Slice() {
			var err error
			if isTextureLike(res) {
				err = p.resolveTextureFallback(res)
			} else {
				err = p.resolveAndAdd(res)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func isTextureLike(n resourcename.Name) bool {
	switch n.Ext() {
	case "", ".tga", ".jpg":
		return true
	default:
		return false
	}
}

// resolveAndAdd is the generic §4.H resource-loop body: exact existence
// check, no extension fallback.
func (p *packager) resolveAndAdd(res resourcename.Name) error {
	if p.builtin.Resources.Contains(res) {
		return nil
	}
	if p.added.Contains(res) {
		return nil
	}
	if src, ok := p.resolveInActive(res.String()); ok {
		p.addEntryOnce(res.String(), src, res.String())
		p.added.Add(res)
		if res.HasExtension(".skin") {
			return p.expandSkin(src, res)
		}
		return nil
	}
	return p.recordMissing(res, fmt.Sprintf("missing resource reference: %s", res.String()))
}

// expandSkin pulls in the textures a .skin file points at: a skin is
// opaque to both the .map parser and the shader index, so without this its
// textures would only ship if something else also referenced them.
func (p *packager) expandSkin(src assetsource.Source, skin resourcename.Name) error {
	rc, err := src.Open(skin.String())
	if err != nil {
		return diagnostics.Wrap(diagnostics.IO, err, "open %s for skin expansion", skin.String())
	}
	defer rc.Close()

	refs, err := skinref.Parse(rc)
	if err != nil {
		return diagnostics.Wrap(diagnostics.InvalidData, err, "parse skin %s", skin.String())
	}
	for _, tex := range refs {
		if err := p.resolveTextureFallback(tex); err != nil {
			return err
		}
	}
	return nil
}

// resolveTextureFallback implements the §4.H texture-extension fallback
// rule: try .tga, then .jpg, recording the bare (extension-trimmed) name
// as added on either success so later references short-circuit.
func (p *packager) resolveTextureFallback(name resourcename.Name) error {
	base := name.TrimExtension()
	if p.builtin.Resources.Contains(base) || p.added.Contains(base) {
		return nil
	}

	tgaName := base.WithExtension(".tga")
	if src, ok := p.resolveInActive(tgaName.String()); ok && !p.builtin.Resources.Contains(tgaName) {
		p.addEntryOnce(tgaName.String(), src, tgaName.String())
		p.added.Add(base)
		p.added.Add(tgaName)
		return nil
	}

	jpgName := base.WithExtension(".jpg")
	if src, ok := p.resolveInActive(jpgName.String()); ok && !p.builtin.Resources.Contains(jpgName) {
		p.addEntryOnce(jpgName.String(), src, jpgName.String())
		p.added.Add(base)
		p.added.Add(jpgName)
		return nil
	}

	return p.recordMissing(base, fmt.Sprintf("missing texture reference (no .tga or .jpg found): %s", base.String()))
}

func (p *packager) resolveInActive(relPath string) (assetsource.Source, bool) {
	for _, src := range p.active {
		if src.Exists(relPath) {
			return src, true
		}
	}
	return nil, false
}

func (p *packager) addEntryOnce(archivePath string, src assetsource.Source, relPath string) {
	key := src.Name() + "::" + strings.ToLower(relPath)
	if p.writtenFiles[key] {
		return
	}
	p.writtenFiles[key] = true
	p.addFromSource(archivePath, src, relPath)
}

func (p *packager) recordMissing(name resourcename.Name, message string) error {
	if p.opts.Suggest {
		if hint := suggest.Hint(name, p.candidateNames()); hint != "" {
			message += hint
		}
	}
	if p.opts.RequireAllAssets {
		return diagnostics.New(diagnostics.MissingAsset, "%s", message)
	}
	p.diags.Warnf(diagnostics.MissingAsset, "", "%s", message)
	return nil
}

// candidateNames lazily indexes every file in the active sources for
// suggestion purposes (component M). Only computed when suggestions are
// requested and a miss actually occurs.
func (p *packager) candidateNames() []resourcename.Name {
	if p.fileIndex != nil {
		return p.fileIndex
	}
	var names []resourcename.Name
	for _, src := range p.active {
		entries, err := assetsource.AllEntries(src)
		if err != nil {
			continue
		}
		for _, e := range entries {
			names = append(names, resourcename.New(e))
		}
	}
	p.fileIndex = names
	return names
}

// write streams every entry into a zip at outputPath, via an atomic
// temp-file-plus-rename so a crash or cancellation never leaves a
// half-written archive at the requested path. p.entries is already sorted
// by archivePath, so the returned manifest digest is independent of the
// order entries were added to the packager.
func (p *packager) write(outputPath string) (digest.Digest, error) {
	if _, err := os.Stat(outputPath); err == nil && !p.opts.Overwrite {
		return digest.Digest{}, diagnostics.New(diagnostics.IO, "output already exists: %s (use overwrite)", outputPath)
	}

	dir := filepath.Dir(outputPath)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(outputPath), uuid.NewString()))

	f, err := os.Create(tmpPath)
	if err != nil {
		return digest.Digest{}, diagnostics.Wrap(diagnostics.IO, err, "create temp archive %s", tmpPath)
	}

	var manifest []byte
	zw := zip.NewWriter(f)
	for _, e := range p.entries {
		select {
		case <-p.ctx.Done():
			zw.Close()
			f.Close()
			os.Remove(tmpPath)
			return digest.Digest{}, diagnostics.Wrap(diagnostics.Canceled, p.ctx.Err(), "writing %s", outputPath)
		default:
		}

		entryDigest, err := writeEntry(zw, e)
		if err != nil {
			zw.Close()
			f.Close()
			os.Remove(tmpPath)
			return digest.Digest{}, err
		}
		manifest = append(manifest, []byte(e.archivePath)...)
		manifest = append(manifest, entryDigest[:]...)
	}

	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return digest.Digest{}, diagnostics.Wrap(diagnostics.IO, err, "finalize archive %s", outputPath)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return digest.Digest{}, diagnostics.Wrap(diagnostics.IO, err, "close archive %s", outputPath)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return digest.Digest{}, diagnostics.Wrap(diagnostics.IO, err, "rename archive into place: %s", outputPath)
	}
	return digest.OfBytes(manifest), nil
}

func writeEntry(zw *zip.Writer, e writtenEntry) (digest.Digest, error) {
	rc, err := e.open()
	if err != nil {
		return digest.Digest{}, diagnostics.Wrap(diagnostics.IO, err, "open %s for packing", e.archivePath)
	}
	defer rc.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: e.archivePath, Method: zip.Deflate})
	if err != nil {
		return digest.Digest{}, diagnostics.Wrap(diagnostics.IO, err, "create archive entry %s", e.archivePath)
	}

	h, err := digest.NewHasher()
	if err != nil {
		return digest.Digest{}, diagnostics.Wrap(diagnostics.Internal, err, "init content hasher")
	}
	if _, err := io.Copy(io.MultiWriter(w, h), rc); err != nil {
		return digest.Digest{}, diagnostics.Wrap(diagnostics.IO, err, "write archive entry %s", e.archivePath)
	}
	var out digest.Digest
	copy(out[:], h.Sum(nil))
	return out, nil
}
