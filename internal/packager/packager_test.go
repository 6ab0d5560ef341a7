package packager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Aciz/Pack3r/internal/assetsource"
	"github.com/Aciz/Pack3r/internal/builtin"
	"github.com/Aciz/Pack3r/internal/diagnostics"
	"github.com/Aciz/Pack3r/internal/mapmodel"
	"github.com/Aciz/Pack3r/internal/resolver"
	"github.com/Aciz/Pack3r/internal/resourcename"
	"github.com/Aciz/Pack3r/internal/shaderparser"
)

func setupMinimalMap(t *testing.T) (*mapmodel.Map, *builtin.Index) {
	t.Helper()
	root := t.TempDir()
	etMain := filepath.Join(root, "etmain")
	mapsDir := filepath.Join(etMain, "maps")
	texDir := filepath.Join(etMain, "textures", "mymap")
	if err := os.MkdirAll(mapsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(texDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(mapsDir, "a.map"), []byte("// minimal\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mapsDir, "a.bsp"), []byte("fake bsp"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(texDir, "x.tga"), []byte("fake tga"), 0o644); err != nil {
		t.Fatal(err)
	}

	layout, err := assetsource.ResolveLayout(filepath.Join(mapsDir, "a.map"))
	if err != nil {
		t.Fatalf("ResolveLayout: %v", err)
	}
	sources, err := assetsource.Enumerate(layout, assetsource.Options{})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}

	m := mapmodel.New(layout, sources)
	m.Shaders.Add(resourcename.New("textures/mymap/x"))

	return m, builtin.NewIndex()
}

func TestPackageMinimumMap(t *testing.T) {
	m, builtinIdx := setupMinimalMap(t)
	defer m.Close()

	diags := diagnostics.NewCollector()
	idx, err := shaderparser.BuildIndex(context.Background(), m.ActiveSources(), shaderparser.Options{}, diags)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	closure := resolver.Resolve(idx, builtinIdx, m.Shaders)

	// "textures/mymap/x" has no .shader definition, so the resolver leaves
	// it in Missing; the packager treats that as a bare texture reference
	// and falls back to the .tga on disk (§4.F / §4.H).
	out := filepath.Join(t.TempDir(), "a.pk3")
	result, err := Package(context.Background(), m, builtinIdx, closure, Options{Overwrite: true}, out, diags)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	wantEntries := map[string]bool{"maps/a.bsp": true, "textures/mymap/x.tga": true}
	if len(result.Entries) != len(wantEntries) {
		t.Fatalf("entries = %v, want %v", result.Entries, wantEntries)
	}
	for _, e := range result.Entries {
		if !wantEntries[e] {
			t.Errorf("unexpected entry %q", e)
		}
	}
	if diags.Len() != 0 {
		t.Errorf("expected no diagnostics, got %v", diags.Entries())
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected archive at %s: %v", out, err)
	}
	if result.Digest.String() == "" {
		t.Error("expected a non-empty manifest digest")
	}
}

func TestPackageIsIdempotent(t *testing.T) {
	m, builtinIdx := setupMinimalMap(t)
	defer m.Close()

	diags := diagnostics.NewCollector()
	idx, err := shaderparser.BuildIndex(context.Background(), m.ActiveSources(), shaderparser.Options{}, diags)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	closure := resolver.Resolve(idx, builtinIdx, m.Shaders)

	dir := t.TempDir()
	first, err := Package(context.Background(), m, builtinIdx, closure, Options{Overwrite: true}, filepath.Join(dir, "a.pk3"), diags)
	if err != nil {
		t.Fatalf("Package (first): %v", err)
	}
	second, err := Package(context.Background(), m, builtinIdx, closure, Options{Overwrite: true}, filepath.Join(dir, "b.pk3"), diags)
	if err != nil {
		t.Fatalf("Package (second): %v", err)
	}

	if first.Digest != second.Digest {
		t.Errorf("digests differ across identical runs: %s vs %s", first.Digest, second.Digest)
	}
}

func TestPackageRefusesExistingWithoutOverwrite(t *testing.T) {
	m, builtinIdx := setupMinimalMap(t)
	defer m.Close()

	out := filepath.Join(t.TempDir(), "a.pk3")
	if err := os.WriteFile(out, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	diags := diagnostics.NewCollector()
	closure := &resolver.Closure{Resources: resourcename.NewSet(), Missing: resourcename.NewSet()}
	_, err := Package(context.Background(), m, builtinIdx, closure, Options{Overwrite: false}, out, diags)
	if err == nil {
		t.Fatal("expected error when output exists and overwrite is false")
	}
}

func TestPackageMissingTextureIsSoftByDefault(t *testing.T) {
	m, builtinIdx := setupMinimalMap(t)
	defer m.Close()
	m.Resources.Add(resourcename.New("textures/mymap/missing"))

	diags := diagnostics.NewCollector()
	closure := &resolver.Closure{Resources: resourcename.NewSet(), Missing: resourcename.NewSet()}
	out := filepath.Join(t.TempDir(), "a.pk3")
	_, err := Package(context.Background(), m, builtinIdx, closure, Options{Overwrite: true}, out, diags)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if diags.Len() == 0 {
		t.Error("expected a soft diagnostic for the missing resource")
	}
}

func TestPackageMissingAssetFatalWhenRequireAll(t *testing.T) {
	m, builtinIdx := setupMinimalMap(t)
	defer m.Close()
	m.Resources.Add(resourcename.New("textures/mymap/missing"))

	diags := diagnostics.NewCollector()
	closure := &resolver.Closure{Resources: resourcename.NewSet(), Missing: resourcename.NewSet()}
	out := filepath.Join(t.TempDir(), "a.pk3")
	_, err := Package(context.Background(), m, builtinIdx, closure, Options{Overwrite: true, RequireAllAssets: true}, out, diags)
	if err == nil {
		t.Fatal("expected a fatal error under require_all_assets")
	}
}

func TestPackageExpandsSkinTextures(t *testing.T) {
	m, builtinIdx := setupMinimalMap(t)
	defer m.Close()

	skinTexDir := filepath.Join(m.EtMain, "models", "player")
	if err := os.MkdirAll(skinTexDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skinTexDir, "head.tga"), []byte("fake tga"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skinTexDir, "body.skin"), []byte("head,models/player/head\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m.Resources.Add(resourcename.New("models/player/body.skin"))

	diags := diagnostics.NewCollector()
	closure := &resolver.Closure{Resources: resourcename.NewSet(), Missing: resourcename.NewSet()}
	out := filepath.Join(t.TempDir(), "a.pk3")
	result, err := Package(context.Background(), m, builtinIdx, closure, Options{Overwrite: true}, out, diags)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	found := false
	for _, e := range result.Entries {
		if e == "models/player/head.tga" {
			found = true
		}
	}
	if !found {
		t.Errorf("entries = %v, want models/player/head.tga pulled in via skin expansion", result.Entries)
	}
}

func TestResolveOutputPathDirectory(t *testing.T) {
	dir := t.TempDir()
	got, err := ResolveOutputPath(dir, "a")
	if err != nil {
		t.Fatalf("ResolveOutputPath: %v", err)
	}
	want := filepath.Join(dir, "a.pk3")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
