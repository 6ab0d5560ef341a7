package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Aciz/Pack3r/internal/assetsource"
	"github.com/Aciz/Pack3r/internal/builtin"
	"github.com/Aciz/Pack3r/internal/diagnostics"
	"github.com/Aciz/Pack3r/internal/resourcename"
	"github.com/Aciz/Pack3r/internal/shaderparser"
)

func writeShader(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, "scripts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "map.shader"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveFollowsChain(t *testing.T) {
	root := t.TempDir()
	writeShader(t, root, `
textures/mymap/root
{
	q3map_baseShader textures/mymap/leaf
}

textures/mymap/leaf
{
	{
		map textures/mymap/leaf.tga
	}
}
`)

	src := assetsource.NewDirectorySource(root, 0, false)
	diags := diagnostics.NewCollector()
	idx, err := shaderparser.BuildIndex(context.Background(), []assetsource.Source{src}, shaderparser.Options{}, diags)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	roots := resourcename.NewSet()
	roots.Add(resourcename.New("textures/mymap/root"))

	closure := Resolve(idx, nil, roots)
	if len(closure.Shaders) != 2 {
		t.Fatalf("got %d shaders, want 2", len(closure.Shaders))
	}
	if !closure.Resources.Contains(resourcename.New("textures/mymap/leaf.tga")) {
		t.Error("expected transitively-reached resource in closure")
	}
	if closure.Missing.Len() != 0 {
		t.Errorf("missing = %v, want none", closure.Missing.Slice())
	}
}

func TestResolveRecordsMissing(t *testing.T) {
	idx := shaderparser.NewIndex(diagnostics.NewCollector())
	roots := resourcename.NewSet()
	roots.Add(resourcename.New("textures/mymap/nonexistent"))

	closure := Resolve(idx, nil, roots)
	if closure.Missing.Len() != 1 {
		t.Fatalf("missing = %v, want 1 entry", closure.Missing.Slice())
	}
}

// TestResolveDropsBuiltinShaders covers §4.F: a shader name already
// defined by the base game must be dropped outright rather than recorded
// as Missing, since it is neither absent nor something the packager needs
// to fall back to a bare texture for.
func TestResolveDropsBuiltinShaders(t *testing.T) {
	idx := shaderparser.NewIndex(diagnostics.NewCollector())
	roots := resourcename.NewSet()
	roots.Add(resourcename.New("textures/base_wall/stonewall01"))

	builtinIdx := builtin.NewIndex()
	builtinIdx.Shaders.Add(resourcename.New("textures/base_wall/stonewall01"))

	closure := Resolve(idx, builtinIdx, roots)
	if closure.Missing.Len() != 0 {
		t.Errorf("missing = %v, want none (built-in shader should be dropped, not missing)", closure.Missing.Slice())
	}
	if len(closure.Shaders) != 0 {
		t.Errorf("shaders = %v, want none pulled in for a built-in-only name", closure.Shaders)
	}
}

// TestResolveDropsBuiltinShaderReachedTransitively ensures the same drop
// applies to a name reached through a chain, not only a root.
func TestResolveDropsBuiltinShaderReachedTransitively(t *testing.T) {
	root := t.TempDir()
	writeShader(t, root, `
textures/mymap/root
{
	q3map_baseShader textures/base_wall/stonewall01
}
`)

	src := assetsource.NewDirectorySource(root, 0, false)
	diags := diagnostics.NewCollector()
	idx, err := shaderparser.BuildIndex(context.Background(), []assetsource.Source{src}, shaderparser.Options{}, diags)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	roots := resourcename.NewSet()
	roots.Add(resourcename.New("textures/mymap/root"))

	builtinIdx := builtin.NewIndex()
	builtinIdx.Shaders.Add(resourcename.New("textures/base_wall/stonewall01"))

	closure := Resolve(idx, builtinIdx, roots)
	if closure.Missing.Len() != 0 {
		t.Errorf("missing = %v, want none", closure.Missing.Slice())
	}
	if len(closure.Shaders) != 1 {
		t.Errorf("shaders = %v, want only the map's own root shader", closure.Shaders)
	}
}
