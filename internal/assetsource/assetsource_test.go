package assetsource

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	mustMkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveLayoutAcceptsPlainEtmain(t *testing.T) {
	root := t.TempDir()
	mapPath := filepath.Join(root, "etmain", "maps", "a.map")
	mustWriteFile(t, mapPath, "// x\n")

	layout, err := ResolveLayout(mapPath)
	if err != nil {
		t.Fatalf("ResolveLayout: %v", err)
	}
	if layout.MapName != "a" {
		t.Errorf("MapName = %q, want a", layout.MapName)
	}
	if filepath.Base(layout.EtMain) != "etmain" {
		t.Errorf("EtMain = %q, want etmain dir", layout.EtMain)
	}
	if layout.MapRoot != layout.EtMain {
		t.Errorf("MapRoot = %q, want == EtMain for a plain etmain layout", layout.MapRoot)
	}
}

func TestResolveLayoutAcceptsPk3dir(t *testing.T) {
	root := t.TempDir()
	mapPath := filepath.Join(root, "etmain", "mymap.pk3dir", "maps", "a.map")
	mustWriteFile(t, mapPath, "// x\n")

	layout, err := ResolveLayout(mapPath)
	if err != nil {
		t.Fatalf("ResolveLayout: %v", err)
	}
	if filepath.Base(layout.MapRoot) != "mymap.pk3dir" {
		t.Errorf("MapRoot = %q, want mymap.pk3dir", layout.MapRoot)
	}
	if filepath.Base(layout.EtMain) != "etmain" {
		t.Errorf("EtMain = %q, want etmain", layout.EtMain)
	}
}

func TestResolveLayoutRejectsNonMapsParent(t *testing.T) {
	root := t.TempDir()
	mapPath := filepath.Join(root, "etmain", "a.map")
	mustWriteFile(t, mapPath, "// x\n")

	if _, err := ResolveLayout(mapPath); err == nil {
		t.Fatal("expected error when the map isn't inside maps/")
	}
}

func TestResolveLayoutRejectsPk3dirNotUnderEtmain(t *testing.T) {
	root := t.TempDir()
	mapPath := filepath.Join(root, "somewhere", "mymap.pk3dir", "maps", "a.map")
	mustWriteFile(t, mapPath, "// x\n")

	if _, err := ResolveLayout(mapPath); err == nil {
		t.Fatal("expected error when the .pk3dir's parent isn't etmain")
	}
}

func TestEnumerateOrdersPak0FirstAndPk3dirsDescending(t *testing.T) {
	root := t.TempDir()
	etMain := filepath.Join(root, "etmain")
	mustWriteFile(t, filepath.Join(etMain, "maps", "a.map"), "// x\n")

	writeZip(t, filepath.Join(etMain, "pak0.pk3"), map[string]string{"textures/x.tga": "x"})
	mustMkdirAll(t, filepath.Join(etMain, "alpha.pk3dir"))
	mustMkdirAll(t, filepath.Join(etMain, "zulu.pk3dir"))

	layout, err := ResolveLayout(filepath.Join(etMain, "maps", "a.map"))
	if err != nil {
		t.Fatalf("ResolveLayout: %v", err)
	}
	sources, err := Enumerate(layout, Options{})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	defer sources.Close()

	if len(sources.All) < 3 {
		t.Fatalf("got %d sources, want at least 3: %v", len(sources.All), names(sources.All))
	}
	if sources.All[0].Name() != filepath.Join(etMain, "pak0.pk3") {
		t.Errorf("first source = %q, want pak0.pk3 pseudo-source first", sources.All[0].Name())
	}

	// zulu.pk3dir sorts before alpha.pk3dir (descending, case-insensitive).
	zuluIdx, alphaIdx := -1, -1
	for i, s := range sources.All {
		switch filepath.Base(s.Name()) {
		case "zulu.pk3dir":
			zuluIdx = i
		case "alpha.pk3dir":
			alphaIdx = i
		}
	}
	if zuluIdx == -1 || alphaIdx == -1 {
		t.Fatalf("expected both pk3dirs present: %v", names(sources.All))
	}
	if zuluIdx >= alphaIdx {
		t.Errorf("zulu.pk3dir (idx %d) should precede alpha.pk3dir (idx %d)", zuluIdx, alphaIdx)
	}
}

func TestEnumerateAppliesIgnoreAndExclude(t *testing.T) {
	root := t.TempDir()
	etMain := filepath.Join(root, "etmain")
	mustWriteFile(t, filepath.Join(etMain, "maps", "a.map"), "// x\n")
	mustMkdirAll(t, filepath.Join(etMain, "skip.pk3dir"))
	mustMkdirAll(t, filepath.Join(etMain, "excluded.pk3dir"))

	layout, err := ResolveLayout(filepath.Join(etMain, "maps", "a.map"))
	if err != nil {
		t.Fatalf("ResolveLayout: %v", err)
	}
	sources, err := Enumerate(layout, Options{
		IgnoreSources:  []string{"skip.pk3dir"},
		ExcludeSources: []string{"excluded.pk3dir"},
	})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	defer sources.Close()

	for _, s := range sources.All {
		if filepath.Base(s.Name()) == "skip.pk3dir" {
			t.Error("ignored source should not appear in All")
		}
		if filepath.Base(s.Name()) == "excluded.pk3dir" && !s.Excluded() {
			t.Error("excluded source should report Excluded() == true")
		}
	}
}

func TestArchiveSourceOpenAndExists(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "test.pk3")
	writeZip(t, archivePath, map[string]string{"textures/mymap/x.tga": "content"})

	src, err := NewArchiveSource(archivePath, 0, false)
	if err != nil {
		t.Fatalf("NewArchiveSource: %v", err)
	}
	defer src.Close()

	if !src.Exists("textures/mymap/x.tga") {
		t.Error("expected Exists to find the entry")
	}
	if !src.Exists("TEXTURES/MYMAP/X.TGA") {
		t.Error("expected Exists to be case-insensitive")
	}
	if src.Exists("textures/mymap/missing.tga") {
		t.Error("expected Exists to report false for a missing entry")
	}

	rc, err := src.Open("textures/mymap/x.tga")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
}

func TestArchiveSourceEnumerateShaderFiles(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "test.pk3")
	writeZip(t, archivePath, map[string]string{
		"scripts/mymap.shader":  "",
		"scripts/other.shader":  "",
		"textures/mymap/x.tga":  "",
		"scripts/shaderlist.txt": "mymap\n",
	})

	src, err := NewArchiveSource(archivePath, 0, false)
	if err != nil {
		t.Fatalf("NewArchiveSource: %v", err)
	}
	defer src.Close()

	files, err := src.EnumerateShaderFiles()
	if err != nil {
		t.Fatalf("EnumerateShaderFiles: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("got %d shader files, want 2: %v", len(files), files)
	}

	list, ok := src.ShaderList()
	if !ok {
		t.Fatal("expected a shaderlist.txt to be found")
	}
	if !list["mymap"] {
		t.Errorf("shaderlist = %v, want mymap present", list)
	}
}

func names(sources []Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Name()
	}
	return out
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	mustMkdirAll(t, filepath.Dir(path))
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}
