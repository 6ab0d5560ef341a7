// Package mapmodel defines the Map data model (§3): the per-invocation
// aggregate that parsers populate and the resolver/packager consume.
package mapmodel

import (
	"strings"

	"github.com/Aciz/Pack3r/internal/assetsource"
	"github.com/Aciz/Pack3r/internal/resourcename"
)

// Map is the per-invocation aggregate described in §3. Parsers C and D
// mutate Shaders and Resources; everything else is set up once during
// construction and is read-only afterward.
type Map struct {
	Name    string // filename stem of the .map file
	Path    string // absolute path to the .map
	EtMain  string // the etmain directory
	MapRoot string // one level up from maps/: etmain itself, or a .pk3dir

	Shaders        *resourcename.Set // referenced shader names
	Resources      *resourcename.Set // referenced non-shader resources
	HasStyleLights bool              // a light entity carries style, or a shader carries q3map_lightstyle

	AssetDirectories []assetsource.Source // directory-kind sources, precedence order
	AssetSources     []assetsource.Source // every source (directories + archives), precedence order

	sources *assetsource.Sources
}

// New builds an empty Map for layout, with sources already enumerated.
func New(layout *assetsource.Layout, sources *assetsource.Sources) *Map {
	return &Map{
		Name:             layout.MapName,
		Path:             layout.MapPath,
		EtMain:           layout.EtMain,
		MapRoot:          layout.MapRoot,
		Shaders:          resourcename.NewSet(),
		Resources:        resourcename.NewSet(),
		AssetDirectories: sources.Directories,
		AssetSources:     sources.All,
		sources:          sources,
	}
}

// Close releases the asset sources' archive handles (§3 Lifecycles).
func (m *Map) Close() error {
	if m.sources == nil {
		return nil
	}
	return m.sources.Close()
}

// ActiveSources returns the subset of AssetSources that contribute content
// (i.e. are not Excluded()), in precedence order.
func (m *Map) ActiveSources() []assetsource.Source {
	var out []assetsource.Source
	for _, s := range m.AssetSources {
		if !s.Excluded() {
			out = append(out, s)
		}
	}
	return out
}

// BSPPath returns the compiled .bsp expected next to the .map.
func (m *Map) BSPPath() string {
	return strings.TrimSuffix(m.Path, ".map") + ".bsp"
}
