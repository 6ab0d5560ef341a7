// Package auxparser implements the pluggable auxiliary reference parsers
// of §4.D: mapscript, soundscript, speakerscript, and arena files that sit
// alongside a .map and can reference further shaders or resources.
package auxparser

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aciz/Pack3r/internal/mapmodel"
)

// Resource is one reference emitted by an auxiliary parser.
type Resource struct {
	Value    string
	IsShader bool
}

// Parser is a pluggable auxiliary reference source.
type Parser interface {
	// Description identifies the parser for diagnostics.
	Description() string
	// GetPath returns the file this parser would read for m, or "" if not
	// applicable to m.
	GetPath(m *mapmodel.Map) string
	// Parse streams the references found in the file at path.
	Parse(ctx context.Context, path string) ([]Resource, error)
}

// Default returns the standard set of auxiliary parsers (§6: mapscript,
// soundscript, speakerscript, arena file).
func Default() []Parser {
	return []Parser{
		mapscriptParser{},
		soundscriptParser{},
		speakerscriptParser{},
		arenaParser{},
	}
}

// --- mapscript: scripts/<mapname>.script, references further shaders ---

type mapscriptParser struct{}

func (mapscriptParser) Description() string { return "mapscript" }

func (mapscriptParser) GetPath(m *mapmodel.Map) string {
	return filepath.Join(m.EtMain, "scripts", m.Name+".script")
}

func (mapscriptParser) Parse(ctx context.Context, path string) ([]Resource, error) {
	// Mapscripts can invoke "remapshader <old> <new> <time>" and reference
	// sound/model resources as free-standing quoted-or-bare tokens on
	// "playsound"/"setmodel" style lines. We only need the asset names,
	// not script semantics.
	return scanTokenFile(ctx, path, func(lineLower string, fields []string) []Resource {
		if len(fields) == 0 {
			return nil
		}
		switch strings.ToLower(fields[0]) {
		case "remapshader":
			if len(fields) >= 3 {
				return []Resource{{Value: fields[1], IsShader: true}, {Value: fields[2], IsShader: true}}
			}
		case "playsound":
			if len(fields) >= 2 {
				return []Resource{{Value: trimQuotes(fields[1])}}
			}
		case "setmodel", "attachmodel":
			if len(fields) >= 2 {
				return []Resource{{Value: trimQuotes(fields[1])}}
			}
		}
		return nil
	})
}

// --- soundscript: sound/maps/<mapname>.sounds ---

type soundscriptParser struct{}

func (soundscriptParser) Description() string { return "soundscript" }

func (soundscriptParser) GetPath(m *mapmodel.Map) string {
	return filepath.Join(m.EtMain, "sound", "maps", m.Name+".sounds")
}

func (soundscriptParser) Parse(ctx context.Context, path string) ([]Resource, error) {
	return scanTokenFile(ctx, path, func(_ string, fields []string) []Resource {
		var out []Resource
		for _, f := range fields {
			f = trimQuotes(f)
			if strings.HasPrefix(f, "sound/") {
				out = append(out, Resource{Value: f})
			}
		}
		return out
	})
}

// --- speakerscript: scripts/<mapname>.spk ---

type speakerscriptParser struct{}

func (speakerscriptParser) Description() string { return "speakerscript" }

func (speakerscriptParser) GetPath(m *mapmodel.Map) string {
	return filepath.Join(m.EtMain, "scripts", m.Name+".spk")
}

func (speakerscriptParser) Parse(ctx context.Context, path string) ([]Resource, error) {
	return scanTokenFile(ctx, path, func(_ string, fields []string) []Resource {
		var out []Resource
		for _, f := range fields {
			f = trimQuotes(f)
			if strings.HasPrefix(f, "sound/") {
				out = append(out, Resource{Value: f})
			}
		}
		return out
	})
}

// --- arena file: scripts/<mapname>.arena ---

type arenaParser struct{}

func (arenaParser) Description() string { return "arena" }

func (arenaParser) GetPath(m *mapmodel.Map) string {
	return filepath.Join(m.EtMain, "scripts", m.Name+".arena")
}

// Parse reports no further references: an .arena file's keys (map,
// longname, type, fraglimit, ...) are metadata, not asset paths. The parser
// only checks that the file can be stat'ed and keeps the pluggable
// interface uniform across all four auxiliary sources; the .arena file
// itself is not added to the archive.
func (arenaParser) Parse(ctx context.Context, path string) ([]Resource, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return nil, nil
}

// scanTokenFile reads path line by line, honoring ctx cancellation, and
// applies extract to each whitespace-tokenized line. A missing file is not
// an error: it yields no references and a nil error, and no message is
// recorded for it.
func scanTokenFile(ctx context.Context, path string, extract func(lineLower string, fields []string) []Resource) ([]Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Resource
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		fields := strings.Fields(line)
		out = append(out, extract(strings.ToLower(line), fields)...)
	}
	return out, sc.Err()
}

func trimQuotes(s string) string {
	return strings.Trim(s, "\"")
}

// IsNotExist reports whether err indicates the auxiliary file was simply
// absent (not a real failure).
func IsNotExist(err error) bool { return errors.Is(err, os.ErrNotExist) }
