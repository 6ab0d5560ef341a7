// Package shaderparser implements component E: parsing every
// scripts/*.shader file reachable across the enumerated asset sources into
// a precedence-resolved shader index.
package shaderparser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Aciz/Pack3r/internal/diagnostics"
	"github.com/Aciz/Pack3r/internal/resourcename"
)

// Options gates the source-inclusion-only directives of §4.E plus whether a
// source's scripts/shaderlist.txt restricts which files get parsed.
type Options struct {
	IncludeSource bool // include_source: qer_editorImage, q3map_lightImage, q3map_normalImage
	UseShaderlist bool // use_shaderlist: gate parsed files by scripts/shaderlist.txt
}

// Def is a single parsed shader definition, prior to being attached to its
// owning source (see Shader in index.go).
type Def struct {
	Name             string
	ShaderRefs       []string
	ResourceRefs     []string
	ImplicitMapping  string
	HasLightStyles   bool
}

var skyboxSuffixes = []string{"_bk", "_dn", "_ft", "_up", "_rt", "_lf"}

// ParseFile runs the §4.E per-file line machine over r (a single
// scripts/*.shader file) and returns every shader definition it contains.
func ParseFile(path string, r io.Reader, opts Options) ([]Def, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var defs []Def
	var current *Def
	depth := 0
	pendingName := false
	inBlockComment := false
	lineNum := 0

	fail := func(format string, args ...any) error {
		return diagnostics.New(diagnostics.InvalidData, format, args...).AtLine(path, lineNum)
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if inBlockComment {
			if idx := strings.Index(line, "*/"); idx >= 0 {
				line = line[idx+2:]
				inBlockComment = false
			} else {
				continue
			}
		}

		line = stripComments(line, &inBlockComment)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		for line != "" {
			switch line[0] {
			case '{':
				if depth == 0 {
					if !pendingName {
						return nil, fail("unexpected '{' with no shader name")
					}
					pendingName = false
				}
				depth++
				line = strings.TrimSpace(line[1:])
				continue
			case '}':
				depth--
				if depth < 0 {
					return nil, fail("unexpected '}' with no matching '{'")
				}
				if depth == 0 && current != nil {
					defs = append(defs, *current)
					current = nil
				}
				line = strings.TrimSpace(line[1:])
				continue
			}

			var content string
			if idx := strings.IndexAny(line, "{}"); idx >= 0 {
				content = strings.TrimSpace(line[:idx])
				line = line[idx:]
			} else {
				content = line
				line = ""
			}
			if content == "" {
				continue
			}

			if depth == 0 {
				if pendingName {
					return nil, fail("expected '{' after shader name %q", current.Name)
				}
				name := content
				if strings.HasSuffix(name, "{") {
					// compact "name {" folded into the content split above
					// only happens if '{' wasn't isolated by IndexAny, which
					// cannot occur since '{' always splits; kept defensively.
					name = strings.TrimSpace(strings.TrimSuffix(name, "{"))
				}
				current = &Def{Name: name}
				pendingName = true
				continue
			}

			if current == nil {
				continue
			}

			tokens := strings.Fields(content)
			if len(tokens) == 0 {
				continue
			}
			directive := strings.ToLower(tokens[0])

			switch depth {
			case 1:
				applyShaderDirective(current, directive, tokens, opts)
			case 2:
				applyStageDirective(current, directive, tokens)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if depth != 0 || pendingName {
		return nil, fail("unexpected end of file (unterminated shader block)")
	}
	return defs, nil
}

// stripComments removes a trailing "//" comment and any "/* ... */" block
// comments from line, setting *inBlockComment if an unterminated block
// comment begins on this line.
func stripComments(line string, inBlockComment *bool) string {
	for {
		slashSlash := strings.Index(line, "//")
		slashStar := strings.Index(line, "/*")

		if slashStar >= 0 && (slashSlash < 0 || slashStar < slashSlash) {
			if end := strings.Index(line[slashStar+2:], "*/"); end >= 0 {
				line = line[:slashStar] + line[slashStar+2+end+2:]
				continue
			}
			*inBlockComment = true
			return line[:slashStar]
		}
		if slashSlash >= 0 {
			return line[:slashSlash]
		}
		return line
	}
}

func applyShaderDirective(def *Def, directive string, tokens []string, opts Options) {
	switch {
	case directive == "q3map_backshader" || directive == "q3map_baseshader" ||
		directive == "q3map_cloneshader" || directive == "q3map_remapshader" ||
		directive == "sunshader":
		if len(tokens) >= 2 && !strings.HasPrefix(tokens[1], "$") {
			def.ShaderRefs = append(def.ShaderRefs, tokens[1])
		}
	case directive == "q3map_lightimage" || directive == "q3map_normalimage" || directive == "qer_editorimage":
		if opts.IncludeSource && len(tokens) >= 2 {
			def.ResourceRefs = append(def.ResourceRefs, strings.Trim(tokens[1], `"`))
		}
	case strings.HasPrefix(directive, "implicit"):
		arg := def.Name
		if len(tokens) >= 2 && tokens[1] != "-" {
			arg = tokens[1]
		}
		def.ImplicitMapping = arg
	case directive == "skyparms":
		if len(tokens) >= 2 {
			base := tokens[1]
			if base == "-" {
				base = def.Name
			}
			for _, suffix := range skyboxSuffixes {
				def.ResourceRefs = append(def.ResourceRefs, base+suffix)
			}
		}
	case directive == "q3map_surfacemodel":
		if len(tokens) >= 2 {
			def.ResourceRefs = append(def.ResourceRefs, tokens[1])
		}
	case directive == "q3map_lightstyle":
		def.HasLightStyles = true
	}
}

func applyStageDirective(def *Def, directive string, tokens []string) {
	switch directive {
	case "map", "clampmap":
		if len(tokens) >= 2 && !strings.HasPrefix(tokens[1], "$") {
			def.ResourceRefs = append(def.ResourceRefs, tokens[1])
		}
	case "animmap":
		if len(tokens) >= 3 {
			for _, tok := range tokens[2:] {
				if !strings.HasPrefix(tok, "$") {
					def.ResourceRefs = append(def.ResourceRefs, tok)
				}
			}
		}
	case "videomap":
		if len(tokens) >= 2 {
			def.ResourceRefs = append(def.ResourceRefs, tokens[1])
		}
	}
}

// shouldSkipFile reports whether a scripts/*.shader file is a compiler
// artifact that component E never parses, regardless of shaderlist config.
func shouldSkipFile(stem string) bool {
	lower := strings.ToLower(stem)
	return lower == "q3shaderscopyforradiant" ||
		strings.HasPrefix(lower, "q3map_") ||
		strings.HasPrefix(lower, "q3map2_")
}

// toName is a tiny helper kept here (rather than scattering
// resourcename.New calls) so callers read as intent, not plumbing.
func toName(raw string) resourcename.Name { return resourcename.New(raw) }
