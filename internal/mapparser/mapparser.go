// Package mapparser implements component C: the sequential .map file
// parser that extracts referenced shader names, non-shader resources, and
// the style-light flag from a map's entities and geometry.
package mapparser

import (
	"context"
	"io"
	"strings"

	"github.com/Aciz/Pack3r/internal/diagnostics"
	"github.com/Aciz/Pack3r/internal/lineio"
	"github.com/Aciz/Pack3r/internal/resourcename"
)

// fast-skip shaders: base-game shaders always known to exist, never emitted.
var fastSkipShaders = map[string]bool{
	"common/caulk":   true,
	"common/nodraw":  true,
	"common/trigger": true,
}

// state is the parser's explicit state enum (§4.C).
type state int

const (
	stateNone state = iota
	stateEntity
	stateAfterDef // awaiting the "{" that must follow a brushDef/patchDef2 header
	stateBrushDef
	statePatchDef
	stateSkipBlock // an unrecognized <word> { ... } block inside an entity
)

// geometryKind records which header is pending in stateAfterDef.
type geometryKind int

const (
	geometryNone geometryKind = iota
	geometryBrush
	geometryPatch
	geometrySkip
)

// Options configures entity key handling that depends on the run's Option
// surface (§6).
type Options struct {
	IncludeSource bool // include_source: keep misc_model dev-only model refs
}

// Result is the MapAssets bundle produced by the .map parser (plus
// whatever auxiliary parsers in package auxparser later merge into it).
type Result struct {
	Shaders        *resourcename.Set
	Resources      *resourcename.Set
	MiscModels     *resourcename.Set
	HasStyleLights bool
	Diagnostics    []diagnostics.Diagnostic
}

// parser holds the mutable state machine.
type parser struct {
	path      string
	opts      Options
	result    *Result
	state     state
	pending   geometryKind
	skipDepth int

	kv          map[string]string
	shaderToken string // the single captured patchDef2 shader token, once seen
}

// Parse consumes r (a .map file opened at path, for diagnostics) and
// returns the extracted MapAssets.
func Parse(ctx context.Context, path string, r io.Reader, opts Options) (*Result, error) {
	p := &parser{
		path: path,
		opts: opts,
		result: &Result{
			Shaders:    resourcename.NewSet(),
			Resources:  resourcename.NewSet(),
			MiscModels: resourcename.NewSet(),
		},
	}

	lr := lineio.New(ctx, path, r)
	for {
		ln, err := lr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := p.step(ln); err != nil {
			return nil, err
		}
	}

	if p.state != stateNone {
		return nil, diagnostics.New(diagnostics.InvalidData,
			"unexpected end of file while in state %d", p.state).AtLine(path, 0)
	}

	return p.result, nil
}

func (p *parser) fatal(ln lineio.Line, format string, args ...any) error {
	return diagnostics.New(diagnostics.InvalidData, format, args...).AtLine(p.path, ln.Index)
}

func (p *parser) step(ln lineio.Line) error {
	switch p.state {
	case stateNone:
		return p.stepTopLevel(ln)
	case stateEntity:
		return p.stepEntity(ln)
	case stateAfterDef:
		return p.stepAfterDef(ln)
	case stateBrushDef:
		return p.stepBrushDef(ln)
	case statePatchDef:
		return p.stepPatchDef(ln)
	case stateSkipBlock:
		return p.stepSkipBlock(ln)
	default:
		return p.fatal(ln, "internal: unknown parser state")
	}
}

func (p *parser) stepTopLevel(ln lineio.Line) error {
	switch ln.FirstChar {
	case '{':
		p.kv = make(map[string]string)
		p.state = stateEntity
	case '}':
		return p.fatal(ln, "stray '}' at top level")
	}
	return nil
}

func (p *parser) stepEntity(ln lineio.Line) error {
	switch ln.FirstChar {
	case '}':
		p.closeEntity()
		p.state = stateNone
		return nil
	case '"':
		key, value, ok := parseKV(ln.Value)
		if ok {
			p.kv[strings.ToLower(key)] = value
		}
		return nil
	}

	word, rest := firstToken(ln.Value)
	switch {
	case strings.EqualFold(word, "brushDef") || strings.EqualFold(word, "brushDef3"):
		return p.startGeometry(ln, rest, geometryBrush)
	case strings.EqualFold(word, "patchDef2") || strings.EqualFold(word, "patchDef3"):
		return p.startGeometry(ln, rest, geometryPatch)
	default:
		// Unrecognized block kind (e.g. a future geometry type); skip its
		// braced body without trying to extract anything from it.
		return p.startGeometry(ln, rest, geometrySkip)
	}
}

// startGeometry handles a geometry header token, optionally followed by
// "{" on the same line (compact form), otherwise expecting it on the next.
func (p *parser) startGeometry(ln lineio.Line, rest string, kind geometryKind) error {
	rest = strings.TrimSpace(rest)
	if rest == "{" {
		p.enterGeometry(kind)
		return nil
	}
	if rest != "" {
		// Not actually a geometry header (an unrelated bare-word line) —
		// treat the whole entity body defensively: ignore.
		return nil
	}
	p.pending = kind
	p.state = stateAfterDef
	return nil
}

func (p *parser) stepAfterDef(ln lineio.Line) error {
	if ln.Value != "{" {
		return p.fatal(ln, "expected '{' after geometry header, got %q", ln.Value)
	}
	p.enterGeometry(p.pending)
	return nil
}

func (p *parser) enterGeometry(kind geometryKind) {
	switch kind {
	case geometryBrush:
		p.state = stateBrushDef
	case geometryPatch:
		p.state = statePatchDef
		p.shaderToken = ""
	default:
		p.state = stateSkipBlock
		p.skipDepth = 1
	}
}

func (p *parser) stepSkipBlock(ln lineio.Line) error {
	for _, c := range ln.Value {
		switch c {
		case '{':
			p.skipDepth++
		case '}':
			p.skipDepth--
			if p.skipDepth == 0 {
				p.state = stateEntity
				return nil
			}
		}
	}
	return nil
}

func (p *parser) stepBrushDef(ln lineio.Line) error {
	if ln.FirstChar == '}' {
		p.state = stateEntity
		return nil
	}

	idx := strings.LastIndexByte(ln.Value, ')')
	if idx < 0 {
		// Not a face line (e.g. a flags-only continuation); ignore.
		return nil
	}
	rest := ln.Value[idx+1:]
	if rest == "" || rest[0] != ' ' {
		return p.fatal(ln, "brush face line has no space after closing ')'")
	}
	token, _ := firstToken(strings.TrimSpace(rest))
	if token != "" {
		p.emitGeometryShader(token)
	}
	return nil
}

func (p *parser) stepPatchDef(ln lineio.Line) error {
	if ln.FirstChar == '}' {
		p.state = stateEntity
		return nil
	}
	if p.shaderToken == "" && ln.FirstChar != '(' {
		p.shaderToken = ln.Value
		p.emitGeometryShader(ln.Value)
	}
	return nil
}

func (p *parser) emitGeometryShader(token string) {
	if fastSkipShaders[strings.ToLower(token)] {
		return
	}
	p.result.Shaders.Add(resourcename.New("textures/" + token))
}

// closeEntity processes the accumulated key/value pairs per the §4.C table.
func (p *parser) closeEntity() {
	kv := p.kv
	classname := strings.ToLower(kv["classname"])
	_, hasTerrain := kv["terrain"]

	add := func(set *resourcename.Set, value string) {
		if value != "" {
			set.Add(resourcename.New(value))
		}
	}

	for key, value := range kv {
		switch key {
		case "_fog", "sun":
			add(p.result.Shaders, value)
		case "_celshader":
			add(p.result.Shaders, "textures/"+value)
		case "shader":
			effective := value
			if hasTerrain && !strings.HasPrefix(strings.ToLower(value), "textures/") {
				effective = "textures/" + value
				p.result.Diagnostics = append(p.result.Diagnostics, diagnostics.Diagnostic{
					Kind:    diagnostics.InvalidData,
					File:    p.path,
					Message: "terrain entity shader '" + value + "' missing textures/ prefix; assumed " + effective,
				})
			}
			add(p.result.Shaders, effective)
		case "targetshadername", "targetshadernewname":
			add(p.result.Shaders, value)
		case "model":
			if classname == "misc_model" && !p.opts.IncludeSource {
				continue
			}
			add(p.result.Resources, value)
			add(p.result.MiscModels, value)
		case "model2":
			add(p.result.Resources, value)
		case "skin", "_skin":
			add(p.result.Resources, value)
		case "noise":
			if !strings.EqualFold(value, "NOSOUND") {
				add(p.result.Resources, value)
			}
		case "sound":
			if classname == "dlight" && !strings.EqualFold(value, "NOSOUND") {
				add(p.result.Resources, value)
			}
		case "style":
			if classname == "light" {
				p.result.HasStyleLights = true
			}
		}
	}
}

// parseKV parses a `"key" "value"` line.
func parseKV(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '"')
	if i < 0 {
		return "", "", false
	}
	j := strings.IndexByte(line[i+1:], '"')
	if j < 0 {
		return "", "", false
	}
	key = line[i+1 : i+1+j]

	restStart := i + 1 + j + 1
	if restStart >= len(line) {
		return key, "", true
	}
	rest := line[restStart:]
	i = strings.IndexByte(rest, '"')
	if i < 0 {
		return key, "", true
	}
	j = strings.IndexByte(rest[i+1:], '"')
	if j < 0 {
		return key, "", true
	}
	return key, rest[i+1 : i+1+j], true
}

// firstToken splits s into its first whitespace-delimited token and the
// remainder. Leading whitespace before the token is skipped; the remainder
// starts just after the first separator and is not trimmed.
func firstToken(s string) (token, rest string) {
	s = strings.TrimLeft(s, " \t")
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}
