// Package resolver implements component F: computing the transitive
// closure of shader definitions reachable from a map's initial shader set.
package resolver

import (
	"github.com/Aciz/Pack3r/internal/builtin"
	"github.com/Aciz/Pack3r/internal/resourcename"
	"github.com/Aciz/Pack3r/internal/shaderparser"
)

// Closure is the result of resolving a map's referenced shaders against a
// shader index: every shader definition pulled in transitively, every
// resource those definitions require, and every name that could not be
// found.
type Closure struct {
	Shaders   []*shaderparser.Shader
	Resources *resourcename.Set
	Missing   *resourcename.Set
}

// Resolve walks roots (a map's directly-referenced shader names) against
// idx, following Shader.Shaders edges until no new names appear. A name
// already defined by the base game (builtinIdx.Shaders) is dropped
// outright, per §4.F: "if it appears in built-in-content shaders, drop" —
// it is neither a map shader nor a missing one, so it never reaches
// Closure.Missing. builtinIdx may be nil (no built-in content indexed),
// in which case no name is dropped on that basis.
//
// A name's absence from both idx and builtinIdx.Shaders is not an error
// here: the caller (the packager) decides whether a missing shader is a
// texture fallback or a genuine gap, and the missing set records every
// name that was never found so it can.
func Resolve(idx *shaderparser.Index, builtinIdx *builtin.Index, roots *resourcename.Set) *Closure {
	closure := &Closure{
		Resources: resourcename.NewSet(),
		Missing:   resourcename.NewSet(),
	}

	visited := make(map[string]bool)
	queue := roots.Slice()

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		key := name.Key()
		if visited[key] {
			continue
		}
		visited[key] = true

		if builtinIdx != nil && builtinIdx.Shaders.Contains(name) {
			continue
		}

		sh, ok := idx.Get(name)
		if !ok {
			closure.Missing.Add(name)
			continue
		}

		closure.Shaders = append(closure.Shaders, sh)
		for _, res := range sh.Resources.Slice() {
			closure.Resources.Add(res)
		}
		if !sh.ImplicitMapping.IsZero() {
			closure.Resources.Add(sh.ImplicitMapping)
		}

		// Including the shader's own .shader file as a resource is the
		// packager's job once it knows which file actually won; the
		// closure only tracks shader-graph reachability here.
		for _, ref := range sh.Shaders.Slice() {
			if !visited[ref.Key()] {
				queue = append(queue, ref)
			}
		}
	}

	return closure
}
