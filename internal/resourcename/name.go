// Package resourcename implements the case-insensitive, slash-normalized
// resource path type shared by every other package in the pipeline.
package resourcename

import "strings"

// Name is a game-relative resource path compared with ordinal
// case-insensitive, slash-normalized semantics. The zero value is the
// empty name.
type Name struct {
	// norm is the canonical form: backslashes converted to slashes,
	// lowercased. original preserves the caller's casing for display.
	norm     string
	original string
}

// New normalizes raw into a Name. Backslashes become slashes; comparison
// uses the lowercased form, but String returns the original casing.
func New(raw string) Name {
	norm := strings.ReplaceAll(raw, "\\", "/")
	return Name{norm: strings.ToLower(norm), original: norm}
}

// IsZero reports whether n is the empty Name.
func (n Name) IsZero() bool { return n.norm == "" }

// String returns the slash-normalized path in its original case.
func (n Name) String() string { return n.original }

// Key returns the canonical lowercase form, suitable as a map key.
func (n Name) Key() string { return n.norm }

// Equal reports ordinal case-insensitive equality.
func (n Name) Equal(other Name) bool { return n.norm == other.norm }

// HasExtension reports whether the name's lowercased form ends with ext
// (ext should include the leading dot, e.g. ".tga").
func (n Name) HasExtension(ext string) bool {
	return strings.HasSuffix(n.norm, strings.ToLower(ext))
}

// Ext returns the lowercased extension including the leading dot, or ""
// if the name has none.
func (n Name) Ext() string {
	idx := strings.LastIndexByte(n.norm, '.')
	slash := strings.LastIndexByte(n.norm, '/')
	if idx <= slash {
		return ""
	}
	return n.norm[idx:]
}

// TrimExtension returns a new Name with any extension removed.
func (n Name) TrimExtension() Name {
	ext := n.Ext()
	if ext == "" {
		return n
	}
	return Name{
		norm:     strings.TrimSuffix(n.norm, ext),
		original: strings.TrimSuffix(n.original, n.original[len(n.original)-len(ext):]),
	}
}

// WithExtension returns a new Name with its extension (if any) replaced by
// ext (which should include the leading dot).
func (n Name) WithExtension(ext string) Name {
	base := n.TrimExtension()
	return Name{norm: base.norm + strings.ToLower(ext), original: base.original + ext}
}

// Set is an ordered-insertion set of Names, keyed by their canonical form.
type Set struct {
	index map[string]Name
	order []string
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{index: make(map[string]Name)}
}

// Add inserts n if not already present. Returns true if it was newly added.
func (s *Set) Add(n Name) bool {
	if n.IsZero() {
		return false
	}
	if _, ok := s.index[n.norm]; ok {
		return false
	}
	s.index[n.norm] = n
	s.order = append(s.order, n.norm)
	return true
}

// Contains reports whether n is a member of s.
func (s *Set) Contains(n Name) bool {
	_, ok := s.index[n.norm]
	return ok
}

// ContainsKey reports whether the canonical key is a member of s.
func (s *Set) ContainsKey(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int { return len(s.order) }

// Slice returns members in insertion order.
func (s *Set) Slice() []Name {
	out := make([]Name, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.index[k])
	}
	return out
}

// Union returns a new Set containing the members of s and other.
func (s *Set) Union(other *Set) *Set {
	out := NewSet()
	for _, n := range s.Slice() {
		out.Add(n)
	}
	if other != nil {
		for _, n := range other.Slice() {
			out.Add(n)
		}
	}
	return out
}
