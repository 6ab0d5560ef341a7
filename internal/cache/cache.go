// Package cache implements component K: persisting the built-in content
// index (component G) across invocations, keyed by the identity of the
// base archives it was built from.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/Aciz/Pack3r/internal/builtin"
	"github.com/Aciz/Pack3r/internal/resourcename"
)

// Key identifies a set of base archives by path, size, and mtime. Two runs
// against the same archives (unchanged on disk) produce the same Key.
type Key struct {
	archives []archiveStat
}

type archiveStat struct {
	Path  string
	Size  int64
	MTime int64
}

// NewKey stats every archive path and returns their identity as a Key.
func NewKey(archivePaths []string) (Key, error) {
	stats := make([]archiveStat, 0, len(archivePaths))
	for _, p := range archivePaths {
		info, err := os.Stat(p)
		if err != nil {
			return Key{}, fmt.Errorf("stat %s: %w", p, err)
		}
		stats = append(stats, archiveStat{Path: p, Size: info.Size(), MTime: info.ModTime().UnixNano()})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Path < stats[j].Path })
	return Key{archives: stats}, nil
}

// digest returns a stable hash of the key's contents, used as the cache
// filename so unrelated base-archive sets never collide in one cache dir.
func (k Key) digest() string {
	h := xxhash.New()
	for _, a := range k.archives {
		fmt.Fprintf(h, "%s|%d|%d\n", a.Path, a.Size, a.MTime)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// document is the on-disk cache shape: plain data, no methods or private
// fields, so yaml.v3 can marshal it directly.
type document struct {
	Archives  []string `yaml:"archives"`
	Shaders   []string `yaml:"shaders"`
	Resources []string `yaml:"resources"`
}

// Store is the built-in content cache: one YAML file per distinct Key
// under dir.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(key Key) string {
	return filepath.Join(s.dir, key.digest()+".yaml")
}

// Load reads a previously-saved index for key. The bool return is false on
// a cache miss (including a missing or unreadable file); callers treat
// that identically to "not cached", never as an error.
func (s *Store) Load(_ context.Context, key Key) (*builtin.Index, bool, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		return nil, false, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}

	idx := builtin.NewIndex()
	idx.Archives = doc.Archives
	for _, s := range doc.Shaders {
		idx.Shaders.Add(resourcename.New(s))
	}
	for _, r := range doc.Resources {
		idx.Resources.Add(resourcename.New(r))
	}
	return idx, true, nil
}

// Save persists idx under key.
func (s *Store) Save(_ context.Context, key Key, idx *builtin.Index) error {
	doc := document{Archives: idx.Archives}
	for _, n := range idx.Shaders.Slice() {
		doc.Shaders = append(doc.Shaders, n.String())
	}
	for _, n := range idx.Resources.Slice() {
		doc.Resources = append(doc.Resources, n.String())
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp := s.pathFor(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return os.Rename(tmp, s.pathFor(key))
}
