// Package skinref extracts the texture references a .skin file names, so a
// packaged skin still pulls in the textures it points at even though the
// shader/resource graph never sees them (a .skin is opaque to component E
// and C alike, a plain comma-separated surface→texture mapping).
package skinref

import (
	"bufio"
	"io"
	"strings"

	"github.com/Aciz/Pack3r/internal/resourcename"
)

// Parse reads a .skin file (lines of "surface,texture_path") and returns
// the referenced texture names.
func Parse(r io.Reader) ([]resourcename.Name, error) {
	scanner := bufio.NewScanner(r)

	var out []resourcename.Name
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		parts := strings.SplitN(line, ",", 2)
		if len(parts) < 2 {
			continue
		}
		path := strings.TrimSpace(parts[1])
		if path == "" {
			continue
		}
		out = append(out, resourcename.New(path))
	}
	return out, scanner.Err()
}
