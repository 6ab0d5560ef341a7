// Package diagnostics implements the typed error/warning taxonomy (§7) and
// the narrow Logger interface every other package in the pipeline logs
// through.
package diagnostics

import (
	"fmt"
	"sync"
)

// Kind classifies a diagnostic per §7 of the specification.
type Kind int

const (
	// Environment marks a layout assumption violation (map outside
	// etmain/maps/, missing scripts/, ...). Always fatal.
	Environment Kind = iota
	// InvalidData marks unexpected parser syntax. Always fatal.
	InvalidData
	// MissingAsset marks a referenced resource that could not be located.
	// Soft by default; promoted to fatal under RequireAllAssets.
	MissingAsset
	// IO marks a filesystem or archive-writer failure.
	IO
	// Canceled marks cooperative cancellation having been observed.
	Canceled
	// Internal marks an invariant violation.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Environment:
		return "environment"
	case InvalidData:
		return "invalid-data"
	case MissingAsset:
		return "missing-asset"
	case IO:
		return "io"
	case Canceled:
		return "canceled"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a typed diagnostic that also satisfies the error interface, for
// the fatal paths of §7.
type Error struct {
	Kind    Kind
	File    string
	Line    int
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.File != "" {
		if e.Line > 0 {
			return fmt.Sprintf("%s: %s:%d: %s", e.Kind, e.File, e.Line, e.Message)
		}
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New constructs an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind around an existing error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// AtLine attaches file/line context, mirroring how parsers report the
// location of a structural violation.
func (e *Error) AtLine(file string, line int) *Error {
	e.File = file
	e.Line = line
	return e
}

// Diagnostic is a single accumulated soft diagnostic (a warning, or a
// MissingAsset/IO failure that did not halt the run).
type Diagnostic struct {
	Kind    Kind
	File    string
	Message string
}

func (d Diagnostic) String() string {
	if d.File != "" {
		return fmt.Sprintf("[%s] %s: %s", d.Kind, d.File, d.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Kind, d.Message)
}

// Diagnostics is a concurrency-safe collector of soft diagnostics,
// deduplicating identical entries so a path revisited by multiple
// goroutines only warns once.
type Diagnostics struct {
	mu      sync.Mutex
	seen    map[string]bool
	entries []Diagnostic
}

// NewCollector returns an empty Diagnostics collector.
func NewCollector() *Diagnostics {
	return &Diagnostics{seen: make(map[string]bool)}
}

// Add records d unless an identical diagnostic was already recorded.
func (c *Diagnostics) Add(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := d.String()
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.entries = append(c.entries, d)
}

// Warnf is a convenience for Add that formats the message; the caller
// supplies the Kind and file.
func (c *Diagnostics) Warnf(kind Kind, file, format string, args ...any) {
	c.Add(Diagnostic{Kind: kind, File: file, Message: fmt.Sprintf(format, args...)})
}

// Len reports how many distinct diagnostics were recorded.
func (c *Diagnostics) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns a snapshot of the recorded diagnostics in recording order.
func (c *Diagnostics) Entries() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.entries))
	copy(out, c.entries)
	return out
}
