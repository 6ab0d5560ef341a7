package diagnostics

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Logger is the narrow logging collaborator every pipeline component uses.
// No package in this module calls a concrete logging library directly:
// pipeline.Run takes a Logger, and the other packages report through a
// Diagnostics collector.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	With(keyvals ...any) Logger
}

// charmLogger adapts charmbracelet/log to the Logger interface.
type charmLogger struct {
	l *log.Logger
}

// NewLogger returns the default Logger implementation, writing leveled,
// timestamped, caller-annotated lines to w.
func NewLogger(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	l := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "pack3r",
	})
	l.SetLevel(log.InfoLevel)
	return &charmLogger{l: l}
}

// NewDebugLogger is NewLogger with the debug level enabled, for verbose runs.
func NewDebugLogger(w io.Writer) Logger {
	cl := NewLogger(w).(*charmLogger)
	cl.l.SetLevel(log.DebugLevel)
	return cl
}

func (c *charmLogger) Debugf(format string, args ...any) { c.l.Debugf(format, args...) }
func (c *charmLogger) Infof(format string, args ...any)  { c.l.Infof(format, args...) }
func (c *charmLogger) Warnf(format string, args ...any)  { c.l.Warnf(format, args...) }
func (c *charmLogger) Errorf(format string, args ...any) { c.l.Errorf(format, args...) }

func (c *charmLogger) With(keyvals ...any) Logger {
	return &charmLogger{l: c.l.With(keyvals...)}
}

// Nop is a Logger that discards everything, used in tests and dry runs
// that don't care about log output.
type Nop struct{}

func (Nop) Debugf(string, ...any) {}
func (Nop) Infof(string, ...any)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Errorf(string, ...any) {}
func (Nop) With(...any) Logger    { return Nop{} }

// HumanBytes formats a byte count the way pipeline.Run's summary line
// reports the archive size.
func HumanBytes(n int64) string { return humanize.Bytes(uint64(n)) }
