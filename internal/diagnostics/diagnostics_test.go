package diagnostics

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := New(Environment, "bad layout")
	if e.Error() != "environment: bad layout" {
		t.Errorf("Error() = %q", e.Error())
	}

	withLine := New(InvalidData, "unexpected token").AtLine("a.map", 42)
	if withLine.Error() != "invalid-data: a.map:42: unexpected token" {
		t.Errorf("Error() = %q", withLine.Error())
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(IO, cause, "write %s", "a.pk3")

	if !errors.Is(wrapped, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if wrapped.Kind != IO {
		t.Errorf("Kind = %v, want IO", wrapped.Kind)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		Environment:  "environment",
		InvalidData:  "invalid-data",
		MissingAsset: "missing-asset",
		IO:           "io",
		Canceled:     "canceled",
		Internal:     "internal",
		Kind(99):     "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestCollectorDedupesIdenticalDiagnostics(t *testing.T) {
	c := NewCollector()
	c.Warnf(MissingAsset, "textures/x.tga", "missing resource reference: %s", "textures/x.tga")
	c.Warnf(MissingAsset, "textures/x.tga", "missing resource reference: %s", "textures/x.tga")
	c.Warnf(MissingAsset, "textures/y.tga", "missing resource reference: %s", "textures/y.tga")

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2 after deduping an identical entry", c.Len())
	}
}

func TestCollectorIsConcurrencySafe(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Warnf(IO, "f", "failure %d", i%5)
		}(i)
	}
	wg.Wait()

	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5 distinct messages", c.Len())
	}
}

func TestEntriesReturnsSnapshot(t *testing.T) {
	c := NewCollector()
	c.Warnf(IO, "f", "one")
	snap := c.Entries()
	c.Warnf(IO, "f", "two")

	if len(snap) != 1 {
		t.Errorf("snapshot len = %d, want 1 (unaffected by later Add)", len(snap))
	}
}

func TestNewLoggerWritesLeveledOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	logger.Infof("packaged %s", "a.pk3")
	if !strings.Contains(buf.String(), "packaged a.pk3") {
		t.Errorf("output = %q, want it to contain the formatted message", buf.String())
	}

	buf.Reset()
	logger.Debugf("should not appear at info level")
	if buf.Len() != 0 {
		t.Errorf("expected Debugf to be suppressed at the default info level, got %q", buf.String())
	}
}

func TestNewDebugLoggerEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDebugLogger(&buf)

	logger.Debugf("verbose detail")
	if !strings.Contains(buf.String(), "verbose detail") {
		t.Errorf("output = %q, want debug line present", buf.String())
	}
}

func TestLoggerWithAttachesKeyvals(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf).With("map", "a")

	logger.Infof("packaged")
	if !strings.Contains(buf.String(), "map=a") {
		t.Errorf("output = %q, want map=a keyval present", buf.String())
	}
}

func TestNopDiscardsEverything(t *testing.T) {
	var n Nop
	n.Debugf("x")
	n.Infof("x")
	n.Warnf("x")
	n.Errorf("x")
	if _, ok := n.With("k", "v").(Nop); !ok {
		t.Error("expected Nop.With to return a Nop")
	}
}

func TestHumanBytes(t *testing.T) {
	if got := HumanBytes(1024); got == "" {
		t.Error("expected a non-empty human-readable byte size")
	}
}
