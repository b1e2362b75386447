package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
)

// capList collects finalized lines.
type capList struct {
	mu    sync.Mutex
	lines [][]byte
}

func (c *capList) append(line []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, append([]byte(nil), line...))
}

func (c *capList) get() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines
}

func checkLines(t *testing.T, got [][]byte, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q, want %d lines %q", len(got), got, len(want), want)
	}
	for i := range want {
		if !bytes.Equal(got[i], []byte(want[i])) {
			t.Fatalf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// newPipeStream builds a stream over a fresh pipe so tests never touch the
// test runner's own stdout. The returned fetch function closes the write
// side and returns everything forwarded through the stream.
func newPipeStream(t *testing.T, name StreamName) (*Stream, func() string) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		io.Copy(&buf, r)
	}()
	fetch := func() string {
		w.Close()
		<-done
		r.Close()
		return buf.String()
	}
	return NewStream(name, w), fetch
}

func newWrapper(t *testing.T, s *Stream, out *capList) *Wrapper {
	t.Helper()
	w, err := NewWrapper(Config{Target: s, Callbacks: []LineFunc{out.append}})
	if err != nil {
		t.Fatalf("NewWrapper: %v", err)
	}
	return w
}

func TestWrapperBasic(t *testing.T) {
	s, fetch := newPipeStream(t, Stdout)
	out := &capList{}
	w := newWrapper(t, s, out)
	if err := w.Install(); err != nil {
		t.Fatalf("install: %v", err)
	}
	fmt.Fprintln(s.Writer(), "Test")
	if err := w.Uninstall(); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	checkLines(t, out.get(), "Test")
	if got := fetch(); got != "Test\n" {
		t.Fatalf("forwarded %q, want %q", got, "Test\n")
	}
}

func TestWrapperReinstall(t *testing.T) {
	s, fetch := newPipeStream(t, Stdout)
	o1, o2 := &capList{}, &capList{}
	w1 := newWrapper(t, s, o1)
	w2 := newWrapper(t, s, o2)

	if err := w1.Install(); err != nil {
		t.Fatalf("install w1: %v", err)
	}
	fmt.Fprintln(s.Writer(), "ABCD")
	if err := w2.Install(); err != nil {
		t.Fatalf("install w2: %v", err)
	}
	fmt.Fprintln(s.Writer(), "WXYZ")
	if err := w1.Install(); err != nil {
		t.Fatalf("reinstall w1: %v", err)
	}
	fmt.Fprintln(s.Writer(), "1234")
	if err := w2.Install(); err != nil {
		t.Fatalf("reinstall w2: %v", err)
	}
	fmt.Fprintln(s.Writer(), "5678")
	if err := w2.Uninstall(); err != nil {
		t.Fatalf("uninstall w2: %v", err)
	}
	if err := w1.Uninstall(); err != nil {
		t.Fatalf("uninstall w1: %v", err)
	}

	checkLines(t, o1.get(), "ABCD", "1234")
	checkLines(t, o2.get(), "WXYZ", "5678")
	if got := fetch(); got != "ABCD\nWXYZ\n1234\n5678\n" {
		t.Fatalf("forwarded %q", got)
	}
}

func TestWrapperStylePassthrough(t *testing.T) {
	s, fetch := newPipeStream(t, Stdout)
	out := &capList{}
	w := newWrapper(t, s, out)
	if err := w.Install(); err != nil {
		t.Fatalf("install: %v", err)
	}
	input := "\x1b[31m\x1b[40m\x1b[1mHello\x01\x1b[22m\x1b[39m\n"
	io.WriteString(s.Writer(), input)
	if err := w.Uninstall(); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	checkLines(t, out.get(), "\x1b[31m\x1b[40m\x1b[1mHello")
	if got := fetch(); got != input {
		t.Fatalf("forwarded %q, want raw input unchanged", got)
	}
}

func TestInstallErrors(t *testing.T) {
	s, fetch := newPipeStream(t, Stdout)
	defer fetch()
	out := &capList{}
	w1 := newWrapper(t, s, out)
	w2 := newWrapper(t, s, out)

	if err := w1.Uninstall(); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("uninstall before install: got %v, want ErrNotInstalled", err)
	}
	if err := w1.Install(); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := w1.Install(); !errors.Is(err, ErrInstalled) {
		t.Fatalf("double install: got %v, want ErrInstalled", err)
	}
	if err := w2.Install(); err != nil {
		t.Fatalf("install w2: %v", err)
	}
	if err := w1.Uninstall(); err == nil {
		t.Fatal("uninstall of suspended interceptor should fail")
	}
	if err := w2.Uninstall(); err != nil {
		t.Fatalf("uninstall w2: %v", err)
	}
	if err := w1.Uninstall(); err != nil {
		t.Fatalf("uninstall w1: %v", err)
	}
}

func TestCallbackPanicIsolated(t *testing.T) {
	s, fetch := newPipeStream(t, Stdout)
	defer fetch()
	out := &capList{}
	boom := func(line []byte) { panic("boom") }
	w, err := NewWrapper(Config{Target: s, Callbacks: []LineFunc{boom, out.append}})
	if err != nil {
		t.Fatalf("NewWrapper: %v", err)
	}
	if err := w.Install(); err != nil {
		t.Fatalf("install: %v", err)
	}
	fmt.Fprintln(s.Writer(), "one")
	fmt.Fprintln(s.Writer(), "two")
	if err := w.Uninstall(); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	checkLines(t, out.get(), "one", "two")
}

func TestWriterFallback(t *testing.T) {
	s, fetch := newPipeStream(t, Stdout)
	defer fetch()
	if s.Writer() != s.File() {
		t.Fatal("Writer should be the underlying file when nothing is installed")
	}
	out := &capList{}
	w := newWrapper(t, s, out)
	if err := w.Install(); err != nil {
		t.Fatalf("install: %v", err)
	}
	if s.Writer() != w {
		t.Fatal("Writer should be the installed wrapper")
	}
	if err := w.Uninstall(); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if s.Writer() != s.File() {
		t.Fatal("Writer should revert to the file after uninstall")
	}
}

func TestLookup(t *testing.T) {
	if _, err := Lookup(Stdout); err != nil {
		t.Fatalf("Lookup(Stdout): %v", err)
	}
	if _, err := Lookup(Stderr); err != nil {
		t.Fatalf("Lookup(Stderr): %v", err)
	}
	if _, err := Lookup(StreamName("bogus")); err == nil {
		t.Fatal("Lookup of unknown stream should fail")
	}
}
