package eventlog

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mbrock/capline/pkg/capture"
)

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf, false)
	if err := s.Emit(capture.Stdout, []byte("hello")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := s.Emit(capture.Stderr, []byte("oops")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if got, want := buf.String(), "hello\noops\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWriterSinkPrefix(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf, true)
	s.Emit(capture.Stdout, []byte("hello"))
	s.Emit(capture.Stderr, []byte("oops"))
	if got, want := buf.String(), "stdout: hello\nstderr: oops\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

type failSink struct {
	err error
}

func (s *failSink) Emit(capture.StreamName, []byte) error { return s.err }
func (s *failSink) Close() error                          { return s.err }

func TestMultiSink(t *testing.T) {
	var a, b bytes.Buffer
	boom := errors.New("boom")
	m := MultiSink{NewWriterSink(&a, false), &failSink{err: boom}, NewWriterSink(&b, false)}
	if err := m.Emit(capture.Stdout, []byte("x")); !errors.Is(err, boom) {
		t.Fatalf("emit error: got %v, want %v", err, boom)
	}
	if a.String() != "x\n" || b.String() != "x\n" {
		t.Fatalf("fanout incomplete: a=%q b=%q", a.String(), b.String())
	}
	if err := m.Close(); !errors.Is(err, boom) {
		t.Fatalf("close error: got %v, want %v", err, boom)
	}
}
