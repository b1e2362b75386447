// Package eventlog persists finalized console lines. A Sink receives each
// line once, tagged with the stream it came from; implementations write to
// plain files, to the systemd journal, or fan out to several stores.
package eventlog

import (
	"fmt"
	"io"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"

	"github.com/mbrock/capline/pkg/capture"
)

// Journal field names for captured lines.
const (
	FieldStream  = "CAPLINE_STREAM"
	FieldSession = "CAPLINE_SESSION"
)

// Sink stores finalized lines. Emit may be called from a capture pump
// goroutine; implementations must be safe for concurrent use.
type Sink interface {
	Emit(stream capture.StreamName, line []byte) error
	Close() error
}

// WriterSink writes one line per Emit to an io.Writer, optionally prefixed
// with the stream name. It serializes writes, so interleaved stdout and
// stderr captures never shear.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	prefix bool
}

// NewWriterSink creates a sink around w. With prefix set, each line is
// written as "stream: line".
func NewWriterSink(w io.Writer, prefix bool) *WriterSink {
	return &WriterSink{w: w, prefix: prefix}
}

func (s *WriterSink) Emit(stream capture.StreamName, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefix {
		if _, err := fmt.Fprintf(s.w, "%s: ", stream); err != nil {
			return err
		}
	}
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	_, err := s.w.Write([]byte{'\n'})
	return err
}

// Close closes the underlying writer when it is closeable.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// MultiSink fans each line out to every sink in order. Emit returns the
// first error but still delivers to the remaining sinks.
type MultiSink []Sink

func (m MultiSink) Emit(stream capture.StreamName, line []byte) error {
	var first error
	for _, s := range m {
		if err := s.Emit(stream, line); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// JournalSink sends each line to systemd-journald as a structured entry,
// tagged with the stream and an optional session identifier so runs can be
// queried back out with journalctl field matches.
type JournalSink struct {
	session string
}

// NewJournalSink creates a journald sink. It fails when no journal socket
// is reachable, so callers can fall back to a file sink.
func NewJournalSink(session string) (*JournalSink, error) {
	if !journal.Enabled() {
		return nil, fmt.Errorf("eventlog: systemd journal not available")
	}
	return &JournalSink{session: session}, nil
}

func (s *JournalSink) Emit(stream capture.StreamName, line []byte) error {
	fields := map[string]string{FieldStream: string(stream)}
	if s.session != "" {
		fields[FieldSession] = s.session
	}
	pri := journal.PriInfo
	if stream == capture.Stderr {
		pri = journal.PriWarning
	}
	return journal.Send(string(line), pri, fields)
}

func (s *JournalSink) Close() error { return nil }
