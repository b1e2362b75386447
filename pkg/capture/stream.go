package capture

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Stream is the per-stream installation stack: it owns the real *os.File,
// the ordered list of installed interceptors (last entry is active), and
// the mutex that guards both. The process-wide current write target lives
// here and changes only through Install and Uninstall.
type Stream struct {
	name StreamName
	file *os.File

	mu    sync.Mutex
	stack []interceptor
}

// interceptor is the stack's view of a Wrapper or Redirect. activate and
// deactivate are called with the stream mutex held; a deactivated
// (suspended) interceptor forwards bytes but stops mirroring them.
type interceptor interface {
	activate() error
	deactivate()
}

var (
	stdoutStream = NewStream(Stdout, os.Stdout)
	stderrStream = NewStream(Stderr, os.Stderr)
)

// Lookup returns the process-wide Stream for a standard stream name.
func Lookup(name StreamName) (*Stream, error) {
	switch name {
	case Stdout:
		return stdoutStream, nil
	case Stderr:
		return stderrStream, nil
	}
	return nil, fmt.Errorf("capture: unknown stream %q", name)
}

// NewStream builds a detached stream around an arbitrary file. It backs
// the process-wide stdout/stderr streams and lets tests capture pipes
// instead of the test runner's own output.
func NewStream(name StreamName, file *os.File) *Stream {
	return &Stream{name: name, file: file}
}

// Name returns the stream's name.
func (s *Stream) Name() StreamName { return s.name }

// File returns the underlying file. Its descriptor is the one a Redirect
// substitutes, so writes to it are observed by whatever is installed.
func (s *Stream) File() *os.File { return s.file }

// Writer returns the stream's current user-level write target: the
// topmost installed Wrapper, or the underlying file when none is
// installed. Application code that wants its writes captured by Wrapper
// interceptors writes through this.
func (s *Stream) Writer() io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.stack) - 1; i >= 0; i-- {
		if w, ok := s.stack[i].(*Wrapper); ok {
			return w
		}
	}
	return s.file
}

// installLocked pushes x as the active interceptor, suspending the
// previous one. A previously superseded x moves back to the top with its
// state intact.
func (s *Stream) installLocked(x interceptor) error {
	if n := len(s.stack); n > 0 && s.stack[n-1] == x {
		return ErrInstalled
	}
	for i, in := range s.stack {
		if in == x {
			s.stack = append(s.stack[:i], s.stack[i+1:]...)
			break
		}
	}
	var prev interceptor
	if n := len(s.stack); n > 0 {
		prev = s.stack[n-1]
		prev.deactivate()
	}
	if err := x.activate(); err != nil {
		if prev != nil {
			prev.activate()
		}
		return err
	}
	s.stack = append(s.stack, x)
	return nil
}

// ensureTopLocked verifies that x is the stream's active interceptor.
func (s *Stream) ensureTopLocked(x interceptor) error {
	if n := len(s.stack); n > 0 && s.stack[n-1] == x {
		return nil
	}
	for _, in := range s.stack {
		if in == x {
			return fmt.Errorf("capture: %s interceptor is suspended; uninstall the active one first", s.name)
		}
	}
	return ErrNotInstalled
}

// popLocked removes the active interceptor x and resumes the prior one.
func (s *Stream) popLocked(x interceptor) {
	s.stack = s.stack[:len(s.stack)-1]
	x.deactivate()
	if n := len(s.stack); n > 0 {
		s.stack[n-1].activate()
	}
}

func (s *Stream) install(x interceptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installLocked(x)
}

func (s *Stream) uninstall(x interceptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureTopLocked(x); err != nil {
		return err
	}
	s.popLocked(x)
	return nil
}
