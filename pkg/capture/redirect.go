//go:build unix

package capture

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mbrock/capline/pkg/vterm"
)

// drainTimeout bounds the wait for the pump to finish reading the pipe
// after the original descriptor has been restored.
const drainTimeout = 3 * time.Second

// Redirect intercepts a stream at the file-descriptor level. Install
// duplicates the real descriptor, substitutes a pipe for it, and starts a
// background pump that copies every byte to the duplicated original, so
// output stays visible, while mirroring it into the emulator. This
// captures writes a user-level interceptor never sees: child processes
// inheriting the descriptor, cgo libraries, anything calling write(2)
// directly.
//
// The emulator and the suspended flag are guarded by a mutex shared
// between the pump and Install/Uninstall.
type Redirect struct {
	stream *Stream
	cbs    []LineFunc

	mu        sync.Mutex
	emu       *vterm.Emulator
	suspended bool
	restored  bool

	started bool
	savedFd int      // dup of the original descriptor; the pump's forward target
	keeper  *os.File // our handle on the pipe's write end; closing it lets the pump drain to EOF
	pipeR   *os.File
	done    chan struct{}
}

// NewRedirect creates a detached descriptor-level interceptor.
func NewRedirect(cfg Config) (*Redirect, error) {
	s, err := cfg.target()
	if err != nil {
		return nil, err
	}
	r := &Redirect{stream: s, cbs: cfg.Callbacks}
	r.emu = vterm.New(cfg.Scrollback, func(line []byte) {
		dispatch(s.name, r.cbs, line)
	})
	return r, nil
}

// Install substitutes the stream's descriptor with the capture pipe and
// starts the pump. The substitution is a single dup2, atomic with respect
// to concurrent writers. Reinstalling a suspended Redirect resumes
// mirroring with its emulator state intact.
func (r *Redirect) Install() error {
	s := r.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	if !r.started {
		if err := r.start(); err != nil {
			return err
		}
		r.started = true
	}
	return s.installLocked(r)
}

// Uninstall restores the original descriptor, drains the pump, and flushes
// the emulator through the callbacks. The descriptor swap is the stop
// signal: it is atomic, so no byte is lost; everything written before it
// sits in the pipe and is read before the pump exits. The drain wait is
// bounded by drainTimeout.
func (r *Redirect) Uninstall() error {
	s := r.stream
	s.mu.Lock()
	if err := s.ensureTopLocked(r); err != nil {
		s.mu.Unlock()
		return err
	}

	r.restore()
	r.keeper.Close()
	select {
	case <-r.done:
	case <-time.After(drainTimeout):
		fmt.Fprintf(os.Stderr, "capline: %s pump did not drain within %v\n", s.name, drainTimeout)
	}
	r.pipeR.Close()
	unix.Close(r.savedFd)

	r.mu.Lock()
	r.started = false
	r.restored = false
	r.mu.Unlock()

	s.popLocked(r)
	s.mu.Unlock()

	// Flush outside the stream lock so callbacks may write to the stream.
	r.mu.Lock()
	r.emu.Flush()
	r.mu.Unlock()
	return nil
}

// Rows reports the emulator's buffered-row count.
func (r *Redirect) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emu.Rows()
}

func (r *Redirect) activate() error {
	r.mu.Lock()
	r.suspended = false
	r.mu.Unlock()
	return nil
}

func (r *Redirect) deactivate() {
	r.mu.Lock()
	r.suspended = true
	r.mu.Unlock()
}

// start sets up the descriptor machinery: save the original, splice the
// pipe in, launch the pump. Called with the stream mutex held.
func (r *Redirect) start() error {
	fd := int(r.stream.file.Fd())
	saved, err := unix.Dup(fd)
	if err != nil {
		return fmt.Errorf("capture: saving %s descriptor: %w", r.stream.name, err)
	}
	unix.CloseOnExec(saved)
	pr, pw, err := os.Pipe()
	if err != nil {
		unix.Close(saved)
		return fmt.Errorf("capture: creating %s pipe: %w", r.stream.name, err)
	}
	if err := dup2(int(pw.Fd()), fd); err != nil {
		unix.Close(saved)
		pr.Close()
		pw.Close()
		return fmt.Errorf("capture: redirecting %s: %w", r.stream.name, err)
	}
	r.savedFd = saved
	r.pipeR = pr
	r.keeper = pw
	r.done = make(chan struct{})
	go r.pump()
	return nil
}

// pump copies bytes from the pipe to the original descriptor and, while
// the redirect is not suspended, mirrors them into the emulator. It exits
// once every write end of the pipe is closed, which happens after the
// descriptor is restored and the keeper released.
func (r *Redirect) pump() {
	defer close(r.done)
	buf := make([]byte, 4096)
	for {
		n, err := r.pipeR.Read(buf)
		if n > 0 {
			writeAll(r.savedFd, buf[:n])
			r.mu.Lock()
			if !r.suspended {
				r.emu.Write(buf[:n])
			}
			r.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				// fail safe: put the real descriptor back before bailing
				r.restore()
				fmt.Fprintf(os.Stderr, "capline: %s pump: %v\n", r.stream.name, err)
			}
			return
		}
	}
}

// restore points the stream descriptor back at the saved original. Safe to
// call more than once; only the first call swaps.
func (r *Redirect) restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.restored {
		return
	}
	r.restored = true
	if err := dup2(r.savedFd, int(r.stream.file.Fd())); err != nil {
		fmt.Fprintf(os.Stderr, "capline: restoring %s descriptor: %v\n", r.stream.name, err)
	}
}

// Dup returns a new file on a duplicate of the stream's current
// descriptor. Taken before installing a Redirect it provides a way to
// write to the real destination around the capture, for output that must
// not be intercepted.
func (s *Stream) Dup() (*os.File, error) {
	fd, err := unix.Dup(int(s.file.Fd()))
	if err != nil {
		return nil, fmt.Errorf("capture: duplicating %s descriptor: %w", s.name, err)
	}
	unix.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), string(s.name)), nil
}

func writeAll(fd int, b []byte) {
	for len(b) > 0 {
		n, err := unix.Write(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return
		}
		b = b[n:]
	}
}
