// Package capture intercepts a process's standard output and error streams
// and emits each visible line exactly once, after it can no longer be
// rewritten.
//
// Two interceptors are provided. Wrapper substitutes the user-level write
// target: it observes writes made through the stream's Writer handle and is
// cheap and synchronous. Redirect substitutes the OS file descriptor
// itself: a pipe and a background pump capture every byte written to the
// descriptor, including writes from code that bypasses Go's I/O layer
// entirely. Both forward the raw bytes unchanged to the real destination
// and mirror them into a virtual terminal emulator, which finalizes lines
// and hands them to the registered callbacks.
//
// Interceptors on one stream nest: installing a second one suspends the
// first, whose virtual screen is preserved and resumes when it is
// reinstalled. Uninstalls are last-in-first-out.
package capture

import (
	"errors"
	"fmt"
	"os"
)

// StreamName identifies an interceptable standard stream.
type StreamName string

// The capturable process streams.
const (
	Stdout StreamName = "stdout"
	Stderr StreamName = "stderr"
)

// LineFunc receives one finalized line. The slice is only valid for the
// duration of the call; callbacks that keep it must copy. A callback may
// run on the capture pump's goroutine and must not block indefinitely.
type LineFunc func(line []byte)

var (
	// ErrInstalled reports an Install of an interceptor that is already
	// the stream's active one.
	ErrInstalled = errors.New("capture: interceptor already active")

	// ErrNotInstalled reports an Uninstall without a matching Install.
	ErrNotInstalled = errors.New("capture: interceptor not installed")

	// ErrUnsupported reports that descriptor-level redirection is not
	// available on this platform.
	ErrUnsupported = errors.New("capture: descriptor redirection not supported on this platform")
)

// Config configures an interceptor.
type Config struct {
	// Stream names the process stream to capture.
	Stream StreamName

	// Callbacks receive finalized lines in registration order.
	Callbacks []LineFunc

	// Scrollback is the emulator's revision window in rows; zero selects
	// vterm.DefaultScrollback.
	Scrollback int

	// Target overrides the named process stream. Used by tests and by
	// callers capturing descriptors other than the process's own.
	Target *Stream
}

func (c Config) target() (*Stream, error) {
	if c.Target != nil {
		return c.Target, nil
	}
	return Lookup(c.Stream)
}

// dispatch invokes each callback with a finalized line, in registration
// order. A panicking callback is reported to stderr and skipped, so the
// remaining callbacks and all later lines are still delivered.
func dispatch(name StreamName, cbs []LineFunc, line []byte) {
	for _, cb := range cbs {
		invoke(name, cb, line)
	}
}

func invoke(name StreamName, cb LineFunc, line []byte) {
	defer func() {
		if v := recover(); v != nil {
			fmt.Fprintf(os.Stderr, "capline: %s line callback panicked: %v\n", name, v)
		}
	}()
	cb(line)
}
