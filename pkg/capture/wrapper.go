package capture

import (
	"github.com/mbrock/capline/pkg/vterm"
)

// Wrapper intercepts writes made through the stream's user-level handle
// (Stream.Writer). While active it forwards every write unchanged to the
// underlying file and mirrors the same bytes into its emulator; while
// suspended it forwards only. Writes made directly to the OS descriptor by
// foreign code bypass it; use Redirect for those.
//
// A Wrapper carries no internal locking: concurrent writers to the same
// stream need the same external synchronization the unwrapped stream
// would.
type Wrapper struct {
	stream *Stream
	cbs    []LineFunc
	emu    *vterm.Emulator
	active bool
}

// NewWrapper creates a detached user-level interceptor. It observes
// nothing until Install.
func NewWrapper(cfg Config) (*Wrapper, error) {
	s, err := cfg.target()
	if err != nil {
		return nil, err
	}
	w := &Wrapper{stream: s, cbs: cfg.Callbacks}
	w.emu = vterm.New(cfg.Scrollback, func(line []byte) {
		dispatch(s.name, w.cbs, line)
	})
	return w, nil
}

// Install makes the wrapper the stream's active interceptor. The
// previously active one is suspended with its emulator state intact;
// reinstalling a suspended wrapper resumes its virtual screen unchanged.
// Installing the wrapper while it is already active is a usage error.
func (w *Wrapper) Install() error {
	return w.stream.install(w)
}

// Uninstall flushes the wrapper's remaining buffered rows through its
// callbacks, detaches it, and restores the prior active interceptor (or
// the unwrapped stream). Only the active interceptor may uninstall.
func (w *Wrapper) Uninstall() error {
	if err := w.stream.uninstall(w); err != nil {
		return err
	}
	w.emu.Flush()
	return nil
}

// Write forwards p to the underlying stream file and, while the wrapper is
// active, mirrors it into the emulator.
func (w *Wrapper) Write(p []byte) (int, error) {
	n, err := w.stream.file.Write(p)
	if w.active && n > 0 {
		w.emu.Write(p[:n])
	}
	return n, err
}

// Rows reports the emulator's buffered-row count, the bounded-memory
// diagnostic.
func (w *Wrapper) Rows() int {
	return w.emu.Rows()
}

func (w *Wrapper) activate() error { w.active = true; return nil }
func (w *Wrapper) deactivate()     { w.active = false }
