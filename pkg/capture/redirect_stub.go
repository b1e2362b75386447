//go:build !unix

package capture

import "os"

// Redirect requires descriptor duplication syscalls that are only wired up
// on unix platforms. Elsewhere it exists so callers compile, but cannot be
// created; use Wrapper instead.
type Redirect struct{}

// NewRedirect reports ErrUnsupported on this platform.
func NewRedirect(cfg Config) (*Redirect, error) {
	return nil, ErrUnsupported
}

// Install reports ErrUnsupported on this platform.
func (r *Redirect) Install() error { return ErrUnsupported }

// Uninstall reports ErrUnsupported on this platform.
func (r *Redirect) Uninstall() error { return ErrUnsupported }

// Rows reports zero on this platform.
func (r *Redirect) Rows() int { return 0 }

func (r *Redirect) activate() error { return ErrUnsupported }
func (r *Redirect) deactivate()     {}

// Dup reports ErrUnsupported on this platform.
func (s *Stream) Dup() (*os.File, error) { return nil, ErrUnsupported }
