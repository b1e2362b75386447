//go:build !unix

package runner

import (
	"errors"
	"io"
	"os"
)

// PTYPair is a bidirectional terminal connection between the runner and
// the child process. No implementation exists on this platform.
type PTYPair interface {
	Master() io.ReadWriteCloser
	Slave() *os.File
	SetSize(rows, cols uint16) error
	CloseSlave() error
	Close() error
}

var errNoPTY = errors.New("runner: pseudo-terminals not supported on this platform")

// OpenRealPTY reports an error on this platform.
func OpenRealPTY() (PTYPair, error) { return nil, errNoPTY }

// OpenFakePTY reports an error on this platform.
func OpenFakePTY() (PTYPair, error) { return nil, errNoPTY }
