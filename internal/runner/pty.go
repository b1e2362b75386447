//go:build unix

package runner

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/creack/pty"
)

// PTYPair is a bidirectional terminal connection between the runner and
// the child process. The fake implementation lets tests drive the TTY path
// without a terminal device.
type PTYPair interface {
	// Master is the runner's side.
	Master() io.ReadWriteCloser
	// Slave is the file handed to the child.
	Slave() *os.File
	// SetSize sets the terminal dimensions.
	SetSize(rows, cols uint16) error
	// CloseSlave releases the slave once the child owns it.
	CloseSlave() error
	// Close closes both sides.
	Close() error
}

// RealPTY is a PTYPair backed by an actual pseudo-terminal.
type RealPTY struct {
	master *os.File
	slave  *os.File
}

// OpenRealPTY opens a pseudo-terminal pair.
func OpenRealPTY() (PTYPair, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("runner: opening pty: %w", err)
	}
	return &RealPTY{master: master, slave: slave}, nil
}

func (p *RealPTY) Master() io.ReadWriteCloser { return p.master }
func (p *RealPTY) Slave() *os.File            { return p.slave }

func (p *RealPTY) SetSize(rows, cols uint16) error {
	return pty.Setsize(p.master, &pty.Winsize{Rows: rows, Cols: cols})
}

func (p *RealPTY) CloseSlave() error {
	if p.slave == nil {
		return nil
	}
	err := p.slave.Close()
	p.slave = nil
	return err
}

func (p *RealPTY) Close() error {
	p.master.Close()
	return p.CloseSlave()
}

// FakePTY is a PTYPair over a Unix socket pair. Socket pairs are
// bidirectional like a real PTY, unlike pipes.
type FakePTY struct {
	master *os.File
	slave  *os.File
}

// OpenFakePTY creates a socket-pair-backed PTYPair for tests.
func OpenFakePTY() (PTYPair, error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("runner: creating socket pair: %w", err)
	}
	return &FakePTY{
		master: os.NewFile(uintptr(fds[0]), "fakepty-master"),
		slave:  os.NewFile(uintptr(fds[1]), "fakepty-slave"),
	}, nil
}

func (p *FakePTY) Master() io.ReadWriteCloser { return p.master }
func (p *FakePTY) Slave() *os.File            { return p.slave }
func (p *FakePTY) SetSize(_, _ uint16) error  { return nil }

func (p *FakePTY) CloseSlave() error {
	if p.slave == nil {
		return nil
	}
	err := p.slave.Close()
	p.slave = nil
	return err
}

func (p *FakePTY) Close() error {
	p.master.Close()
	return p.CloseSlave()
}
