// Package runner executes a child command with its console output
// captured: finalized lines flow to an event log sink while the raw bytes
// stay visible on the original streams.
//
// Two modes exist. The default redirects the stdout and stderr
// descriptors, so the child writes into capture pipes without knowing it.
// TTY mode runs the child on a pseudo-terminal instead, for programs that
// change behavior when their output is not a terminal.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mbrock/capline/internal/eventlog"
	"github.com/mbrock/capline/internal/executor"
	"github.com/mbrock/capline/pkg/capture"
	"github.com/mbrock/capline/pkg/vterm"
)

// Config configures a capture run.
type Config struct {
	// Command is the child argv.
	Command []string

	// TTY selects pseudo-terminal mode. Both of the child's output
	// streams then arrive combined on the PTY and are logged as stdout.
	TTY bool

	// Rows and Cols size the pseudo-terminal; zero selects 24x80.
	Rows, Cols int

	// Scrollback is the line emulator's revision window in rows.
	Scrollback int

	// Sink receives every finalized line.
	Sink eventlog.Sink

	// Executor starts the child; nil selects real processes.
	Executor executor.Executor

	// OpenPTY opens the terminal pair in TTY mode; nil selects a real PTY.
	OpenPTY func() (PTYPair, error)

	// Stdout and Stderr are the streams to capture and forward to; nil
	// selects the process's own.
	Stdout *capture.Stream
	Stderr *capture.Stream

	// Stdin is the child's standard input in redirect mode.
	Stdin io.Reader
}

// Runner runs one captured command.
type Runner struct {
	cfg Config
}

// New validates the config and fills in defaults.
func New(cfg Config) (*Runner, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("runner: no command given")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("runner: no sink given")
	}
	if cfg.Executor == nil {
		cfg.Executor = executor.Default()
	}
	if cfg.OpenPTY == nil {
		cfg.OpenPTY = OpenRealPTY
	}
	if cfg.Stdout == nil {
		s, err := capture.Lookup(capture.Stdout)
		if err != nil {
			return nil, err
		}
		cfg.Stdout = s
	}
	if cfg.Stderr == nil {
		s, err := capture.Lookup(capture.Stderr)
		if err != nil {
			return nil, err
		}
		cfg.Stderr = s
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 24
	}
	if cfg.Cols <= 0 {
		cfg.Cols = 80
	}
	return &Runner{cfg: cfg}, nil
}

// Run executes the command and blocks until it exits and every captured
// line has been delivered to the sink. It returns the child's exit code.
// Cancelling the context kills the child; captured output is still
// flushed.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if r.cfg.TTY {
		return r.runTTY(ctx)
	}
	return r.runRedirect(ctx)
}

// emitLine hands one finalized line to the sink.
func (r *Runner) emitLine(stream capture.StreamName, line []byte) {
	if err := r.cfg.Sink.Emit(stream, line); err != nil {
		fmt.Fprintf(os.Stderr, "capline: emitting %s line: %v\n", stream, err)
	}
}

// runRedirect substitutes both stream descriptors with capture pipes and
// runs the child with the (now redirected) stream files, so everything the
// child writes is forwarded and mirrored.
func (r *Runner) runRedirect(ctx context.Context) (int, error) {
	outRed, err := capture.NewRedirect(capture.Config{
		Stream:     capture.Stdout,
		Target:     r.cfg.Stdout,
		Scrollback: r.cfg.Scrollback,
		Callbacks: []capture.LineFunc{func(line []byte) {
			r.emitLine(capture.Stdout, line)
		}},
	})
	if err != nil {
		return -1, err
	}
	errRed, err := capture.NewRedirect(capture.Config{
		Stream:     capture.Stderr,
		Target:     r.cfg.Stderr,
		Scrollback: r.cfg.Scrollback,
		Callbacks: []capture.LineFunc{func(line []byte) {
			r.emitLine(capture.Stderr, line)
		}},
	})
	if err != nil {
		return -1, err
	}

	if err := outRed.Install(); err != nil {
		return -1, err
	}
	if err := errRed.Install(); err != nil {
		outRed.Uninstall()
		return -1, err
	}
	defer func() {
		if err := errRed.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "capline: releasing stderr capture: %v\n", err)
		}
		if err := outRed.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "capline: releasing stdout capture: %v\n", err)
		}
	}()

	proc, err := r.cfg.Executor.Start(r.cfg.Command, r.cfg.Stdin, r.cfg.Stdout.File(), r.cfg.Stderr.File())
	if err != nil {
		return -1, fmt.Errorf("runner: starting %s: %w", r.cfg.Command[0], err)
	}
	return r.await(ctx, proc, nil)
}

// runTTY runs the child as a session leader on a pseudo-terminal. The
// master side is pumped into a line emulator and forwarded to stdout, so
// the child sees a terminal while its output is still logged line by line.
func (r *Runner) runTTY(ctx context.Context) (int, error) {
	pair, err := r.cfg.OpenPTY()
	if err != nil {
		return -1, err
	}
	if err := pair.SetSize(uint16(r.cfg.Rows), uint16(r.cfg.Cols)); err != nil {
		pair.Close()
		return -1, fmt.Errorf("runner: sizing pty: %w", err)
	}

	emu := vterm.New(r.cfg.Scrollback, func(line []byte) {
		r.emitLine(capture.Stdout, line)
	})

	proc, err := r.cfg.Executor.StartPTY(r.cfg.Command, pair.Slave())
	if err != nil {
		pair.Close()
		return -1, fmt.Errorf("runner: starting %s: %w", r.cfg.Command[0], err)
	}
	pair.CloseSlave()

	// Pump PTY output until the child's side closes. The read loop ends
	// with EOF on a fake pair or EIO on a real PTY after exit.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		master := pair.Master()
		out := r.cfg.Stdout.File()
		buf := make([]byte, 4096)
		for {
			n, err := master.Read(buf)
			if n > 0 {
				out.Write(buf[:n])
				emu.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	code, err := r.await(ctx, proc, pair)
	<-pumpDone
	pair.Close()
	emu.Flush()
	return code, err
}

// await waits for the child, killing it when the context is cancelled.
// In TTY mode the pair is closed on cancel to unblock the pump.
func (r *Runner) await(ctx context.Context, proc executor.Process, pair PTYPair) (int, error) {
	waited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			proc.Kill()
			if pair != nil {
				pair.Close()
			}
		case <-waited:
		}
	}()
	code, err := proc.Wait()
	close(waited)
	if err != nil {
		return code, fmt.Errorf("runner: waiting for %s: %w", r.cfg.Command[0], err)
	}
	if ctx.Err() != nil {
		return code, ctx.Err()
	}
	return code, nil
}
