// Package executor abstracts starting the captured child process, so the
// runner can be driven by registered in-process fakes in tests.
package executor

import (
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Process is a started command.
type Process interface {
	// Wait blocks until the process exits and returns its exit code.
	Wait() (exitCode int, err error)
	// Kill forcibly terminates the process.
	Kill() error
}

// Executor starts processes.
type Executor interface {
	// Start runs a command with the given standard streams. When stdout or
	// stderr is an *os.File the child inherits its descriptor directly,
	// which is what lets a descriptor-level capture observe the child.
	Start(cmd []string, stdin io.Reader, stdout, stderr io.Writer) (Process, error)

	// StartPTY runs a command as a session leader with the PTY slave as
	// its controlling terminal and all three standard streams.
	StartPTY(cmd []string, slave *os.File) (Process, error)
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() (int, error) {
	if err := p.cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 1, err
	}
	return 0, nil
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// ExecExecutor starts real processes with os/exec.
type ExecExecutor struct{}

// Default returns the real-process executor.
func Default() Executor { return &ExecExecutor{} }

func (e *ExecExecutor) Start(cmdArgs []string, stdin io.Reader, stdout, stderr io.Writer) (Process, error) {
	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

func (e *ExecExecutor) StartPTY(cmdArgs []string, slave *os.File) (Process, error) {
	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}
