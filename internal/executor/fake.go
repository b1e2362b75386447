package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
)

// FakeCommand simulates a command. It runs on its own goroutine with the
// process's streams and returns the exit code; the context is cancelled
// when the process is killed.
type FakeCommand func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int

// FakeExecutor runs registered FakeCommands instead of real processes.
type FakeExecutor struct {
	mu       sync.RWMutex
	commands map[string]FakeCommand
}

// NewFakeExecutor creates an empty fake executor.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{commands: make(map[string]FakeCommand)}
}

// Register binds a command name (argv[0]) to a handler.
func (e *FakeExecutor) Register(name string, handler FakeCommand) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands[name] = handler
}

func (e *FakeExecutor) lookup(cmdArgs []string) (FakeCommand, error) {
	if len(cmdArgs) == 0 {
		return nil, fmt.Errorf("executor: empty command")
	}
	e.mu.RLock()
	handler, ok := e.commands[cmdArgs[0]]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("executor: executable %q not registered", cmdArgs[0])
	}
	return handler, nil
}

type fakeProcess struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	exitCode int
}

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, nil
}

func (p *fakeProcess) Kill() error {
	p.cancel()
	return nil
}

// dupFile duplicates f's descriptor when f is an *os.File. The caller is
// free to close its handle after Start returns while the handler goroutine
// keeps writing, which matches how a real child inherits descriptors.
func dupFile(v any, name string) (*os.File, error) {
	f, ok := v.(*os.File)
	if !ok || f == nil {
		return nil, nil
	}
	fd, err := syscall.Dup(int(f.Fd()))
	if err != nil {
		return nil, fmt.Errorf("executor: dup %s: %w", name, err)
	}
	return os.NewFile(uintptr(fd), name), nil
}

func run(handler FakeCommand, args []string, stdin io.Reader, stdout, stderr io.Writer, owned []*os.File) Process {
	ctx, cancel := context.WithCancel(context.Background())
	proc := &fakeProcess{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer func() {
			for _, f := range owned {
				f.Close()
			}
		}()
		code := handler(ctx, stdin, stdout, stderr, args)
		proc.mu.Lock()
		proc.exitCode = code
		proc.mu.Unlock()
		close(proc.done)
	}()
	return proc
}

func (e *FakeExecutor) Start(cmdArgs []string, stdin io.Reader, stdout, stderr io.Writer) (Process, error) {
	handler, err := e.lookup(cmdArgs)
	if err != nil {
		return nil, err
	}
	var owned []*os.File
	fail := func(err error) (Process, error) {
		for _, f := range owned {
			f.Close()
		}
		return nil, err
	}
	if f, err := dupFile(stdin, "stdin"); err != nil {
		return fail(err)
	} else if f != nil {
		owned = append(owned, f)
		stdin = f
	}
	if f, err := dupFile(stdout, "stdout"); err != nil {
		return fail(err)
	} else if f != nil {
		owned = append(owned, f)
		stdout = f
	}
	if f, err := dupFile(stderr, "stderr"); err != nil {
		return fail(err)
	} else if f != nil {
		owned = append(owned, f)
		stderr = f
	}
	return run(handler, cmdArgs, stdin, stdout, stderr, owned), nil
}

func (e *FakeExecutor) StartPTY(cmdArgs []string, slave *os.File) (Process, error) {
	handler, err := e.lookup(cmdArgs)
	if err != nil {
		return nil, err
	}
	f, err := dupFile(slave, "slave")
	if err != nil {
		return nil, err
	}
	return run(handler, cmdArgs, f, f, f, []*os.File{f}), nil
}
