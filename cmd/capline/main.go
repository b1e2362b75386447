// capline - run a command with line-resolved console capture
//
// Usage:
//
//	capline [flags] -- <command> [args...]
//
// The command runs with its stdout and stderr redirected through capture
// pipes (or on a pseudo-terminal with --tty). Raw output stays visible;
// every finalized line, with progress-bar redraws collapsed to their last
// state, is written to a file, to systemd-journald, or both.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/mbrock/capline/internal/eventlog"
	"github.com/mbrock/capline/internal/runner"
	"github.com/mbrock/capline/pkg/capture"
	"github.com/mbrock/capline/pkg/vterm"
)

var (
	ttyFlag        bool
	rowsFlag       int
	colsFlag       int
	scrollbackFlag int
	outputFlag     string
	journalFlag    bool
	sessionFlag    string
	quietFlag      bool
)

func main() {
	flag.BoolVar(&ttyFlag, "tty", false, "Run the command on a pseudo-terminal")
	flag.IntVar(&rowsFlag, "rows", 24, "Terminal rows (for --tty mode)")
	flag.IntVar(&colsFlag, "cols", 80, "Terminal columns (for --tty mode)")
	flag.IntVar(&scrollbackFlag, "scrollback", vterm.DefaultScrollback, "Rows a line stays revisable before it is finalized")
	flag.StringVarP(&outputFlag, "output", "o", "", "Append finalized lines to this file")
	flag.BoolVar(&journalFlag, "journal", false, "Send finalized lines to systemd-journald")
	flag.StringVar(&sessionFlag, "session", "", "Session ID for journal entries (default: random)")
	flag.BoolVarP(&quietFlag, "quiet", "q", false, "Do not echo finalized lines to the terminal")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `capline - run a command with line-resolved console capture

Usage:
  capline [flags] -- <command> [args...]

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Args()
	if len(command) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	session := sessionFlag
	if session == "" {
		session = genSessionID()
	}

	sink, cleanup, err := buildSink(session)
	if err != nil {
		fatal("%v", err)
	}
	defer cleanup()

	r, err := runner.New(runner.Config{
		Command:    command,
		TTY:        ttyFlag,
		Rows:       rowsFlag,
		Cols:       colsFlag,
		Scrollback: scrollbackFlag,
		Sink:       sink,
		Stdin:      os.Stdin,
	})
	if err != nil {
		fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code, err := r.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			os.Exit(130)
		}
		fatal("%v", err)
	}
	os.Exit(code)
}

// buildSink assembles the sink stack from the flags. The echo sink writes
// to a duplicate of the stdout descriptor taken before any redirection, so
// echoed lines are not captured again.
func buildSink(session string) (eventlog.Sink, func(), error) {
	var sinks eventlog.MultiSink
	cleanup := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	if outputFlag != "" {
		f, err := os.OpenFile(outputFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening output file: %w", err)
		}
		sinks = append(sinks, eventlog.NewWriterSink(f, false))
	}

	if journalFlag {
		js, err := eventlog.NewJournalSink(session)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sinks = append(sinks, js)
	}

	if !quietFlag && outputFlag == "" {
		stdout, err := capture.Lookup(capture.Stdout)
		if err != nil {
			return nil, nil, err
		}
		echo, err := stdout.Dup()
		if err != nil {
			return nil, nil, err
		}
		prefix := term.IsTerminal(int(echo.Fd()))
		sinks = append(sinks, eventlog.NewWriterSink(echo, prefix))
	}

	if len(sinks) == 0 {
		sinks = append(sinks, eventlog.NewWriterSink(discardWriter{}, false))
	}
	return sinks, cleanup, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// genSessionID generates a short random session ID like "KXO284".
func genSessionID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const digits = "0123456789"

	b := make([]byte, 6)
	rand.Read(b)

	id := make([]byte, 6)
	for i := 0; i < 3; i++ {
		id[i] = letters[int(b[i])%len(letters)]
	}
	for i := 3; i < 6; i++ {
		id[i] = digits[int(b[i])%len(digits)]
	}
	return string(id)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "capline: "+format+"\n", args...)
	os.Exit(1)
}
