package login

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Prompt describes one question to the user.
type Prompt struct {
	Label string
	Hint  string
	// Secret answers are not echoed.
	Secret bool
}

// Prompter collects answers from the user.
type Prompter interface {
	// Ask blocks until the user answered or ctx is done.
	Ask(ctx context.Context, p Prompt) (string, error)
	// Notify shows a message that needs no answer.
	Notify(message string)
}

type readResult struct {
	line string
	err  error
}

// Terminal prompts on a line based terminal. A question abandoned through its context
// leaves the read in flight; the next question picks up that line. A secret question that
// finds an echoing read in flight takes that line as a confirmation and reads the secret
// afterwards.
type Terminal struct {
	reader *bufio.Reader
	// readSecret reads one line without echo. It is nil when in is not a terminal.
	readSecret func() ([]byte, error)

	mu            sync.Mutex
	out           io.Writer
	pending       chan readResult
	pendingSecret bool
}

// NewTerminal prompts on in and out. Secrets are read without echo when in is a terminal.
func NewTerminal(in *os.File, out io.Writer) *Terminal {
	t := NewTerminalReader(in, out)
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		t.readSecret = func() ([]byte, error) { return term.ReadPassword(fd) }
	}
	return t
}

// NewTerminalReader prompts on arbitrary streams; secrets are echoed.
func NewTerminalReader(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

func (t *Terminal) Ask(ctx context.Context, p Prompt) (string, error) {
	t.mu.Lock()
	secret := p.Secret && t.readSecret != nil
	ch := t.pending
	switch {
	case ch == nil:
		t.printPrompt(p)
		ch = make(chan readResult, 1)
		go t.read(ch, secret)
		t.pending, t.pendingSecret = ch, secret
	case secret && !t.pendingSecret:
		fmt.Fprint(t.out, "Press Enter to continue: ")
		next := make(chan readResult, 1)
		go t.readAfter(ch, next, p)
		ch = next
		t.pending, t.pendingSecret = ch, true
	default:
		t.printPrompt(p)
	}
	t.mu.Unlock()

	select {
	case r := <-ch:
		t.mu.Lock()
		t.pending = nil
		t.mu.Unlock()
		return r.line, r.err
	case <-ctx.Done():
		t.mu.Lock()
		fmt.Fprintln(t.out)
		t.mu.Unlock()
		return "", ctx.Err()
	}
}

func (t *Terminal) Notify(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, message)
}

func (t *Terminal) printPrompt(p Prompt) {
	if p.Hint != "" {
		fmt.Fprintf(t.out, "%s (%s): ", p.Label, p.Hint)
	} else {
		fmt.Fprintf(t.out, "%s: ", p.Label)
	}
}

// readAfter drops the echoed line of an earlier read and then reads the secret asked by p.
func (t *Terminal) readAfter(echoed <-chan readResult, ch chan<- readResult, p Prompt) {
	if r := <-echoed; r.err != nil {
		ch <- r
		return
	}
	t.mu.Lock()
	t.printPrompt(p)
	t.mu.Unlock()
	t.read(ch, true)
}

func (t *Terminal) read(ch chan<- readResult, secret bool) {
	if secret {
		b, err := t.readSecret()
		t.mu.Lock()
		fmt.Fprintln(t.out)
		t.mu.Unlock()
		ch <- readResult{line: string(b), err: err}
		return
	}

	line, err := t.reader.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	ch <- readResult{line: strings.TrimRight(line, "\r\n"), err: err}
}
