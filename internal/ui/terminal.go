package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dshills/hostconsole/internal/session"
)

// DefaultPrompt is printed before each input line.
const DefaultPrompt = ">> "

var (
	// ErrInputLocked is returned by Submit while a command is outstanding.
	ErrInputLocked = errors.New("terminal is waiting for a result")

	// ErrTerminalClosed is returned by Submit after Close.
	ErrTerminalClosed = errors.New("terminal is closed")
)

// Console is the part of the command queue a terminal talks to.
type Console interface {
	RegisterSession(panel session.Panel) session.ID
	UnregisterSession(id session.ID)
	Enqueue(id session.ID, text string) error
}

// Terminal is a headless console panel. It is one session: input is locked
// from Submit until the matching output arrives through AppendOutput.
type Terminal struct {
	mu         sync.Mutex
	console    Console
	id         session.ID
	out        io.Writer
	prompt     string
	transcript []string
	history    []string
	historyPos int
	locked     bool
	closed     bool
}

// NewTerminal creates a terminal registered with c. Output is echoed to w
// when w is not nil.
func NewTerminal(c Console, w io.Writer) *Terminal {
	t := &Terminal{
		console: c,
		out:     w,
		prompt:  DefaultPrompt,
	}
	t.id = c.RegisterSession(t)
	return t
}

// ID returns the terminal's session ID.
func (t *Terminal) ID() session.ID {
	return t.id
}

// SetPrompt changes the input prompt.
func (t *Terminal) SetPrompt(prompt string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prompt = prompt
}

// Prompt returns the input prompt.
func (t *Terminal) Prompt() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prompt
}

// Submit sends line as a command. Blank lines are ignored.
func (t *Terminal) Submit(line string) error {
	cmd := strings.TrimSpace(line)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTerminalClosed
	}
	if t.locked {
		t.mu.Unlock()
		return ErrInputLocked
	}
	if cmd == "" {
		t.writeLocked(t.prompt)
		t.mu.Unlock()
		return nil
	}
	t.history = append(t.history, cmd)
	t.historyPos = len(t.history)
	t.transcript = append(t.transcript, t.prompt+cmd)
	t.locked = true
	t.mu.Unlock()

	if err := t.console.Enqueue(t.id, cmd); err != nil {
		return fmt.Errorf("submit %q: %w", cmd, err)
	}
	return nil
}

// AppendOutput records text and unlocks input. It runs on the UI thread.
func (t *Terminal) AppendOutput(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if text != "" {
		t.transcript = append(t.transcript, text)
		t.writeLocked(text + "\n")
	}
	t.locked = false
	t.writeLocked(t.prompt)
}

func (t *Terminal) writeLocked(s string) {
	if t.out == nil {
		return
	}
	_, _ = io.WriteString(t.out, s)
}

// HistoryBack returns the previous history entry. At the oldest entry it
// keeps returning that entry; with no history it returns "".
func (t *Terminal) HistoryBack() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history) == 0 {
		return ""
	}
	if t.historyPos > 0 {
		t.historyPos--
	}
	return t.history[t.historyPos]
}

// HistoryForward returns the next history entry, or "" once past the newest.
func (t *Terminal) HistoryForward() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history) == 0 {
		return ""
	}
	if t.historyPos < len(t.history)-1 {
		t.historyPos++
		return t.history[t.historyPos]
	}
	t.historyPos = len(t.history)
	return ""
}

// History returns the submitted commands, oldest first.
func (t *Terminal) History() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.history...)
}

// Transcript returns every input and output line so far.
func (t *Terminal) Transcript() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.transcript...)
}

// Locked reports whether the terminal is waiting for a result.
func (t *Terminal) Locked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locked
}

// Close unregisters the terminal. Output still in flight is dropped.
func (t *Terminal) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.console.UnregisterSession(t.id)
}
