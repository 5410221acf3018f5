package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dshills/hostconsole/internal/actions"
	"github.com/dshills/hostconsole/internal/console"
	"github.com/dshills/hostconsole/internal/host"
	"github.com/dshills/hostconsole/internal/plugin"
	"github.com/dshills/hostconsole/internal/ui"
)

const (
	idlePoll     = 5 * time.Millisecond
	phaseTimeout = 5 * time.Second
)

// syncWriter serializes writes from the UI loop and the shell.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// shell feeds stdin lines to a terminal session and handles ':' commands.
type shell struct {
	p       *plugin.Plugin
	engine  *host.Engine
	term    *ui.Terminal
	out     io.Writer
	unwatch func()
}

func newShell(p *plugin.Plugin, engine *host.Engine, out io.Writer) *shell {
	return &shell{
		p:      p,
		engine: engine,
		term:   p.NewTerminal(out),
		out:    out,
	}
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	defer s.term.Close()
	defer func() {
		if s.unwatch != nil {
			s.unwatch()
		}
	}()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- sc.Err()
	}()

	fmt.Fprint(s.out, s.term.Prompt())
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			quit, err := s.handle(ctx, line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

// handle runs one input line. It reports whether the shell should exit.
func (s *shell) handle(ctx context.Context, line string) (bool, error) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, ":") {
		return s.meta(ctx, strings.Fields(trimmed[1:]))
	}
	return false, s.submit(ctx, line)
}

// submit sends line through the terminal and waits for the reply.
func (s *shell) submit(ctx context.Context, line string) error {
	if err := s.waitIdle(ctx); err != nil {
		return nil
	}
	errc := make(chan error, 1)
	if !s.p.Post(func() { errc <- s.term.Submit(line) }) {
		return nil
	}

	select {
	case err := <-errc:
		var nerr *console.NotifyError
		if err != nil && !errors.As(err, &nerr) {
			s.reply("error: %v", err)
		}
	case <-ctx.Done():
		return nil
	}
	_ = s.waitIdle(ctx)
	return nil
}

func (s *shell) waitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()
	for s.term.Locked() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (s *shell) reply(format string, args ...any) {
	fmt.Fprintf(s.out, format+"\n%s", append(args, s.term.Prompt())...)
}

const helpText = `console commands:
  :help                      show this help
  :quit                      exit
  :phase <name>              change map and wait for it to start
  :restart [quick|keep]      restart the current phase; keep restores the position
  :speed <factor>            set game speed
  :player-speed <factor>     set player speed
  :invincible on|off         toggle player invincibility
  :level <n>                 set player level
  :character <id>            switch player model
  :items                     grant every item
  :scene <phase> <event>     play a scene, loading its phase first
  :watch                     report every phase load
  :world                     print the host state
  :history                   list submitted commands`

func (s *shell) meta(ctx context.Context, args []string) (bool, error) {
	if len(args) == 0 {
		s.reply("empty command, try :help")
		return false, nil
	}
	acts := s.p.Actions()
	name, rest := args[0], args[1:]

	var err error
	switch name {
	case "help":
		s.reply("%s", helpText)
		return false, nil
	case "quit", "exit":
		return true, nil
	case "phase":
		if len(rest) != 1 {
			s.reply("usage: :phase <name>")
			return false, nil
		}
		err = s.changePhase(ctx, acts, rest[0])
	case "restart":
		switch {
		case len(rest) > 0 && rest[0] == "keep":
			err = acts.RestartPhaseKeepPosition()
		default:
			err = acts.RestartPhase(len(rest) > 0 && rest[0] == "quick")
		}
	case "speed", "player-speed":
		var f float64
		if f, err = parseOne(rest, parseFloat); err == nil {
			if name == "speed" {
				err = acts.SetGameSpeed(f)
			} else {
				err = acts.SetPlayerSpeed(f)
			}
		}
	case "invincible":
		if len(rest) != 1 || (rest[0] != "on" && rest[0] != "off") {
			s.reply("usage: :invincible on|off")
			return false, nil
		}
		err = acts.SetInvincible(rest[0] == "on")
	case "level", "character":
		var n int
		if n, err = parseOne(rest, strconv.Atoi); err == nil {
			if name == "level" {
				err = acts.SetPlayerLevel(n)
			} else {
				err = acts.SetPlayerCharacter(n)
			}
		}
	case "items":
		err = acts.AddAllItems()
	case "scene":
		if len(rest) != 2 {
			s.reply("usage: :scene <phase> <event>")
			return false, nil
		}
		err = acts.PlayScene(actions.Scene{Label: rest[1], Phase: rest[0], Event: rest[1]})
	case "watch":
		if s.unwatch == nil {
			s.unwatch = acts.WatchPhase(func(phase string) {
				s.reply("phase loaded: %s", phase)
			})
		}
	case "world":
		s.reply("%s", formatWorld(s.engine.Snapshot()))
		return false, nil
	case "history":
		s.reply("%s", strings.Join(s.term.History(), "\n"))
		return false, nil
	default:
		s.reply("unknown command :%s, try :help", name)
		return false, nil
	}

	if err != nil {
		s.reply("error: %v", err)
	} else {
		s.reply("ok")
	}
	return false, nil
}

func (s *shell) changePhase(ctx context.Context, acts *actions.Actions, phase string) error {
	started := make(chan struct{})
	if err := acts.ChangeMap(phase, func() { close(started) }); err != nil {
		return err
	}
	select {
	case <-started:
		return nil
	case <-time.After(phaseTimeout):
		return fmt.Errorf("phase %s did not start within %s", phase, phaseTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseOne[T any](args []string, parse func(string) (T, error)) (T, error) {
	var zero T
	if len(args) != 1 {
		return zero, errors.New("expected one argument")
	}
	return parse(args[0])
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func formatWorld(w host.World) string {
	var b strings.Builder
	fmt.Fprintf(&b, "phase:        %s (entry %d, %d changes)\n", w.Phase, w.Entry, w.PhaseChanges)
	fmt.Fprintf(&b, "game speed:   %g\n", w.GameSpeed)
	fmt.Fprintf(&b, "player speed: %g\n", w.PlayerSpeed)
	fmt.Fprintf(&b, "player model: %d\n", w.PlayerModel)
	fmt.Fprintf(&b, "position:     %g %g %g (rot %g)\n", w.Player.X, w.Player.Y, w.Player.Z, w.Player.RotY)
	fmt.Fprintf(&b, "invincible:   %s\n", formatIntMap(w.Invincible))
	fmt.Fprintf(&b, "levels:       %s\n", formatIntMap(w.Levels))
	fmt.Fprintf(&b, "item kinds:   %d\n", len(w.Items))
	fmt.Fprintf(&b, "events:       %s", strings.Join(w.Events, ", "))
	return b.String()
}

func formatIntMap(m map[int]int) string {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}
