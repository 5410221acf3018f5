// Package actions holds the canned game operations the toolbox offers on
// top of the bridge.
package actions

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/hostconsole/internal/bridge"
	"github.com/dshills/hostconsole/internal/lifecycle"
	"github.com/dshills/hostconsole/internal/logging"
)

const (
	// PlayerActorID is the unique actor id of the player.
	PlayerActorID = -1

	// InvincibleHP is the guard value that makes an actor invincible.
	InvincibleHP = 500000

	// ItemCount is the number of item ids.
	ItemCount = 768

	// MaxItemStack is the per-item count AddAllItems grants.
	MaxItemStack = 99999

	// sceneFunction is the global PlayScene defines and then calls.
	sceneFunction = "Console_PlayScene"
)

var (
	// ErrInvalidValue is returned for NaN or infinite numbers.
	ErrInvalidValue = errors.New("invalid value")

	// ErrEmptyName is returned for a missing phase or event name.
	ErrEmptyName = errors.New("empty name")
)

// Submitter is the bridge's submission surface.
type Submitter interface {
	SubmitFireAndForget(script string) error
	SubmitWithContinuation(script string, k func(bridge.Result)) error
	SubmitCall(fn string) error
}

// Scene is a cutscene and the phase it plays in.
type Scene struct {
	Label string
	Phase string
	Event string
}

// Position is where the player stands and which way it faces.
type Position struct {
	X, Y, Z float64
	RotY    float64
}

// positionScript reads the player position as one string so it fits in a
// single Result.
const positionScript = `local x, y, z, r = _GetPlayerPosition()
return string.format("%.17g %.17g %.17g %.17g", x, y, z, r)`

// Actions issues game operations through a Submitter.
type Actions struct {
	sub    Submitter
	hooks  *lifecycle.Hooks
	logger *zap.Logger
}

// New creates Actions. hooks receives the follow-up work of ChangeMap,
// PlayScene and WatchPhase.
func New(sub Submitter, hooks *lifecycle.Hooks, logger *zap.Logger) *Actions {
	return &Actions{
		sub:    sub,
		hooks:  hooks,
		logger: logging.OrNop(logger),
	}
}

// SetGameSpeed scales the game clock.
func (a *Actions) SetGameSpeed(factor float64) error {
	n, err := luaNumber(factor)
	if err != nil {
		return fmt.Errorf("set game speed: %w", err)
	}
	return a.sub.SubmitFireAndForget("_SetGameSpeed(" + n + ")")
}

// SetPlayerSpeed scales the player's movement speed.
func (a *Actions) SetPlayerSpeed(factor float64) error {
	n, err := luaNumber(factor)
	if err != nil {
		return fmt.Errorf("set player speed: %w", err)
	}
	return a.sub.SubmitFireAndForget("_SetPlayerSpeed(" + n + ")")
}

// SetInvincible turns player invincibility on or off.
func (a *Actions) SetInvincible(enabled bool) error {
	hp := 0
	if enabled {
		hp = InvincibleHP
	}
	return a.sub.SubmitFireAndForget(fmt.Sprintf("_SetUniqueActorInvincible(%d, %d)", PlayerActorID, hp))
}

// SetPlayerLevel sets the player's level.
func (a *Actions) SetPlayerLevel(level int) error {
	return a.sub.SubmitFireAndForget(fmt.Sprintf("_SetUniqueActorLevel(%d, %d)", PlayerActorID, level))
}

// SetPlayerCharacter switches the player model.
func (a *Actions) SetPlayerCharacter(id int) error {
	return a.sub.SubmitFireAndForget(fmt.Sprintf("_SetPlayerModel(%d)", id))
}

// RestartPhase reloads the current phase. A quick restart skips the load.
func (a *Actions) RestartPhase(quick bool) error {
	if quick {
		return a.sub.SubmitFireAndForget("_RestartPhaseQuick()")
	}
	return a.sub.SubmitFireAndForget("_RestartPhase()")
}

// RestartPhaseKeepPosition reloads the current phase and puts the player
// back where it stood once play has started again.
func (a *Actions) RestartPhaseKeepPosition() error {
	return a.PlayerPosition(func(p Position, err error) {
		if err != nil {
			a.logger.Warn("restart position lookup failed", zap.Error(err))
			return
		}
		err = a.submitThen(a.hooks.PostStart, "_RestartPhase()", func() {
			if err := a.SetPlayerPosition(p); err != nil {
				a.logger.Warn("restore position failed", zap.Error(err))
			}
		})
		if err != nil {
			a.logger.Warn("restart submit failed", zap.Error(err))
		}
	})
}

// PlayerPosition reports the player position to k on the host thread.
func (a *Actions) PlayerPosition(k func(p Position, err error)) error {
	return a.sub.SubmitWithContinuation(positionScript, func(r bridge.Result) {
		if r.Kind != bridge.KindString {
			k(Position{}, fmt.Errorf("player position: unexpected %s", r))
			return
		}
		p, err := parsePosition(r.Text)
		k(p, err)
	})
}

// SetPlayerPosition moves the player to p.
func (a *Actions) SetPlayerPosition(p Position) error {
	args := make([]string, 0, 4)
	for _, f := range []float64{p.X, p.Y, p.Z, p.RotY} {
		n, err := luaNumber(f)
		if err != nil {
			return fmt.Errorf("set player position: %w", err)
		}
		args = append(args, n)
	}
	return a.sub.SubmitFireAndForget("_SetPlayerPosition(" + strings.Join(args, ", ") + ")")
}

// AddAllItems grants MaxItemStack of every item.
func (a *Actions) AddAllItems() error {
	script := fmt.Sprintf(`
for itemId = 0, %d do
  _AddItemNum(itemId, %d)
end
`, ItemCount-1, MaxItemStack)
	return a.sub.SubmitFireAndForget(script)
}

// ChangeMap loads phase. then, when not nil, runs on the host thread once
// play has started there.
func (a *Actions) ChangeMap(phase string, then func()) error {
	if phase == "" {
		return fmt.Errorf("change map: %w", ErrEmptyName)
	}
	return a.submitThen(a.hooks.PostStart, changeMapScript(phase), then)
}

// submitThen submits script and queues then on r. If the submission fails
// then is disarmed, since a one-shot task cannot be withdrawn.
func (a *Actions) submitThen(r *lifecycle.Registry, script string, then func()) error {
	if then == nil {
		return a.sub.SubmitFireAndForget(script)
	}

	var disarmed atomic.Bool
	r.EnqueueOnce(func() {
		if !disarmed.Load() {
			then()
		}
	})
	if err := a.sub.SubmitFireAndForget(script); err != nil {
		disarmed.Store(true)
		return err
	}
	return nil
}

// PlayScene plays s. If its phase is not loaded the map is changed first
// and the scene starts after the load.
func (a *Actions) PlayScene(s Scene) error {
	if s.Phase == "" || s.Event == "" {
		return fmt.Errorf("play scene %q: %w", s.Label, ErrEmptyName)
	}
	return a.CurrentPhase(func(phase string, err error) {
		if err != nil {
			a.logger.Warn("scene phase lookup failed", zap.String("scene", s.Label), zap.Error(err))
			return
		}
		if phase == s.Phase {
			a.startScene(s)
			return
		}
		err = a.submitThen(a.hooks.PostLoad, changeMapScript(s.Phase), func() { a.startScene(s) })
		if err != nil {
			a.logger.Warn("scene map change failed", zap.String("scene", s.Label), zap.Error(err))
		}
	})
}

// startScene defines the scene function, then calls it once the definition
// has run.
func (a *Actions) startScene(s Scene) {
	define := fmt.Sprintf("%s = function()\n  _PlayEvent(%s)\nend", sceneFunction, luaString(s.Event))
	err := a.sub.SubmitWithContinuation(define, func(r bridge.Result) {
		if r.IsError() {
			a.logger.Warn("scene definition failed", zap.String("scene", s.Label), zap.Stringer("result", r))
			return
		}
		if err := a.sub.SubmitCall(sceneFunction); err != nil {
			a.logger.Warn("scene call failed", zap.String("scene", s.Label), zap.Error(err))
		}
	})
	if err != nil {
		a.logger.Warn("scene submit failed", zap.String("scene", s.Label), zap.Error(err))
	}
}

// CurrentPhase reports the loaded phase to k on the host thread.
func (a *Actions) CurrentPhase(k func(phase string, err error)) error {
	return a.sub.SubmitWithContinuation("return _GetCurrentPhase()", func(r bridge.Result) {
		if r.IsError() || r.Kind != bridge.KindString {
			k("", fmt.Errorf("current phase: unexpected %s", r))
			return
		}
		k(r.Text, nil)
	})
}

// WatchPhase calls fn with the new phase after every load until the
// returned func is called.
func (a *Actions) WatchPhase(fn func(phase string)) (unwatch func()) {
	id := a.hooks.PostLoad.Register(func() {
		err := a.CurrentPhase(func(phase string, err error) {
			if err == nil {
				fn(phase)
			}
		})
		if err != nil {
			a.logger.Debug("phase watch submit failed", zap.Error(err))
		}
	})
	return func() { a.hooks.PostLoad.Unregister(id) }
}

func parsePosition(s string) (Position, error) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return Position{}, fmt.Errorf("player position %q: %w", s, ErrInvalidValue)
	}
	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Position{}, fmt.Errorf("player position %q: %w", s, ErrInvalidValue)
		}
		v[i] = n
	}
	return Position{X: v[0], Y: v[1], Z: v[2], RotY: v[3]}, nil
}

func changeMapScript(phase string) string {
	return "_ChangeMap(" + luaString(phase) + ", 0)"
}

func luaNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", ErrInvalidValue, f)
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// luaString quotes s as a Lua 5.1 string literal.
func luaString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\%03d`, c)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
