package actions

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/hostconsole/internal/bridge"
	"github.com/dshills/hostconsole/internal/console"
	"github.com/dshills/hostconsole/internal/host"
	"github.com/dshills/hostconsole/internal/lifecycle"
	"github.com/dshills/hostconsole/internal/session"
)

type recordingSubmitter struct {
	scripts []string
	err     error
}

func (s *recordingSubmitter) SubmitFireAndForget(script string) error {
	if s.err != nil {
		return s.err
	}
	s.scripts = append(s.scripts, script)
	return nil
}

func (s *recordingSubmitter) SubmitWithContinuation(script string, k func(bridge.Result)) error {
	return s.SubmitFireAndForget(script)
}

func (s *recordingSubmitter) SubmitCall(fn string) error {
	return s.SubmitFireAndForget("call:" + fn)
}

func TestScripts(t *testing.T) {
	sub := &recordingSubmitter{}
	a := New(sub, lifecycle.NewHooks(nil, nil), nil)

	require.NoError(t, a.SetGameSpeed(2))
	require.NoError(t, a.SetPlayerSpeed(1.5))
	require.NoError(t, a.SetInvincible(true))
	require.NoError(t, a.SetInvincible(false))
	require.NoError(t, a.SetPlayerLevel(99))
	require.NoError(t, a.SetPlayerCharacter(3))
	require.NoError(t, a.RestartPhase(false))
	require.NoError(t, a.RestartPhase(true))
	require.NoError(t, a.ChangeMap(`p"1`, nil))

	assert.Equal(t, []string{
		"_SetGameSpeed(2)",
		"_SetPlayerSpeed(1.5)",
		"_SetUniqueActorInvincible(-1, 500000)",
		"_SetUniqueActorInvincible(-1, 0)",
		"_SetUniqueActorLevel(-1, 99)",
		"_SetPlayerModel(3)",
		"_RestartPhase()",
		"_RestartPhaseQuick()",
		`_ChangeMap("p\"1", 0)`,
	}, sub.scripts)
}

func TestInvalidArguments(t *testing.T) {
	sub := &recordingSubmitter{}
	a := New(sub, lifecycle.NewHooks(nil, nil), nil)

	assert.ErrorIs(t, a.SetGameSpeed(math.NaN()), ErrInvalidValue)
	assert.ErrorIs(t, a.SetPlayerSpeed(math.Inf(1)), ErrInvalidValue)
	assert.ErrorIs(t, a.ChangeMap("", nil), ErrEmptyName)
	assert.ErrorIs(t, a.PlayScene(Scene{Label: "x", Phase: "p100"}), ErrEmptyName)
	assert.Empty(t, sub.scripts)
}

func TestChangeMapSubmitFailureDisarmsThen(t *testing.T) {
	hooks := lifecycle.NewHooks(nil, nil)
	sub := &recordingSubmitter{err: bridge.ErrHostNotAttached}
	a := New(sub, hooks, nil)

	ran := false
	err := a.ChangeMap("p200", func() { ran = true })
	assert.ErrorIs(t, err, bridge.ErrHostNotAttached)

	hooks.PostStart.Fire()
	assert.False(t, ran)
}

// answeringSubmitter runs continuations immediately with answer's result.
type answeringSubmitter struct {
	recordingSubmitter
	answer func(script string) bridge.Result
}

func (s *answeringSubmitter) SubmitWithContinuation(script string, k func(bridge.Result)) error {
	if err := s.recordingSubmitter.SubmitFireAndForget(script); err != nil {
		return err
	}
	k(s.answer(script))
	return nil
}

func TestSceneNotCalledWhenDefinitionReturnsUnsupportedValue(t *testing.T) {
	sub := &answeringSubmitter{answer: func(script string) bridge.Result {
		if script == "return _GetCurrentPhase()" {
			return bridge.StringResult("p100")
		}
		return bridge.UnsupportedResult("table")
	}}
	a := New(sub, lifecycle.NewHooks(nil, nil), nil)

	require.NoError(t, a.PlayScene(Scene{Label: "intro", Phase: "p100", Event: "EID_0100"}))
	require.Len(t, sub.scripts, 2)
	assert.NotContains(t, sub.scripts, "call:"+sceneFunction)
}

func TestPlayerPositionParsing(t *testing.T) {
	sub := &answeringSubmitter{answer: func(string) bridge.Result {
		return bridge.StringResult("1.5 -2 30.25 3.1")
	}}
	a := New(sub, lifecycle.NewHooks(nil, nil), nil)

	var got Position
	require.NoError(t, a.PlayerPosition(func(p Position, err error) {
		require.NoError(t, err)
		got = p
	}))
	assert.Equal(t, Position{X: 1.5, Y: -2, Z: 30.25, RotY: 3.1}, got)

	for _, bad := range []bridge.Result{bridge.StringResult("1 2 3"), bridge.StringResult("a b c d"), bridge.NilResult()} {
		sub.answer = func(string) bridge.Result { return bad }
		var gotErr error
		require.NoError(t, a.PlayerPosition(func(_ Position, err error) { gotErr = err }))
		assert.Error(t, gotErr, bad.String())
	}
}

func TestSetPlayerPositionScript(t *testing.T) {
	sub := &recordingSubmitter{}
	a := New(sub, lifecycle.NewHooks(nil, nil), nil)

	require.NoError(t, a.SetPlayerPosition(Position{X: 1, Y: 2.5, Z: -3, RotY: 0.5}))
	assert.Equal(t, []string{"_SetPlayerPosition(1, 2.5, -3, 0.5)"}, sub.scripts)
	assert.ErrorIs(t, a.SetPlayerPosition(Position{X: math.NaN()}), ErrInvalidValue)
}

func TestLuaString(t *testing.T) {
	assert.Equal(t, `"plain"`, luaString("plain"))
	assert.Equal(t, `"a\\b\"c"`, luaString(`a\b"c`))
	assert.Equal(t, `"x\ny\t\001"`, luaString("x\ny\t\x01"))
}

// live wires actions to a real host engine.
type live struct {
	engine  *host.Engine
	actions *Actions
	hooks   *lifecycle.Hooks
}

type inlinePoster struct{}

func (inlinePoster) Post(fn func()) bool {
	fn()
	return true
}

func newLive(t *testing.T) *live {
	t.Helper()
	hooks := lifecycle.NewHooks(nil, nil)
	q := console.New(session.NewRegistry(), inlinePoster{})
	b := bridge.New(q, hooks)
	e := host.New(host.WithStartPhase("p100"))
	t.Cleanup(func() { _ = e.Close() })
	b.Attach(e)

	// Route the host's lifecycle globals to the hooks.
	require.NoError(t, e.QueueScriptExecution(`
		function Console_PostLoadMessage() _hooks_load() end
		function Console_PostStartMessage() _hooks_start() end
	`, nil))
	require.NoError(t, e.Do(func(L *lua.LState) error {
		L.SetGlobal("_hooks_load", L.NewFunction(func(*lua.LState) int { hooks.PostLoad.Fire(); return 0 }))
		L.SetGlobal("_hooks_start", L.NewFunction(func(*lua.LState) int { hooks.PostStart.Fire(); return 0 }))
		return nil
	}))
	require.NoError(t, e.Step())

	return &live{engine: e, actions: New(b, hooks, nil), hooks: hooks}
}

func (l *live) frames(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, l.engine.Step())
	}
}

func TestLiveWorldActions(t *testing.T) {
	l := newLive(t)
	a := l.actions

	require.NoError(t, a.SetGameSpeed(3))
	require.NoError(t, a.SetPlayerSpeed(0.25))
	require.NoError(t, a.SetInvincible(true))
	require.NoError(t, a.SetPlayerLevel(50))
	require.NoError(t, a.SetPlayerCharacter(4))
	require.NoError(t, a.AddAllItems())
	l.frames(t, 1)

	w := l.engine.Snapshot()
	assert.Equal(t, 3.0, w.GameSpeed)
	assert.Equal(t, 0.25, w.PlayerSpeed)
	assert.Equal(t, InvincibleHP, w.Invincible[PlayerActorID])
	assert.Equal(t, 50, w.Levels[PlayerActorID])
	assert.Equal(t, 4, w.PlayerModel)
	assert.Len(t, w.Items, ItemCount)
	assert.Equal(t, MaxItemStack, w.Items[ItemCount-1])
}

func TestLiveChangeMapThen(t *testing.T) {
	l := newLive(t)

	var phaseAtStart string
	require.NoError(t, l.actions.ChangeMap("p200", func() {
		phaseAtStart = l.engine.Snapshot().Phase
	}))
	l.frames(t, 1)
	assert.Equal(t, "p200", phaseAtStart)
}

func TestLiveCurrentPhaseAndWatch(t *testing.T) {
	l := newLive(t)

	var got string
	var gotErr error
	require.NoError(t, l.actions.CurrentPhase(func(p string, err error) { got, gotErr = p, err }))
	l.frames(t, 1)
	require.NoError(t, gotErr)
	assert.Equal(t, "p100", got)

	var seen []string
	unwatch := l.actions.WatchPhase(func(p string) { seen = append(seen, p) })

	require.NoError(t, l.engine.ChangePhase("p200"))
	l.frames(t, 2)
	require.NoError(t, l.engine.ChangePhase("p300"))
	l.frames(t, 2)
	unwatch()
	require.NoError(t, l.engine.ChangePhase("p400"))
	l.frames(t, 2)

	assert.Equal(t, []string{"p200", "p300"}, seen)
}

func TestLivePlaySceneInCurrentPhase(t *testing.T) {
	l := newLive(t)

	require.NoError(t, l.actions.PlayScene(Scene{Label: "intro", Phase: "p100", Event: "EID_0100"}))
	l.frames(t, 3)

	w := l.engine.Snapshot()
	assert.Equal(t, []string{"EID_0100"}, w.Events)
	assert.Zero(t, w.PhaseChanges)
}

func TestLivePlaySceneChangesPhaseFirst(t *testing.T) {
	l := newLive(t)

	require.NoError(t, l.actions.PlayScene(Scene{Label: "boss", Phase: "p200", Event: "EID_2000_a0100"}))
	l.frames(t, 5)

	w := l.engine.Snapshot()
	assert.Equal(t, "p200", w.Phase)
	assert.Equal(t, 1, w.PhaseChanges)
	assert.Equal(t, []string{"EID_2000_a0100"}, w.Events)
}

func TestLiveRestartPhaseKeepsPosition(t *testing.T) {
	l := newLive(t)
	require.NoError(t, l.engine.QueueScriptExecution("_SetPlayerPosition(10, 20, 30, 1.25)", nil))
	l.frames(t, 1)

	require.NoError(t, l.actions.RestartPhaseKeepPosition())
	l.frames(t, 4)

	w := l.engine.Snapshot()
	assert.Equal(t, "p100", w.Phase)
	assert.Equal(t, 1, w.PhaseChanges)
	assert.Equal(t, host.Position{X: 10, Y: 20, Z: 30, RotY: 1.25}, w.Player)
}

func TestLiveRestartPhaseResetsPosition(t *testing.T) {
	l := newLive(t)
	require.NoError(t, l.engine.QueueScriptExecution("_SetPlayerPosition(10, 20, 30, 1.25)", nil))
	l.frames(t, 1)

	require.NoError(t, l.actions.RestartPhase(false))
	l.frames(t, 2)

	assert.Equal(t, host.Position{}, l.engine.Snapshot().Player)
}

func TestLiveSubmitAfterClose(t *testing.T) {
	l := newLive(t)
	require.NoError(t, l.engine.Close())

	err := l.actions.SetGameSpeed(1)
	assert.True(t, errors.Is(err, host.ErrEngineClosed))
}
