package bindings

import (
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

type panel struct {
	out []string
}

func (p *panel) AppendOutput(text string) {
	p.out = append(p.out, text)
}

type inlinePoster struct{}

func (inlinePoster) Post(fn func()) bool {
	fn()
	return true
}

type stack struct {
	engine *host.Engine
	bridge *bridge.Bridge
	queue  *console.Queue
}

func newStack(t *testing.T, dispatch string) *stack {
	t.Helper()
	q := console.New(session.NewRegistry(), inlinePoster{})
	b := bridge.New(q, lifecycle.NewHooks(nil, nil), bridge.WithDispatchFunction(dispatch))
	q.SetNotifier(b)

	e := host.New()
	t.Cleanup(func() { _ = e.Close() })
	b.Attach(e)

	require.NoError(t, InstallOn(e, b, dispatch))
	require.NoError(t, e.Step())
	return &stack{engine: e, bridge: b, queue: q}
}

// submit sends cmd from p and runs one frame.
func (s *stack) submit(t *testing.T, id session.ID, cmd string) {
	t.Helper()
	require.NoError(t, s.queue.Enqueue(id, cmd))
	require.NoError(t, s.engine.Step())
}

func TestInstallBindsNatives(t *testing.T) {
	s := newStack(t, "")
	var names []string
	require.NoError(t, s.engine.Do(func(L *lua.LState) error {
		for _, name := range []string{GetCommand, SetCommandResult, PostStartMessage, PostLoadMessage, bridge.DefaultDispatchFunction} {
			if L.GetGlobal(name).Type() == lua.LTFunction {
				names = append(names, name)
			}
		}
		return nil
	}))
	require.NoError(t, s.engine.Step())
	assert.Len(t, names, 5)
}

func TestCommandResults(t *testing.T) {
	s := newStack(t, "")
	p := &panel{}
	id := s.queue.RegisterSession(p)

	tests := []struct {
		cmd  string
		want string
	}{
		{"1 + 1", "2"},
		{"'a' .. 'b'", "ab"},
		{"x = 5", ""},
		{"x", "5"},
		{"return x * 2", "10"},
		{"nil", "nil"},
		{"1, 'two', true", "1\ttwo\ttrue"},
		{"_GetCurrentPhase()", host.DefaultStartPhase},
	}
	for _, tt := range tests {
		p.out = nil
		s.submit(t, id, tt.cmd)
		require.Len(t, p.out, 1, tt.cmd)
		assert.Equal(t, tt.want, p.out[0], tt.cmd)
		assert.Equal(t, session.None, s.queue.Current())
	}
}

func TestCommandErrors(t *testing.T) {
	s := newStack(t, "")
	p := &panel{}
	id := s.queue.RegisterSession(p)

	s.submit(t, id, "if then")
	require.Len(t, p.out, 1)
	assert.Contains(t, p.out[0], "syntax error:")

	s.submit(t, id, "error('boom')")
	require.Len(t, p.out, 2)
	assert.Contains(t, p.out[1], "runtime error:")
	assert.Contains(t, p.out[1], "boom")

	s.submit(t, id, "undefined_fn()")
	require.Len(t, p.out, 3)
	assert.Contains(t, p.out[2], "runtime error:")
}

func TestResultsReachOriginatingSessions(t *testing.T) {
	s := newStack(t, "")
	pa, pb := &panel{}, &panel{}
	a := s.queue.RegisterSession(pa)
	b := s.queue.RegisterSession(pb)

	require.NoError(t, s.queue.Enqueue(a, "'from a'"))
	require.NoError(t, s.queue.Enqueue(b, "'from b'"))
	require.NoError(t, s.engine.Step())

	assert.Equal(t, []string{"from a"}, pa.out)
	assert.Equal(t, []string{"from b"}, pb.out)
}

func TestCustomDispatchName(t *testing.T) {
	s := newStack(t, "My_Dispatch")
	p := &panel{}
	id := s.queue.RegisterSession(p)

	s.submit(t, id, "40 + 2")
	assert.Equal(t, []string{"42"}, p.out)
}

func TestDispatchWithEmptyQueue(t *testing.T) {
	s := newStack(t, "")
	require.NoError(t, s.bridge.Notify())
	require.NoError(t, s.engine.Step())
	assert.Equal(t, session.None, s.queue.Current())
}

func TestLifecycleNatives(t *testing.T) {
	s := newStack(t, "")
	hooks := s.bridge.Hooks()

	var order []string
	hooks.PostLoad.EnqueueOnce(func() {
		order = append(order, "load-once")
		hooks.PostLoad.EnqueueOnce(func() { order = append(order, "load-next") })
	})
	id := hooks.PostStart.Register(func() { order = append(order, "start") })

	require.NoError(t, s.engine.ChangePhase("p200"))
	require.NoError(t, s.engine.Step())
	assert.Equal(t, []string{"load-once", "start"}, order)

	hooks.PostStart.Unregister(id)
	require.NoError(t, s.engine.ChangePhase("p300"))
	require.NoError(t, s.engine.Step())
	assert.Equal(t, []string{"load-once", "start", "load-next"}, order)
}

func TestDispatchDrainsCommandsLeftByFailedNotify(t *testing.T) {
	s := newStack(t, "")
	p := &panel{}
	id := s.queue.RegisterSession(p)

	s.bridge.Detach()
	var nerr *console.NotifyError
	require.ErrorAs(t, s.queue.Enqueue(id, "'A'"), &nerr)
	assert.Equal(t, 1, s.queue.Len())

	s.bridge.Attach(s.engine)
	require.NoError(t, s.queue.Enqueue(id, "'B'"))
	require.NoError(t, s.engine.Step())

	require.Len(t, p.out, 3)
	assert.Contains(t, p.out[0], "could not send command")
	assert.Equal(t, []string{"A", "B"}, p.out[1:])
	assert.Zero(t, s.queue.Len())
	assert.Equal(t, session.None, s.queue.Current())

	// The second notification finds nothing left.
	require.NoError(t, s.engine.Step())
	assert.Len(t, p.out, 3)
}
