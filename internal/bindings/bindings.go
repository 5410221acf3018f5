// Package bindings installs the console's native functions and its command
// dispatcher into the host's Lua state.
package bindings

import (
	_ "embed"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/hostconsole/internal/bridge"
	"github.com/dshills/hostconsole/internal/console"
	"github.com/dshills/hostconsole/internal/lifecycle"
)

// Script-visible names of the native functions.
const (
	GetCommand       = "Console_GetCommand"
	SetCommandResult = "Console_SetCommandResult"
	PostStartMessage = "Console_PostStartMessage"
	PostLoadMessage  = "Console_PostLoadMessage"
)

//go:embed dispatch.lua
var dispatchScript string

// ErrNoDispatcher is returned when the dispatcher script does not yield a
// function.
var ErrNoDispatcher = errors.New("dispatcher script did not return a function")

// Host is the bridge surface the natives call into.
type Host interface {
	OnCommandSlotPolled() (console.Command, bool)
	OnCommandResultReady(text string)
	OnLifecycle(ev lifecycle.Event) (lifecycle.FireStats, error)
}

// Doer runs funcs against a Lua state on the goroutine that owns it.
type Doer interface {
	Do(fn func(L *lua.LState) error) error
}

// Install registers the natives in L and binds the dispatcher to the global
// dispatch. It must run on the goroutine that owns L.
func Install(L *lua.LState, h Host, dispatch string) error {
	if dispatch == "" {
		dispatch = bridge.DefaultDispatchFunction
	}

	natives := map[string]lua.LGFunction{
		GetCommand:       getCommand(h),
		SetCommandResult: setCommandResult(h),
		PostStartMessage: lifecycleMessage(h, lifecycle.PostStart),
		PostLoadMessage:  lifecycleMessage(h, lifecycle.PostLoad),
	}
	for name, fn := range natives {
		L.SetGlobal(name, L.NewFunction(fn))
	}

	chunk, err := L.LoadString(dispatchScript)
	if err != nil {
		return fmt.Errorf("load dispatcher: %w", err)
	}
	L.Push(chunk)
	if err := L.PCall(0, 1, nil); err != nil {
		return fmt.Errorf("run dispatcher: %w", err)
	}
	fn := L.Get(-1)
	L.Pop(1)
	if fn.Type() != lua.LTFunction {
		return ErrNoDispatcher
	}
	L.SetGlobal(dispatch, fn)
	return nil
}

// InstallOn queues Install on d.
func InstallOn(d Doer, h Host, dispatch string) error {
	return d.Do(func(L *lua.LState) error {
		return Install(L, h, dispatch)
	})
}

func getCommand(h Host) lua.LGFunction {
	return func(L *lua.LState) int {
		cmd, ok := h.OnCommandSlotPolled()
		if !ok {
			L.Push(lua.LString(""))
			return 1
		}
		L.Push(lua.LString(cmd.Text))
		return 1
	}
}

func setCommandResult(h Host) lua.LGFunction {
	return func(L *lua.LState) int {
		var text string
		if L.GetTop() > 0 {
			text = L.ToStringMeta(L.Get(1)).String()
		}
		h.OnCommandResultReady(text)
		return 0
	}
}

func lifecycleMessage(h Host, ev lifecycle.Event) lua.LGFunction {
	return func(L *lua.LState) int {
		if _, err := h.OnLifecycle(ev); err != nil {
			L.RaiseError("%s: %v", ev, err)
		}
		return 0
	}
}
