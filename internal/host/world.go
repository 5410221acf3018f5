package host

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// PlayerActorID is the unique actor id scripts use for the player.
const PlayerActorID = -1

// Position is a point in the phase and a heading around the vertical axis.
type Position struct {
	X, Y, Z float64
	RotY    float64
}

// World is the game state the script API reads and writes. Player is reset
// to the entry point on every phase change.
type World struct {
	Phase        string
	Entry        int
	PhaseChanges int
	GameSpeed    float64
	PlayerSpeed  float64
	PlayerModel  int
	Player       Position
	Invincible   map[int]int
	Levels       map[int]int
	Items        map[int]int
	Events       []string
	DebugLog     []string
}

func newWorld(phase string) World {
	return World{
		Phase:       phase,
		GameSpeed:   1,
		PlayerSpeed: 1,
		Invincible:  make(map[int]int),
		Levels:      make(map[int]int),
		Items:       make(map[int]int),
	}
}

func (w World) clone() World {
	c := w
	c.Invincible = cloneMap(w.Invincible)
	c.Levels = cloneMap(w.Levels)
	c.Items = cloneMap(w.Items)
	c.Events = append([]string(nil), w.Events...)
	c.DebugLog = append([]string(nil), w.DebugLog...)
	return c
}

func cloneMap(m map[int]int) map[int]int {
	c := make(map[int]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Snapshot returns a copy of the world state. Safe from any goroutine.
func (e *Engine) Snapshot() World {
	e.worldMu.Lock()
	defer e.worldMu.Unlock()
	return e.world.clone()
}

func (e *Engine) updateWorld(fn func(w *World)) {
	e.worldMu.Lock()
	defer e.worldMu.Unlock()
	fn(&e.world)
}

// installGameAPI registers the game's script functions.
func (e *Engine) installGameAPI(L *lua.LState) {
	api := map[string]lua.LGFunction{
		"_ChangeMap":                e.luaChangeMap,
		"_RestartPhase":             e.luaRestartPhase,
		"_RestartPhaseQuick":        e.luaRestartPhaseQuick,
		"_GetCurrentPhase":          e.luaGetCurrentPhase,
		"_SetGameSpeed":             e.luaSetGameSpeed,
		"_SetPlayerSpeed":           e.luaSetPlayerSpeed,
		"_SetUniqueActorInvincible": e.luaSetInvincible,
		"_SetUniqueActorLevel":      e.luaSetLevel,
		"_SetPlayerModel":           e.luaSetPlayerModel,
		"_AddItemNum":               e.luaAddItemNum,
		"_GetPlayerPosition":        e.luaGetPlayerPosition,
		"_SetPlayerPosition":        e.luaSetPlayerPosition,
		"_PlayEvent":                e.luaPlayEvent,
		"_DebugPrint":               e.luaDebugPrint,
		"print":                     e.luaPrint,
	}
	for name, fn := range api {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

func (e *Engine) luaChangeMap(L *lua.LState) int {
	phase := L.CheckString(1)
	entry := L.OptInt(2, 0)
	e.requestPhase(phaseChange{phase: phase, entry: entry})
	return 0
}

func (e *Engine) luaRestartPhase(L *lua.LState) int {
	w := e.Snapshot()
	e.requestPhase(phaseChange{phase: w.Phase, entry: w.Entry})
	return 0
}

func (e *Engine) luaRestartPhaseQuick(L *lua.LState) int {
	w := e.Snapshot()
	e.requestPhase(phaseChange{phase: w.Phase, entry: w.Entry, quick: true})
	return 0
}

func (e *Engine) luaGetCurrentPhase(L *lua.LState) int {
	e.worldMu.Lock()
	phase := e.world.Phase
	e.worldMu.Unlock()
	L.Push(lua.LString(phase))
	return 1
}

func (e *Engine) luaSetGameSpeed(L *lua.LState) int {
	f := float64(L.CheckNumber(1))
	e.updateWorld(func(w *World) { w.GameSpeed = f })
	return 0
}

func (e *Engine) luaSetPlayerSpeed(L *lua.LState) int {
	f := float64(L.CheckNumber(1))
	e.updateWorld(func(w *World) { w.PlayerSpeed = f })
	return 0
}

func (e *Engine) luaSetInvincible(L *lua.LState) int {
	id := L.CheckInt(1)
	n := L.CheckInt(2)
	e.updateWorld(func(w *World) {
		if n == 0 {
			delete(w.Invincible, id)
			return
		}
		w.Invincible[id] = n
	})
	return 0
}

func (e *Engine) luaSetLevel(L *lua.LState) int {
	id := L.CheckInt(1)
	level := L.CheckInt(2)
	e.updateWorld(func(w *World) { w.Levels[id] = level })
	return 0
}

func (e *Engine) luaSetPlayerModel(L *lua.LState) int {
	id := L.CheckInt(1)
	e.updateWorld(func(w *World) { w.PlayerModel = id })
	return 0
}

func (e *Engine) luaAddItemNum(L *lua.LState) int {
	id := L.CheckInt(1)
	n := L.CheckInt(2)
	e.updateWorld(func(w *World) { w.Items[id] += n })
	return 0
}

func (e *Engine) luaGetPlayerPosition(L *lua.LState) int {
	e.worldMu.Lock()
	p := e.world.Player
	e.worldMu.Unlock()
	L.Push(lua.LNumber(p.X))
	L.Push(lua.LNumber(p.Y))
	L.Push(lua.LNumber(p.Z))
	L.Push(lua.LNumber(p.RotY))
	return 4
}

func (e *Engine) luaSetPlayerPosition(L *lua.LState) int {
	p := Position{
		X:    float64(L.CheckNumber(1)),
		Y:    float64(L.CheckNumber(2)),
		Z:    float64(L.CheckNumber(3)),
		RotY: float64(L.OptNumber(4, 0)),
	}
	e.updateWorld(func(w *World) { w.Player = p })
	return 0
}

func (e *Engine) luaPlayEvent(L *lua.LState) int {
	event := L.CheckString(1)
	e.updateWorld(func(w *World) { w.Events = append(w.Events, event) })
	e.logger.Info("event started", zap.String("event", event))
	return 0
}

func (e *Engine) luaDebugPrint(L *lua.LState) int {
	e.debugPrint(L.CheckString(1))
	return 0
}

// luaPrint replaces the base print so script output lands in the debug log
// instead of stdout.
func (e *Engine) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	e.debugPrint(strings.Join(parts, "\t"))
	return 0
}

func (e *Engine) debugPrint(msg string) {
	e.updateWorld(func(w *World) { w.DebugLog = append(w.DebugLog, msg) })
	e.logger.Debug("script print", zap.String("message", msg))
}
