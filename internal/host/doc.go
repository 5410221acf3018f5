// Package host is a Lua-scripted stand-in for the game the console attaches
// to.
//
// The Engine owns a gopher-lua state. gopher-lua's LState is not goroutine
// safe, so the state is only touched by the goroutine that drives frames,
// either Run or a caller of Step. Other goroutines queue work through
// QueueScriptExecution, QueueScriptCall, Do and ChangePhase; queued work runs
// at the start of the next frame in the order it was queued.
//
// A frame:
//
//  1. runs everything queued so far;
//  2. applies a pending phase change, then calls the script globals
//     Console_PostLoadMessage and Console_PostStartMessage when bound.
//
// Work queued while a frame runs waits for the following frame.
package host
