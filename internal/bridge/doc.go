// Package bridge is the narrow surface between the plugin and the host's
// script engine.
//
// The host thread calls OnCommandSlotPolled, OnCommandResultReady and
// OnLifecycle. Everything else submits work to the engine: plain scripts,
// scripts whose outcome is handed to a Continuation, and calls to named
// global script functions. Until an Engine is attached every submission
// fails with ErrHostNotAttached.
package bridge
