// Package console correlates text commands from UI sessions with results
// produced by the host's script engine.
//
// Any number of sessions enqueue commands into one global FIFO. The host
// thread pulls them one at a time with PopNext, which marks the command's
// session as the current executor, and posts the outcome back with
// DeliverResult, which routes the text to that session's panel through the UI
// thread. Because the host engine runs one script at a time, at most one
// session is current at any moment.
//
// Commands the host does not pull within the timeout are reaped: they are
// dropped and their session receives TimeoutMessage. Reaping is the only way a
// command is discarded, and it is never silent.
//
// Locking: the FIFO and the current slot each have their own mutex, held only
// while a container is mutated. Panels are never called with a lock held and
// never from the caller's goroutine; delivery is always a post into the UI
// loop.
package console
