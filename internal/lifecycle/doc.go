// Package lifecycle queues native closures against host lifecycle events.
//
// Each Registry serves one event and holds two kinds of work:
//
//   - one-shot tasks, added with EnqueueOnce, run the next time the event
//     fires and are then forgotten;
//   - durable callbacks, added with Register, run on every firing until
//     Unregister is called with their CallbackID.
//
// The host thread calls Fire when the event occurs. Fire never holds a lock
// while user code runs, so tasks may freely re-enter the registry:
//
//	hooks.PostLoad.EnqueueOnce(func() {
//	    // runs on this load; the follow-up waits for the next one
//	    hooks.PostLoad.EnqueueOnce(followUp)
//	})
//
// A panicking closure is recovered and logged; the remaining closures of the
// same firing still run.
package lifecycle
