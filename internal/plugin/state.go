package plugin

// State is the lifecycle state of a Plugin.
type State int

// Plugin states.
const (
	// StateNew - constructed, goroutines not running.
	StateNew State = iota

	// StateRunning - UI loop and reaper are running.
	StateRunning

	// StateStopped - stopped; a Plugin cannot be restarted.
	StateStopped
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
