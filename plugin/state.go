package plugin

// State represents the lifecycle state of a discovered plugin.
type State int

const (
	StateDiscovered State = iota // Manifest resolved, not yet started
	StateStarted                 // Every server module started
	StateFailed                  // A module load or start failed
	StateStopped                 // Stopped during shutdown
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateStarted:
		return "started"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
