package domain

// SessionState is the lifecycle state of a playback session.
type SessionState int

const (
	// StateIdle means no current track: nothing queued, or playback finished.
	StateIdle SessionState = iota
	// StateStarting means an audio source is being resolved or opened.
	StateStarting
	// StatePlaying means a track is audible.
	StatePlaying
	// StatePaused means playback is suspended and can be resumed.
	StatePaused
	// StateTransitioning means an advance is in progress and no
	// completion registration has been issued yet.
	StateTransitioning
	// StateClosed is terminal: the session is torn down and every
	// further command fails.
	StateClosed
)

// String returns a human-readable representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateTransitioning:
		return "transitioning"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// CanSkip returns true if a skip command is meaningful in this state.
func (s SessionState) CanSkip() bool {
	return s == StatePlaying || s == StatePaused
}
