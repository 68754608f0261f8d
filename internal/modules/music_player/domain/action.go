package domain

// Action is a state transition request processed by the playback loop.
type Action int

const (
	ActionPlay Action = iota
	ActionPause
	ActionSkip
)

// String returns a human-readable representation of the action.
func (a Action) String() string {
	switch a {
	case ActionPause:
		return "pause"
	case ActionSkip:
		return "skip"
	default:
		return "play"
	}
}
