package session

// State of a manager in live mode.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateRedirecting
	StateAuthenticated
	StateError
)

var stateNames = [...]string{
	StateUninitialized: "UNINITIALIZED",
	StateReady:         "READY",
	StateRedirecting:   "REDIRECTING",
	StateAuthenticated: "AUTHENTICATED",
	StateError:         "ERROR",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}

	return stateNames[s]
}
