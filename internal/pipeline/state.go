package pipeline

// State is a position in the run state machine.
type State string

const (
	StateInit      State = "init"
	StateGuarded   State = "guarded"
	StateCleaned   State = "cleaned"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

var transitions = map[State][]State{
	StateInit:    {StateGuarded, StateAborted},
	StateGuarded: {StateCleaned, StateAborted},
	StateCleaned: {StateRunning, StateAborted},
	StateRunning: {StateRunning, StateCompleted, StateAborted},
}

// CanTransition reports whether the machine may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
