package harness

import "fmt"

// State is a position in a configuration's evaluation lifecycle.
type State int

const (
	StateIdle State = iota
	StateResampling
	StateTraining
	StateScoring
	StateRecorded
	StateReducing
	StateDone
	StateAborted
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateResampling: "resampling",
	StateTraining:   "training",
	StateScoring:    "scoring",
	StateRecorded:   "recorded",
	StateReducing:   "reducing",
	StateDone:       "done",
	StateAborted:    "aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}
