package pipeline

// State is the position of a package in the pipeline.
type State int

const (
	Pending State = iota
	Filtered
	Fetching
	Extracting
	Renaming
	Patching
	Reconfiguring
	Done
	Abandoned
	Aborted
)

var stateNames = map[State]string{
	Pending:       "pending",
	Filtered:      "filtered",
	Fetching:      "fetching",
	Extracting:    "extracting",
	Renaming:      "renaming",
	Patching:      "patching",
	Reconfiguring: "reconfiguring",
	Done:          "done",
	Abandoned:     "abandoned",
	Aborted:       "aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case Filtered, Done, Abandoned, Aborted:
		return true
	}
	return false
}
