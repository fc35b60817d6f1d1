package digest

// RunState is the progress of one digest run.
type RunState int

const (
	StateCollecting RunState = iota
	StateGrouped
	StateSorted
	StateSynthesized
	StateRendered
	StateDispatched
	StatePurged
)

var runStateNames = [...]string{
	StateCollecting:  "COLLECTING",
	StateGrouped:     "GROUPED",
	StateSorted:      "SORTED",
	StateSynthesized: "SYNTHESIZED",
	StateRendered:    "RENDERED",
	StateDispatched:  "DISPATCHED",
	StatePurged:      "PURGED",
}

func (s RunState) String() string {
	if s < 0 || int(s) >= len(runStateNames) {
		return "UNKNOWN"
	}
	return runStateNames[s]
}
