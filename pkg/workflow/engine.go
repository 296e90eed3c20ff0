package workflow

// PhaseState is the derived status of one pipeline phase.
type PhaseState struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Status Status `json:"status"`
}

// Infer classifies every phase against the event log. It is a pure function
// of (log, phases): identical inputs always yield identical output, so the
// result can never drift from the log.
//
// A phase is pending when no event matches it, done when the most recent
// matching event is an agent_complete, and active otherwise. Using the most
// recent match lets a phase revert from done back to active when the
// pipeline re-enters it, e.g. a refinement loop re-invoking an earlier
// agent.
func Infer(log []Event, phases []Phase) []PhaseState {
	out := make([]PhaseState, len(phases))
	for i, p := range phases {
		state := PhaseState{Key: p.Key, Label: p.Label, Status: StatusPending}
		for j := range log {
			if !p.Matches(log[j]) {
				continue
			}
			if log[j].Kind == KindAgentComplete {
				state.Status = StatusDone
			} else {
				state.Status = StatusActive
			}
		}
		out[i] = state
	}
	return out
}

// Complete reports whether the log contains a terminal event. Because logs
// are append-only, Complete never reverts to false for a growing log.
func Complete(log []Event) bool {
	for i := range log {
		if IsTerminal(log[i].Kind) {
			return true
		}
	}
	return false
}

// Failed reports whether the first terminal event in the log is an error.
func Failed(log []Event) bool {
	for i := range log {
		if IsTerminal(log[i].Kind) {
			return log[i].Kind == KindError
		}
	}
	return false
}
