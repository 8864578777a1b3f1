package watchdog

import "time"

// Track is the liveness record for one agent: the last pane snapshot seen
// and when it last differed from the one before it.
type Track struct {
	Snapshot   string
	LastChange time.Time
}

// State carries tracks between sweeps. The first sweep that sees an agent
// only records a baseline; judgments start on the second.
type State struct {
	Tracks map[string]Track
}

// NewState returns an empty State.
func NewState() State {
	return State{Tracks: make(map[string]Track)}
}

// Observation is what one sweep saw for one agent.
type Observation struct {
	Agent    string
	Session  string
	Exists   bool
	Snapshot string
	Err      error
}

// Verdict is the liveness judgment for one agent in one sweep.
type Verdict int

const (
	// VerdictBaseline means the agent was seen for the first time.
	VerdictBaseline Verdict = iota
	// VerdictProgress means the pane changed since the last sweep.
	VerdictProgress
	// VerdictQuiet means the pane is unchanged but inside the stall window.
	VerdictQuiet
	// VerdictStalled means the pane has been unchanged past the window.
	VerdictStalled
	// VerdictCrashed means the session no longer exists.
	VerdictCrashed
	// VerdictError means the agent could not be observed this sweep.
	VerdictError
)

var verdictNames = map[Verdict]string{
	VerdictBaseline: "baseline",
	VerdictProgress: "progress",
	VerdictQuiet:    "quiet",
	VerdictStalled:  "stalled",
	VerdictCrashed:  "crashed",
	VerdictError:    "error",
}

func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return "unknown"
}

// Outcome pairs an agent with its verdict. Idle is how long the pane has
// been unchanged; Err is set only for VerdictError.
type Outcome struct {
	Agent   string
	Verdict Verdict
	Idle    time.Duration
	Err     error
}

// Advance folds one sweep's observations into the previous state and
// returns the next state plus one outcome per observation, in input
// order. It never mutates prev.
//
// Rules:
//   - an unobservable agent keeps its old track, so a transient capture
//     error cannot reset the stall clock
//   - a missing session is a crash; its track is dropped
//   - a changed snapshot refreshes the track's LastChange
//   - an unchanged snapshot past stallAfter is a stall; the track is
//     dropped so the verdict fires once per episode
//   - tracks for agents absent from the observations are pruned
//
// stallAfter must be positive.
func Advance(prev State, now time.Time, stallAfter time.Duration, observations []Observation) (State, []Outcome) {
	next := State{Tracks: make(map[string]Track, len(observations))}
	outcomes := make([]Outcome, 0, len(observations))

	for _, obs := range observations {
		prior, tracked := prev.Tracks[obs.Agent]

		switch {
		case obs.Err != nil:
			if tracked {
				next.Tracks[obs.Agent] = prior
			}
			outcomes = append(outcomes, Outcome{Agent: obs.Agent, Verdict: VerdictError, Err: obs.Err})

		case !obs.Exists:
			outcomes = append(outcomes, Outcome{Agent: obs.Agent, Verdict: VerdictCrashed})

		case !tracked:
			next.Tracks[obs.Agent] = Track{Snapshot: obs.Snapshot, LastChange: now}
			outcomes = append(outcomes, Outcome{Agent: obs.Agent, Verdict: VerdictBaseline})

		case obs.Snapshot != prior.Snapshot:
			next.Tracks[obs.Agent] = Track{Snapshot: obs.Snapshot, LastChange: now}
			outcomes = append(outcomes, Outcome{Agent: obs.Agent, Verdict: VerdictProgress})

		default:
			idle := now.Sub(prior.LastChange)
			if idle >= stallAfter {
				outcomes = append(outcomes, Outcome{Agent: obs.Agent, Verdict: VerdictStalled, Idle: idle})
				continue
			}
			next.Tracks[obs.Agent] = prior
			outcomes = append(outcomes, Outcome{Agent: obs.Agent, Verdict: VerdictQuiet, Idle: idle})
		}
	}

	return next, outcomes
}
