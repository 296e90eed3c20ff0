package workflow

import "strings"

// Status classifies a phase's progress as inferred from the event log.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDone    Status = "done"
)

// Pairing matches a known producer by event kind and/or agent name.
// An empty field matches anything; comparisons are case-insensitive.
type Pairing struct {
	Kind  string
	Agent string
}

// Phase is one named stage of the backend pipeline. Key must be lowercase:
// it doubles as a case-insensitive substring matcher against the agent and
// message fields. Pairings supplement the substring match with known
// producer names that don't contain the key (e.g. "StrategyAnalyst" for
// phase "analyze").
type Phase struct {
	Key      string
	Label    string
	Pairings []Pairing
}

// Matches reports whether the event counts toward this phase. Rules are
// evaluated in order, first match wins: agent substring, message substring,
// then the producer pairing table. Matches are not exclusive across phases.
func (p Phase) Matches(e Event) bool {
	if strings.Contains(strings.ToLower(e.Agent), p.Key) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Message), p.Key) {
		return true
	}
	for _, pair := range p.Pairings {
		if pair.Kind != "" && !strings.EqualFold(pair.Kind, e.Kind) {
			continue
		}
		if pair.Agent != "" && !strings.EqualFold(pair.Agent, e.Agent) {
			continue
		}
		return true
	}
	return false
}

// DefaultPipeline returns the fixed pipeline of the strategy generation
// backend: parse, code, backtest, analyze, refine.
func DefaultPipeline() []Phase {
	return []Phase{
		{
			Key:   "parse",
			Label: "Parsing strategy",
			Pairings: []Pairing{
				{Kind: KindAgentStart, Agent: "StrategyParser"},
				{Agent: "StrategyParser"},
			},
		},
		{
			Key:   "code",
			Label: "Generating code",
			Pairings: []Pairing{
				{Agent: "CodeGenerator"},
				{Agent: "StrategyCoder"},
			},
		},
		{
			Key:   "backtest",
			Label: "Running backtest",
			Pairings: []Pairing{
				{Agent: "BacktestRunner"},
			},
		},
		{
			Key:   "analyze",
			Label: "Analyzing results",
			Pairings: []Pairing{
				{Agent: "StrategyAnalyst"},
				{Agent: "ResultAnalyzer"},
			},
		},
		{
			Key:   "refine",
			Label: "Refining strategy",
			Pairings: []Pairing{
				{Kind: KindRefinement},
				{Agent: "StrategyRefiner"},
			},
		},
	}
}
