// Package usage estimates the token volume of a session's message traffic,
// broken down by producing agent. The backend bills generation by tokens;
// this gives a local approximation from the recorded event log.
package usage

import (
	"fmt"
	"sort"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/stratwatch/internal/types"
)

// Report summarizes estimated token usage for one session.
type Report struct {
	SessionID types.SessionID `json:"session_id"`
	Total     int             `json:"total"`
	ByAgent   map[string]int  `json:"by_agent,omitempty"`
	Events    int             `json:"events"`
}

// Estimator counts tokens in event messages using a fixed encoding.
type Estimator struct {
	tokenizer *tiktoken.Tiktoken
}

// New creates an estimator. model selects the tokenizer (e.g. "gpt-4");
// unknown models fall back to cl100k_base.
func New(model string) (*Estimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Estimator{tokenizer: enc}, nil
}

func (e *Estimator) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// Estimate folds the session's event log into a usage report. Events without
// a message contribute nothing; events without an agent are grouped under
// "system".
func (e *Estimator) Estimate(sessionID types.SessionID, events []*types.Event) *Report {
	report := &Report{
		SessionID: sessionID,
		ByAgent:   make(map[string]int),
		Events:    len(events),
	}

	for _, event := range events {
		if event.Message == "" {
			continue
		}
		tokens := e.countTokens(event.Message)
		agent := event.Agent
		if agent == "" {
			agent = "system"
		}
		report.ByAgent[agent] += tokens
		report.Total += tokens
	}

	if len(report.ByAgent) == 0 {
		report.ByAgent = nil
	}
	return report
}

// TopAgents returns agent names ordered by descending token count.
func (r *Report) TopAgents() []string {
	names := make([]string, 0, len(r.ByAgent))
	for name := range r.ByAgent {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if r.ByAgent[names[i]] != r.ByAgent[names[j]] {
			return r.ByAgent[names[i]] > r.ByAgent[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
