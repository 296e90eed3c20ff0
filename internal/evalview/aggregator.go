// Package evalview reshapes a backend evaluation result for display: an
// overall panel plus one collapsible panel per evaluator. It keeps no state
// beyond the independent expand/collapse toggles.
package evalview

import (
	"fmt"
	"sort"
	"sync"

	"github.com/user/stratwatch/internal/types"
)

// Display caps, kept for interface compatibility with the product UI.
const (
	MaxErrorsShown   = 10
	MaxWarningsShown = 5
)

// ItemList is a capped list of display strings. More is the number of
// items hidden past the cap.
type ItemList struct {
	Items []string `json:"items,omitempty"`
	More  int      `json:"more,omitempty"`
}

// Label returns the "and N more" indicator, or "" when nothing is hidden.
func (l ItemList) Label() string {
	if l.More <= 0 {
		return ""
	}
	return fmt.Sprintf("and %d more", l.More)
}

func capped(items []string, max int) ItemList {
	if len(items) <= max {
		return ItemList{Items: append([]string(nil), items...)}
	}
	return ItemList{Items: append([]string(nil), items[:max]...), More: len(items) - max}
}

// OverallPanel is the top-level summary, expanded by default.
type OverallPanel struct {
	Passed           bool     `json:"passed"`
	AverageScore     float64  `json:"average_score"`
	FailedEvaluators []string `json:"failed_evaluators,omitempty"`
	PassedEvaluators []string `json:"passed_evaluators,omitempty"`
	Errors           ItemList `json:"errors"`
	Warnings         ItemList `json:"warnings"`
	Expanded         bool     `json:"expanded"`
}

// EvaluatorPanel is one per-evaluator breakdown, collapsed by default.
type EvaluatorPanel struct {
	Name     string         `json:"name"`
	Passed   bool           `json:"passed"`
	Score    *float64       `json:"score,omitempty"`
	Errors   ItemList       `json:"errors"`
	Warnings ItemList       `json:"warnings"`
	Details  map[string]any `json:"details,omitempty"`
	Expanded bool           `json:"expanded"`
}

// View holds the toggle state over one evaluation result. Each evaluator's
// visibility is independent, keyed by name.
type View struct {
	mu              sync.Mutex
	result          *types.EvalResult
	overallExpanded bool
	expanded        map[string]bool
}

func New(result *types.EvalResult) *View {
	return &View{
		result:          result,
		overallExpanded: true,
		expanded:        make(map[string]bool),
	}
}

// Toggle flips the named evaluator's visibility and returns the new state.
func (v *View) Toggle(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expanded[name] = !v.expanded[name]
	return v.expanded[name]
}

// Expanded reports the named evaluator's visibility (collapsed by default).
func (v *View) Expanded(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expanded[name]
}

// ToggleOverall flips the overall panel's visibility and returns the new state.
func (v *View) ToggleOverall() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.overallExpanded = !v.overallExpanded
	return v.overallExpanded
}

// Overall builds the summary panel with capped error/warning lists.
func (v *View) Overall() OverallPanel {
	v.mu.Lock()
	defer v.mu.Unlock()
	return OverallPanel{
		Passed:           v.result.Passed,
		AverageScore:     v.result.AverageScore,
		FailedEvaluators: v.result.FailedEvaluators,
		PassedEvaluators: v.result.PassedEvaluators,
		Errors:           capped(v.result.Errors, MaxErrorsShown),
		Warnings:         capped(v.result.Warnings, MaxWarningsShown),
		Expanded:         v.overallExpanded,
	}
}

// Evaluators builds the per-evaluator panels, sorted by name for stable
// output.
func (v *View) Evaluators() []EvaluatorPanel {
	v.mu.Lock()
	defer v.mu.Unlock()

	names := make([]string, 0, len(v.result.Evaluators))
	for name := range v.result.Evaluators {
		names = append(names, name)
	}
	sort.Strings(names)

	panels := make([]EvaluatorPanel, 0, len(names))
	for _, name := range names {
		r := v.result.Evaluators[name]
		panels = append(panels, EvaluatorPanel{
			Name:     name,
			Passed:   r.Passed,
			Score:    r.Score,
			Errors:   capped(r.Errors, MaxErrorsShown),
			Warnings: capped(r.Warnings, MaxWarningsShown),
			Details:  r.Details,
			Expanded: v.expanded[name],
		})
	}
	return panels
}
