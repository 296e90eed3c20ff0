// internal/simulator/script.go
package simulator

import "time"

// Step is one frame of a scripted session: wait Delay, then send Frame.
type Step struct {
	Delay time.Duration
	Frame string
}

// DefaultScript plays a full generate/evaluate/refine workflow that ends in
// a successful completion carrying a strategy and evaluation payload.
func DefaultScript() []Step {
	return []Step{
		{Frame: `{"type":"ready"}`},
		{Frame: `{"type":"heartbeat"}`},
		{Frame: `{"type":"agent_start","agent":"StrategyParser","message":"Parsing strategy description"}`},
		{Frame: `{"type":"agent_complete","agent":"StrategyParser","message":"Parsed entry and exit rules"}`},
		{Frame: `{"type":"agent_start","agent":"CodeGenerator","message":"Generating strategy code"}`},
		{Frame: `{"type":"agent_complete","agent":"CodeGenerator","message":"Code generated"}`},
		{Frame: `{"type":"agent_start","agent":"BacktestRunner","message":"Running backtest"}`},
		{Frame: `{"type":"heartbeat"}`},
		{Frame: `{"type":"agent_complete","agent":"BacktestRunner","message":"Backtest finished: 42 trades"}`},
		{Frame: `{"type":"agent_start","agent":"StrategyAnalyst","message":"Analyzing results"}`},
		{Frame: `{"type":"agent_complete","agent":"StrategyAnalyst","message":"Sharpe 1.4, max drawdown 12%"}`},
		{Frame: `{"type":"iteration_start","message":"Starting refinement iteration 2"}`},
		{Frame: `{"type":"refinement","agent":"StrategyRefiner","message":"Tightened stop loss"}`},
		{Frame: `{"type":"agent_complete","agent":"StrategyRefiner","message":"Refinement applied"}`},
		{Frame: `{"type":"complete","message":"Workflow finished","strategy":"def on_bar(ctx):\n    pass\n","evaluation":{"passed":true,"average_score":0.87,"passed_evaluators":["syntax","backtest","risk"],"evaluators":{"syntax":{"passed":true},"backtest":{"passed":true,"score":0.9},"risk":{"passed":true,"score":0.84}}}}`},
	}
}

// FailureScript plays a workflow that dies during the backtest.
func FailureScript() []Step {
	return []Step{
		{Frame: `{"type":"ready"}`},
		{Frame: `{"type":"agent_start","agent":"StrategyParser","message":"Parsing strategy description"}`},
		{Frame: `{"type":"agent_complete","agent":"StrategyParser","message":"Parsed entry and exit rules"}`},
		{Frame: `{"type":"agent_start","agent":"BacktestRunner","message":"Running backtest"}`},
		{Frame: `{"type":"error","message":"backtest engine crashed: division by zero"}`},
	}
}

// Spread returns a copy of the script with every step delayed by d, to
// simulate a paced session.
func Spread(script []Step, d time.Duration) []Step {
	out := make([]Step, len(script))
	for i, step := range script {
		out[i] = Step{Delay: d, Frame: step.Frame}
	}
	return out
}
