package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/observability"
)

// =============================================================================
// STRATEGIES
// =============================================================================

// Strategy names the cascade execution modes.
type Strategy string

const (
	StrategySequential     Strategy = "sequential"
	StrategyParallel       Strategy = "parallel"
	StrategyWinnerTakeAll  Strategy = "winner_take_all"
	StrategyAllFinishMerge Strategy = "all_finish_merge"
)

// SelectStrategy picks the strategy for a qualifying rule set:
// one rule runs sequentially; mixed priorities compete winner-take-all;
// a same-priority group merges all finishers. Parallel is never selected
// automatically; callers request it explicitly via RunWithStrategy.
func SelectStrategy(rules []Rule) Strategy {
	if len(rules) <= 1 {
		return StrategySequential
	}
	first := rules[0].Priority
	for _, r := range rules[1:] {
		if r.Priority != first {
			return StrategyWinnerTakeAll
		}
	}
	return StrategyAllFinishMerge
}

// =============================================================================
// ENGINE
// =============================================================================

// Result is the outcome of a cascade run.
type Result struct {
	Executed   bool
	Strategy   Strategy
	Agent      string            // final current agent after the cascade
	Output     agent.AgentOutput // final output after the cascade
	SharedData map[string]any    // cumulative shared data
	RulesFired []string
}

// Engine evaluates the rule list against handler shared data and executes
// cascades through the registry.
type Engine struct {
	registry *agent.Registry
	rules    []Rule
	sem      *Semaphore
	logger   agent.Logger
}

// NewEngine creates an Engine. A nil semaphore uses the process-wide one;
// logger may be nil.
func NewEngine(registry *agent.Registry, rules []Rule, sem *Semaphore, logger agent.Logger) *Engine {
	if sem == nil {
		sem = DefaultSemaphore()
	}
	if logger == nil {
		logger = agent.NopLogger{}
	}
	return &Engine{registry: registry, rules: rules, sem: sem, logger: logger}
}

// Run filters the rules against the shared data and executes the cascade
// under the automatically selected strategy. No shared data or no
// qualifying rules means no cascade.
func (e *Engine) Run(ctx context.Context, input agent.AgentInput, intent, currentAgent string, shared map[string]any) Result {
	return e.run(ctx, input, intent, currentAgent, shared, "")
}

// RunWithStrategy is Run with a caller-forced strategy (notably Parallel,
// which automatic selection never picks).
func (e *Engine) RunWithStrategy(ctx context.Context, input agent.AgentInput, intent, currentAgent string, shared map[string]any, strategy Strategy) Result {
	return e.run(ctx, input, intent, currentAgent, shared, strategy)
}

func (e *Engine) run(ctx context.Context, input agent.AgentInput, intent, currentAgent string, shared map[string]any, forced Strategy) Result {
	if len(shared) == 0 {
		return Result{}
	}

	var qualifying []Rule
	for _, r := range e.rules {
		if r.ShouldExecute != nil && r.ShouldExecute(shared, intent, currentAgent) {
			qualifying = append(qualifying, r)
		}
	}
	if len(qualifying) == 0 {
		return Result{}
	}

	strategy := forced
	if strategy == "" {
		strategy = SelectStrategy(qualifying)
	}

	e.logger.Info("cascade_started",
		"strategy", string(strategy),
		"rules", len(qualifying),
		"current_agent", currentAgent)

	var res Result
	switch strategy {
	case StrategySequential:
		res = e.runSequential(ctx, input, intent, shared, qualifying)
	case StrategyParallel, StrategyAllFinishMerge:
		res = e.runMerge(ctx, input, intent, shared, qualifying)
	case StrategyWinnerTakeAll:
		res = e.runWinnerTakeAll(ctx, input, intent, shared, qualifying)
	default:
		res = e.runSequential(ctx, input, intent, shared, qualifying)
	}
	res.Strategy = strategy

	if res.Executed {
		e.logger.Info("cascade_completed",
			"strategy", string(strategy),
			"agent", res.Agent,
			"rules_fired", res.RulesFired)
	}
	return res
}

// invoke runs one rule's target handler with the shared data carried
// forward. Panics inside a handler are converted to errors so a bad branch
// cannot take down the cascade.
func (e *Engine) invoke(ctx context.Context, rule Rule, input agent.AgentInput, intent string, shared map[string]any) (agent.AgentOutput, error) {
	return agent.SafeExecuteWithResult(e.logger, "rule "+rule.Name, func() (agent.AgentOutput, error) {
		handler, ok := e.registry.Resolve(rule.TargetAgent)
		if !ok {
			return agent.AgentOutput{}, fmt.Errorf("no handler for target agent %q", rule.TargetAgent)
		}

		branch := input
		branch.Intent = intent
		branch.SharedData = cloneShared(shared)
		return handler.Process(ctx, branch)
	})
}

// runSequential executes rules in list order, each receiving the shared
// data accumulated by all prior rules. A failing rule is logged and
// skipped; later rules still run.
func (e *Engine) runSequential(ctx context.Context, input agent.AgentInput, intent string, shared map[string]any, rules []Rule) Result {
	cumulative := cloneShared(shared)
	res := Result{SharedData: cumulative}

	for _, rule := range rules {
		out, err := e.invoke(ctx, rule, input, intent, cumulative)
		if err != nil {
			observability.RecordCascade(rule.Name, string(StrategySequential), "error")
			e.logger.Warn("cascade_rule_failed", "rule", rule.Name, "error", err.Error())
			continue
		}
		observability.RecordCascade(rule.Name, string(StrategySequential), "success")
		mergeShared(cumulative, out.SharedData)
		res.Executed = true
		res.Agent = rule.TargetAgent
		res.Output = out
		res.RulesFired = append(res.RulesFired, rule.Name)
	}
	return res
}

type branchResult struct {
	out agent.AgentOutput
	err error
}

// fanOut runs every rule concurrently, each branch gated by the
// process-wide semaphore, and joins all of them. Results come back in rule
// order regardless of completion order.
func (e *Engine) fanOut(ctx context.Context, input agent.AgentInput, intent string, shared map[string]any, rules []Rule) []branchResult {
	results := make([]branchResult, len(rules))
	var wg sync.WaitGroup
	for i, rule := range rules {
		wg.Add(1)
		go func(i int, rule Rule) {
			defer wg.Done()
			if err := e.sem.Acquire(ctx); err != nil {
				results[i] = branchResult{err: fmt.Errorf("rule %s: %w", rule.Name, err)}
				return
			}
			defer e.sem.Release()
			out, err := e.invoke(ctx, rule, input, intent, shared)
			results[i] = branchResult{out: out, err: err}
		}(i, rule)
	}
	wg.Wait()
	return results
}

// runMerge implements the parallel and all-finish-merge semantics: all
// branches run, failures are dropped, successes fold into the base state
// in rule order with later results winning shared-data collisions.
func (e *Engine) runMerge(ctx context.Context, input agent.AgentInput, intent string, shared map[string]any, rules []Rule) Result {
	results := e.fanOut(ctx, input, intent, shared, rules)

	cumulative := cloneShared(shared)
	res := Result{SharedData: cumulative}
	var merged agent.AgentOutput

	for i, rule := range rules {
		if results[i].err != nil {
			observability.RecordCascade(rule.Name, string(StrategyAllFinishMerge), "error")
			e.logger.Warn("cascade_rule_failed", "rule", rule.Name, "error", results[i].err.Error())
			continue
		}
		observability.RecordCascade(rule.Name, string(StrategyAllFinishMerge), "success")
		out := results[i].out

		if merged.Reply == "" {
			merged.Reply = out.Reply
		} else if out.Reply != "" {
			merged.Reply += "\n\n" + out.Reply
		}
		merged.Actions = append(merged.Actions, out.Actions...)
		merged.Followups = append(merged.Followups, out.Followups...)
		merged.UsageTotalTokens += out.UsageTotalTokens
		mergeShared(cumulative, out.SharedData)

		res.Executed = true
		res.Agent = rule.TargetAgent
		res.RulesFired = append(res.RulesFired, rule.Name)
	}

	merged.SharedData = cumulative
	res.Output = merged
	return res
}

// runWinnerTakeAll joins all branches, then adopts the first rule in list
// order whose branch succeeded. Deliberately not a race: the pick is
// deterministic even when a later-listed branch finishes first.
func (e *Engine) runWinnerTakeAll(ctx context.Context, input agent.AgentInput, intent string, shared map[string]any, rules []Rule) Result {
	results := e.fanOut(ctx, input, intent, shared, rules)

	for i, rule := range rules {
		if results[i].err != nil {
			observability.RecordCascade(rule.Name, string(StrategyWinnerTakeAll), "error")
			e.logger.Warn("cascade_rule_failed", "rule", rule.Name, "error", results[i].err.Error())
			continue
		}
		observability.RecordCascade(rule.Name, string(StrategyWinnerTakeAll), "success")

		cumulative := cloneShared(shared)
		mergeShared(cumulative, results[i].out.SharedData)
		return Result{
			Executed:   true,
			Agent:      rule.TargetAgent,
			Output:     results[i].out,
			SharedData: cumulative,
			RulesFired: []string{rule.Name},
		}
	}
	return Result{}
}

func cloneShared(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mergeShared shallow-merges src into dst, src winning collisions.
func mergeShared(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
