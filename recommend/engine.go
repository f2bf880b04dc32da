package recommend

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/chronopulse/features"
)

// costLimit bounds the runtime cost of a single rule evaluation
const costLimit = 1000000

// EvaluationResult is the outcome of one rule against one record
type EvaluationResult struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Matched  bool   `json:"matched"`
}

type compiledRule struct {
	rule Rule
	prog cel.Program
}

// Engine evaluates an ordered rule set against raw input records. All rules
// are compiled up front; the engine is immutable and safe for concurrent use.
type Engine struct {
	env      *cel.Env
	rules    []compiledRule
	fallback string
}

// NewEnv declares every record field as a typed CEL variable
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("age", cel.IntType),
		cel.Variable("gender", cel.StringType),
		cel.Variable("occupation", cel.StringType),
		cel.Variable("sleep_duration", cel.DoubleType),
		cel.Variable("quality_of_sleep", cel.IntType),
		cel.Variable("physical_activity_level", cel.IntType),
		cel.Variable("stress_level", cel.IntType),
		cel.Variable("bmi_category", cel.StringType),
		cel.Variable("heart_rate", cel.IntType),
		cel.Variable("daily_steps", cel.IntType),
		cel.Variable("systolic_bp", cel.IntType),
		cel.Variable("diastolic_bp", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewEngine validates and compiles rs
func NewEngine(rs RuleSet) (*Engine, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}

	en := &Engine{
		env:      env,
		rules:    make([]compiledRule, 0, len(rs.Rules)),
		fallback: rs.Default,
	}
	for _, r := range rs.Rules {
		prog, err := en.Compile(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", r.ID, err)
		}
		en.rules = append(en.rules, compiledRule{rule: r, prog: prog})
	}
	return en, nil
}

// NewDefaultEngine compiles DefaultRuleSet
func NewDefaultEngine() (*Engine, error) {
	return NewEngine(DefaultRuleSet())
}

// Compile type-checks a boolean expression and builds its program
func (en *Engine) Compile(expression string) (cel.Program, error) {
	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}

	prog, err := en.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// Evaluate runs every rule against rec, in rule order
func (en *Engine) Evaluate(rec features.Record) ([]*EvaluationResult, error) {
	facts := rec.Facts()
	results := make([]*EvaluationResult, 0, len(en.rules))
	for _, cr := range en.rules {
		out, _, err := cr.prog.Eval(facts)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", cr.rule.ID, err)
		}
		matched, _ := out.Value().(bool)
		results = append(results, &EvaluationResult{
			RuleID:   cr.rule.ID,
			RuleName: cr.rule.Name,
			Matched:  matched,
		})
	}
	return results, nil
}

// Recommend returns the messages of every rule that holds for rec, in rule
// order, or the default message alone when none holds.
func (en *Engine) Recommend(rec features.Record) ([]string, error) {
	results, err := en.Evaluate(rec)
	if err != nil {
		return nil, err
	}

	var messages []string
	for i, res := range results {
		if res.Matched {
			messages = append(messages, en.rules[i].rule.Message)
		}
	}
	if len(messages) == 0 {
		messages = append(messages, en.fallback)
	}
	return messages, nil
}

// Rules returns the compiled rules in evaluation order
func (en *Engine) Rules() []Rule {
	out := make([]Rule, len(en.rules))
	for i, cr := range en.rules {
		out[i] = cr.rule
	}
	return out
}
