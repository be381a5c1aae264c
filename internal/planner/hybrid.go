package planner

import (
	"context"
	"errors"

	"github.com/ent0n29/archivist/internal/tools"
	"github.com/ent0n29/archivist/internal/window"
)

// HybridStrategy tries the rule pass first and falls back to the model.
// The chosen sub-strategy is recorded on the step for metrics.
type HybridStrategy struct {
	rule  Strategy
	model Strategy
}

func NewHybridStrategy(rule, model Strategy) *HybridStrategy {
	return &HybridStrategy{rule: rule, model: model}
}

func (s *HybridStrategy) ProposeStep(
	ctx context.Context,
	history []window.Turn,
	goal string,
	reg *tools.Registry,
) (TaskStep, error) {
	step, err := s.rule.ProposeStep(ctx, history, goal, reg)
	if err == nil {
		step.Strategy = "rule"
		return step, nil
	}
	if !errors.Is(err, ErrNoRuleMatch) {
		return TaskStep{}, err
	}

	step, err = s.model.ProposeStep(ctx, history, goal, reg)
	if err != nil {
		return TaskStep{}, err
	}
	step.Strategy = "model"
	return step, nil
}
