package planner

import (
	"context"
	"regexp"
	"strings"

	"github.com/ent0n29/archivist/internal/tools"
	"github.com/ent0n29/archivist/internal/window"
)

// RuleStrategy matches recognizable requests to tools without spending a
// model call. It is deliberately conservative: anything ambiguous falls
// through to the model with ErrNoRuleMatch.
type RuleStrategy struct{}

func NewRuleStrategy() *RuleStrategy { return &RuleStrategy{} }

var (
	arithmeticRe = regexp.MustCompile(`\d[\d\s.]*(?:[+\-*/%^][\d\s.()]*)+\d`)
	indexPathRe  = regexp.MustCompile(`(?i)\b(?:index|ingest)\s+(?:the\s+)?(?:docs?\s+(?:at|in|from)\s+)?([~./\w][\w./~-]*)`)
)

var searchPhrases = []string{
	"search the docs",
	"search docs",
	"search the documentation",
	"what does the documentation say",
	"what do the docs say",
	"look up in the docs",
	"find in the docs",
}

func (s *RuleStrategy) ProposeStep(
	ctx context.Context,
	history []window.Turn,
	goal string,
	reg *tools.Registry,
) (TaskStep, error) {
	step, ok := s.matchGoal(goal, reg)
	if !ok {
		return TaskStep{}, ErrNoRuleMatch
	}

	// Rule goals take exactly one tool call: once an observation landed
	// for this goal, close out with its content instead of re-firing the
	// same rule forever.
	if obs, found := latestObservation(history); found {
		return TaskStep{
			Action:    ActionFinish,
			Rationale: "tool result available",
			Answer:    obs,
		}, nil
	}

	return step, nil
}

func (s *RuleStrategy) matchGoal(goal string, reg *tools.Registry) (TaskStep, bool) {
	if expr := arithmeticRe.FindString(goal); expr != "" && hasTool(reg, "calculator") {
		return TaskStep{
			Action:    ActionToolCall,
			ToolName:  "calculator",
			ToolArgs:  tools.Args{"expression": strings.TrimSpace(expr)},
			Rationale: "arithmetic expression in request",
		}, true
	}

	if m := indexPathRe.FindStringSubmatch(goal); m != nil && hasTool(reg, "index_docs") {
		return TaskStep{
			Action:    ActionToolCall,
			ToolName:  "index_docs",
			ToolArgs:  tools.Args{"path": m[1]},
			Rationale: "explicit indexing request",
		}, true
	}

	lowered := strings.ToLower(goal)
	for _, phrase := range searchPhrases {
		if strings.Contains(lowered, phrase) && hasTool(reg, "search_docs") {
			return TaskStep{
				Action:    ActionToolCall,
				ToolName:  "search_docs",
				ToolArgs:  tools.Args{"query": goal, "top_k": 4},
				Rationale: "explicit documentation search",
			}, true
		}
	}

	return TaskStep{}, false
}

func latestObservation(history []window.Turn) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t.Role == window.RoleUser {
			return "", false
		}
		if t.Role == window.RoleObservation {
			return strings.TrimSpace(t.Content), true
		}
	}
	return "", false
}

func hasTool(reg *tools.Registry, name string) bool {
	if reg == nil {
		return false
	}
	_, err := reg.Get(name)
	return err == nil
}
