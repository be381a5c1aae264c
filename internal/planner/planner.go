// Package planner decides the next step of the reasoning loop. A cheap
// rule pass handles recognizable requests locally; everything else goes
// to the completion backend.
package planner

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/ent0n29/archivist/internal/tools"
	"github.com/ent0n29/archivist/internal/window"
)

// ActionType discriminates the two kinds of steps a strategy can propose.
type ActionType string

const (
	ActionToolCall ActionType = "tool_call"
	ActionFinish   ActionType = "finish"
)

// TaskStep is one proposed step of the loop.
type TaskStep struct {
	Action    ActionType `json:"action"`
	ToolName  string     `json:"tool,omitempty"`
	ToolArgs  tools.Args `json:"args,omitempty"`
	Rationale string     `json:"rationale,omitempty"`
	Answer    string     `json:"answer,omitempty"`
	Strategy  string     `json:"-"`
}

// ErrPlanning signals that no strategy could produce a usable step.
var ErrPlanning = errors.New("planner: could not produce a step")

// ErrNoRuleMatch is returned by the rule strategy when the request does
// not fit any local rule and the model should decide.
var ErrNoRuleMatch = errors.New("planner: no rule matched")

// Strategy proposes the next step given the goal and the visible history.
type Strategy interface {
	ProposeStep(ctx context.Context, history []window.Turn, goal string, reg *tools.Registry) (TaskStep, error)
}

var (
	finalAnswerRe  = regexp.MustCompile(`(?im)^\s*(?:Final Answer|最终答案)\s*[:：]\s*(.+)$`)
	actionFinishRe = regexp.MustCompile(`(?im)^\s*Action:\s*FINISH\b`)
)

// ParseTermination inspects model text for the recognized end signals
// and extracts the answer when one is present. The answer line is
// matched in English and Chinese, matching the documentation corpora
// the agent serves.
func ParseTermination(text string) (answer string, done bool) {
	if m := finalAnswerRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if actionFinishRe.MatchString(text) {
		// FINISH without an inline answer: the answer is whatever
		// precedes the action line.
		if i := actionFinishRe.FindStringIndex(text); i != nil {
			return strings.TrimSpace(text[:i[0]]), true
		}
		return "", true
	}
	return "", false
}
