package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ent0n29/archivist/internal/completion"
	"github.com/ent0n29/archivist/internal/reliability"
	"github.com/ent0n29/archivist/internal/tools"
	"github.com/ent0n29/archivist/internal/window"
)

const planSystemPrompt = `You are a step planner for a document question-answering agent.
Given the goal and the transcript so far, reply with ONE JSON object and nothing else:
  {"action":"tool_call","tool":"<name>","args":{...},"rationale":"<why>"}
or, when the transcript already contains enough to answer:
  {"action":"finish","answer":"<the answer>"}
Never call the same tool with the same arguments twice in a row.

Available tools:
%s`

// ModelConfig bounds the model strategy's retry behavior.
type ModelConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Timeout caps each individual completion call. A hung backend
	// surfaces as a deadline error and gets retried like any other
	// transient failure.
	Timeout time.Duration
}

func (c *ModelConfig) fill() {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 4 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// ModelStrategy asks the completion backend for the next step.
type ModelStrategy struct {
	client completion.Client
	cfg    ModelConfig
}

func NewModelStrategy(client completion.Client, cfg ModelConfig) *ModelStrategy {
	cfg.fill()
	return &ModelStrategy{client: client, cfg: cfg}
}

func (s *ModelStrategy) ProposeStep(
	ctx context.Context,
	history []window.Turn,
	goal string,
	reg *tools.Registry,
) (TaskStep, error) {
	system := fmt.Sprintf(planSystemPrompt, describeTools(reg))
	prompt := renderPrompt(history, goal)

	var lastErr error
	for attempt := 0; attempt < s.cfg.Attempts; attempt++ {
		if attempt > 0 {
			delay := reliability.ExponentialBackoff(attempt-1, s.cfg.BaseDelay, s.cfg.MaxDelay)
			select {
			case <-ctx.Done():
				return TaskStep{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		resp, err := s.client.Generate(attemptCtx, completion.Request{
			System: system,
			Prompt: prompt,
		})
		cancel()
		if err != nil {
			lastErr = err
			if !reliability.IsTransient(err) {
				break
			}
			continue
		}

		step, err := parseStep(resp.Text)
		if err != nil {
			// Malformed output gets a fresh sample.
			lastErr = err
			continue
		}
		return step, nil
	}

	return TaskStep{}, fmt.Errorf("%w: %v", ErrPlanning, lastErr)
}

func describeTools(reg *tools.Registry) string {
	if reg == nil {
		return "(none)"
	}
	d := reg.Describe()
	if d == "" {
		return "(none)"
	}
	return d
}

func renderPrompt(history []window.Turn, goal string) string {
	var b strings.Builder
	b.WriteString("Goal: ")
	b.WriteString(goal)
	b.WriteString("\n\nTranscript:\n")
	if len(history) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, t := range history {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	b.WriteString("\nNext step?")
	return b.String()
}

var (
	codeFenceRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	reactCallRe  = regexp.MustCompile(`(?im)^\s*Action:\s*(\w+)\s*\((.*)\)\s*$`)
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

func parseStep(text string) (TaskStep, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return TaskStep{}, fmt.Errorf("empty model reply")
	}

	if m := codeFenceRe.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}

	if raw := jsonObjectRe.FindString(trimmed); raw != "" {
		var step TaskStep
		if err := json.Unmarshal([]byte(raw), &step); err == nil {
			if err := validateStep(step); err == nil {
				return step, nil
			}
		}
	}

	// Plain ReAct text. Check termination first so "Action: FINISH" is
	// not mistaken for a tool named FINISH.
	if answer, done := ParseTermination(trimmed); done {
		return TaskStep{Action: ActionFinish, Answer: answer}, nil
	}

	if m := reactCallRe.FindStringSubmatch(trimmed); m != nil {
		args, err := parseCallArgs(m[2])
		if err != nil {
			return TaskStep{}, fmt.Errorf("parse action arguments: %w", err)
		}
		return TaskStep{
			Action:   ActionToolCall,
			ToolName: m[1],
			ToolArgs: args,
		}, nil
	}

	return TaskStep{}, fmt.Errorf("unrecognized model reply: %.80q", trimmed)
}

func parseCallArgs(raw string) (tools.Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return tools.Args{}, nil
	}
	if strings.HasPrefix(raw, "{") {
		var args tools.Args
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, err
		}
		return args, nil
	}
	// Bare single argument, e.g. Action: calculator(2+2).
	return tools.Args{"input": strings.Trim(raw, `"'`)}, nil
}

func validateStep(step TaskStep) error {
	switch step.Action {
	case ActionToolCall:
		if strings.TrimSpace(step.ToolName) == "" {
			return fmt.Errorf("tool_call step without tool name")
		}
		return nil
	case ActionFinish:
		return nil
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}
