package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/archivist/internal/executor"
	"github.com/ent0n29/archivist/internal/observability"
	"github.com/ent0n29/archivist/internal/planner"
	"github.com/ent0n29/archivist/internal/policy"
	"github.com/ent0n29/archivist/internal/tools"
	"github.com/ent0n29/archivist/internal/transcript"
	"github.com/ent0n29/archivist/internal/window"
)

// State is the terminal state of one answered question.
type State string

const (
	StateRunning  State = "RUNNING"
	StateFinished State = "FINISHED"
	StateAborted  State = "ABORTED"
)

// AbortReason explains why an answer ended in StateAborted.
type AbortReason string

const (
	AbortNone           AbortReason = ""
	AbortIterationLimit AbortReason = "iteration_limit_exceeded"
	AbortPlanningFailed AbortReason = "planning_failed"
	AbortCanceled       AbortReason = "canceled"
	AbortPolicyBlocked  AbortReason = "policy_blocked"
)

// AskResult is the outcome of one question.
type AskResult struct {
	Answer      string      `json:"answer"`
	State       State       `json:"state"`
	AbortReason AbortReason `json:"abort_reason,omitempty"`
	Iterations  int         `json:"iterations"`
}

// StreamEvent is one element of a streamed answer: every appended turn
// in sequence order, then exactly one final event carrying the result.
type StreamEvent struct {
	Turn   *window.Turn `json:"turn,omitempty"`
	Result *AskResult   `json:"result,omitempty"`
}

const systemAnchor = `You are Archivist, a document question-answering agent.
You reason in steps: think, call a tool, observe the result, repeat.
Answer from tool observations, not from guesses. When the observations
contain the answer, finish with it.`

// LoopDeps wires the loop's collaborators. Transcripts, Metrics and
// Stages are optional.
type LoopDeps struct {
	Strategy    planner.Strategy
	Executor    *executor.Executor
	Registry    *tools.Registry
	Transcripts transcript.Store
	Metrics     *observability.Metrics
	Stages      *observability.StageWindow
}

// Loop drives the thought-action-observation cycle for one question at
// a time per session.
type Loop struct {
	strategy      planner.Strategy
	exec          *executor.Executor
	registry      *tools.Registry
	transcripts   transcript.Store
	metrics       *observability.Metrics
	stages        *observability.StageWindow
	maxIterations int
}

func NewLoop(deps LoopDeps, maxIterations int) *Loop {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &Loop{
		strategy:      deps.Strategy,
		exec:          deps.Executor,
		registry:      deps.Registry,
		transcripts:   deps.Transcripts,
		metrics:       deps.Metrics,
		stages:        deps.Stages,
		maxIterations: maxIterations,
	}
}

// Ask answers one question on the session, blocking until a terminal
// state is reached.
func (l *Loop) Ask(ctx context.Context, s *Session, query string) (AskResult, error) {
	return l.run(ctx, s, query, nil)
}

// AskStream answers one question while streaming every appended turn in
// sequence order. The channel is closed after the final result event.
func (l *Loop) AskStream(ctx context.Context, s *Session, query string) <-chan StreamEvent {
	// Sized so a full-length answer never blocks the loop: at most three
	// turns per iteration plus anchor, question, final turn and result.
	events := make(chan StreamEvent, l.maxIterations*3+4)
	go func() {
		defer close(events)
		emit := func(ev StreamEvent) {
			select {
			case events <- ev:
			default:
				// Buffer is sized for the worst case; a full channel
				// means the consumer is gone.
			}
		}
		res, err := l.run(ctx, s, query, emit)
		if err != nil {
			res = AskResult{
				Answer:      err.Error(),
				State:       StateAborted,
				AbortReason: AbortPlanningFailed,
			}
		}
		emit(StreamEvent{Result: &res})
	}()
	return events
}

func (l *Loop) run(ctx context.Context, s *Session, query string, emit func(StreamEvent)) (AskResult, error) {
	started := time.Now()
	statsBefore := s.Window.Stats()

	appendTurn := func(role window.Role, content string, pinned bool) (window.Turn, error) {
		turn, err := s.Window.Append(ctx, role, content, pinned)
		if err != nil {
			return turn, err
		}
		l.archive(s.ID, turn)
		if emit != nil {
			emit(StreamEvent{Turn: &turn})
		}
		return turn, nil
	}

	finalize := func(res AskResult) AskResult {
		s.IterationCount += res.Iterations
		statsAfter := s.Window.Stats()
		if l.metrics != nil {
			l.metrics.SessionOutcomes.WithLabelValues(string(res.State), string(res.AbortReason)).Inc()
			l.metrics.Compressions.Add(float64(statsAfter.Compressions - statsBefore.Compressions))
			l.metrics.Evictions.Add(float64(statsAfter.Evictions - statsBefore.Evictions))
			l.metrics.ObserveAnswerLatency(time.Since(started))
		}
		return res
	}

	if d := policy.ScreenQuery(query); d.Blocked {
		answer := "I can't help with that request: " + d.Reason + "."
		if _, err := appendTurn(window.RoleFinal, answer, false); err != nil {
			return AskResult{}, err
		}
		return finalize(AskResult{
			Answer:      answer,
			State:       StateAborted,
			AbortReason: AbortPolicyBlocked,
		}), nil
	}

	if len(s.Window.Snapshot()) == 0 {
		if _, err := appendTurn(window.RoleSystem, systemAnchor, true); err != nil {
			return AskResult{}, fmt.Errorf("append system anchor: %w", err)
		}
	}
	if _, err := appendTurn(window.RoleUser, query, false); err != nil {
		return AskResult{}, fmt.Errorf("append question: %w", err)
	}

	var lastObservation string

	for iter := 1; iter <= l.maxIterations; iter++ {
		iterStarted := time.Now()

		if ctx.Err() != nil {
			return l.abort(ctx, s, finalize, appendTurn, AbortCanceled, lastObservation, iter-1)
		}

		planStarted := time.Now()
		step, err := l.strategy.ProposeStep(ctx, s.Window.Snapshot(), query, l.registry)
		l.stages.Observe(observability.StagePlan, time.Since(planStarted))
		if err != nil {
			if ctx.Err() != nil {
				return l.abort(ctx, s, finalize, appendTurn, AbortCanceled, lastObservation, iter-1)
			}
			return l.abort(ctx, s, finalize, appendTurn, AbortPlanningFailed, lastObservation, iter-1)
		}
		if l.metrics != nil && step.Strategy != "" {
			l.metrics.PlannerPath.WithLabelValues(step.Strategy).Inc()
		}

		// A proposed tool call whose rationale already carries a
		// termination marker means the model has the answer; finish
		// instead of executing the call.
		if step.Action == planner.ActionToolCall && step.Rationale != "" {
			if answer, done := planner.ParseTermination(step.Rationale); done {
				step = planner.TaskStep{Action: planner.ActionFinish, Answer: answer, Strategy: step.Strategy}
			}
		}

		if step.Action == planner.ActionFinish {
			answer := strings.TrimSpace(step.Answer)
			if answer == "" {
				answer = lastObservation
			}
			if answer == "" {
				answer = "I could not find an answer."
			}
			if _, err := appendTurn(window.RoleFinal, answer, false); err != nil {
				return AskResult{}, fmt.Errorf("append final answer: %w", err)
			}
			l.stages.Observe(observability.StageTurnTotal, time.Since(iterStarted))
			return finalize(AskResult{
				Answer:     answer,
				State:      StateFinished,
				Iterations: iter,
			}), nil
		}

		if step.Rationale != "" {
			if _, err := appendTurn(window.RoleThought, step.Rationale, false); err != nil {
				return AskResult{}, fmt.Errorf("append thought: %w", err)
			}
		}
		if _, err := appendTurn(window.RoleAction, renderAction(step), false); err != nil {
			return AskResult{}, fmt.Errorf("append action: %w", err)
		}

		if tool, terr := l.registry.Get(step.ToolName); terr == nil && !s.toolAllowed(tool.Name, tool.Permission) {
			denied := fmt.Sprintf("permission denied: tool %q is not allowed in this session", step.ToolName)
			lastObservation = denied
			if _, err := appendTurn(window.RoleObservation, denied, false); err != nil {
				return AskResult{}, fmt.Errorf("append observation: %w", err)
			}
			if l.metrics != nil {
				l.metrics.ToolCalls.WithLabelValues(step.ToolName, "denied").Inc()
			}
			l.stages.Observe(observability.StageTurnTotal, time.Since(iterStarted))
			continue
		}

		execStarted := time.Now()
		res := l.exec.Execute(ctx, step.ToolName, step.ToolArgs)
		l.stages.Observe(observability.StageToolExec, time.Since(execStarted))
		if l.metrics != nil {
			l.metrics.ToolCalls.WithLabelValues(step.ToolName, toolOutcome(res)).Inc()
		}

		if (res.ErrorKind == executor.KindCanceled || res.ErrorKind == executor.KindTimeout) && ctx.Err() != nil {
			return l.abort(ctx, s, finalize, appendTurn, AbortCanceled, lastObservation, iter)
		}

		obs := policy.Redact(l.fitObservation(s, res.Observation))
		lastObservation = obs
		if _, err := appendTurn(window.RoleObservation, obs, false); err != nil {
			return AskResult{}, fmt.Errorf("append observation: %w", err)
		}
		l.stages.Observe(observability.StageTurnTotal, time.Since(iterStarted))
	}

	return l.abort(ctx, s, finalize, appendTurn, AbortIterationLimit, lastObservation, l.maxIterations)
}

type appendFn func(window.Role, string, bool) (window.Turn, error)

func (l *Loop) abort(
	ctx context.Context,
	s *Session,
	finalize func(AskResult) AskResult,
	appendTurn appendFn,
	reason AbortReason,
	lastObservation string,
	iterations int,
) (AskResult, error) {
	answer := abortAnswer(reason, lastObservation)
	// Appending may fail when the caller's ctx is already gone; surface
	// the partial answer regardless.
	if ctx.Err() == nil {
		if _, err := appendTurn(window.RoleFinal, answer, false); err != nil {
			return AskResult{}, fmt.Errorf("append abort answer: %w", err)
		}
	}
	return finalize(AskResult{
		Answer:      answer,
		State:       StateAborted,
		AbortReason: reason,
		Iterations:  iterations,
	}), nil
}

func abortAnswer(reason AbortReason, lastObservation string) string {
	var prefix string
	switch reason {
	case AbortIterationLimit:
		prefix = "I ran out of reasoning steps before finishing."
	case AbortPlanningFailed:
		prefix = "I could not decide on a next step."
	case AbortCanceled:
		prefix = "The question was canceled."
	default:
		prefix = "I could not finish."
	}
	if strings.TrimSpace(lastObservation) == "" {
		return prefix
	}
	return prefix + " The last thing I found: " + lastObservation
}

// fitObservation trims oversized tool output so a single observation can
// never exceed the window budget on its own.
func (l *Loop) fitObservation(s *Session, obs string) string {
	budget := s.Window.Budget()
	if budget <= 0 {
		return obs
	}
	// Rough inverse of the token estimate, capped at half the budget.
	maxRunes := budget * 5 / 4
	runes := []rune(obs)
	if len(runes) <= maxRunes {
		return obs
	}
	return string(runes[:maxRunes]) + "\n[output truncated]"
}

func renderAction(step planner.TaskStep) string {
	if len(step.ToolArgs) == 0 {
		return step.ToolName + "({})"
	}
	raw, err := json.Marshal(step.ToolArgs)
	if err != nil {
		return step.ToolName + "({})"
	}
	return fmt.Sprintf("%s(%s)", step.ToolName, raw)
}

func toolOutcome(res executor.Result) string {
	if res.Success {
		return "ok"
	}
	return string(res.ErrorKind)
}

func (l *Loop) archive(sessionID string, turn window.Turn) {
	if l.transcripts == nil {
		return
	}
	// Archival is best effort and must not stall the loop.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = l.transcripts.SaveTurn(ctx, transcript.TurnRecord{
		ID:        turn.ID,
		SessionID: sessionID,
		Role:      string(turn.Role),
		Content:   turn.Content,
		TokenCost: turn.TokenCost,
		Pinned:    turn.Pinned,
		Seq:       turn.Seq,
		CreatedAt: turn.CreatedAt,
	})
}
