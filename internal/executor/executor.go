// Package executor invokes registered tools under a permission-agnostic
// retry policy and converts every failure into a semantic observation
// the planner can reason about.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ent0n29/archivist/internal/reliability"
	"github.com/ent0n29/archivist/internal/tools"
)

// ErrorKind classifies an execution failure for the reasoning loop.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindToolNotFound     ErrorKind = "tool_not_found"
	KindInvalidArguments ErrorKind = "invalid_arguments"
	KindTransient        ErrorKind = "transient"
	KindTimeout          ErrorKind = "timeout"
	KindCanceled         ErrorKind = "canceled"
)

// Result is the outcome of one tool invocation, after retries.
type Result struct {
	Success     bool      `json:"success"`
	Observation string    `json:"observation"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	Attempts    int       `json:"attempts"`
}

// Config tunes the retry policy.
type Config struct {
	// Attempts is the total number of tries per invocation.
	Attempts int
	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// ToolTimeout bounds a single tool call. Zero disables the bound.
	ToolTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 4 * time.Second
	}
}

// Executor runs tools from a registry. It is stateless apart from its
// configuration; retry safety for non-idempotent tools is the tool
// implementation's responsibility.
type Executor struct {
	registry *tools.Registry
	cfg      Config
}

func New(registry *tools.Registry, cfg Config) *Executor {
	cfg.applyDefaults()
	return &Executor{registry: registry, cfg: cfg}
}

// Execute looks up and invokes a tool. Unknown tools and argument
// validation failures are deterministic and reported without retry;
// transient faults are retried with capped exponential backoff and
// converted to a model-readable failure observation on exhaustion.
func (e *Executor) Execute(ctx context.Context, name string, args tools.Args) Result {
	tool, err := e.registry.Get(name)
	if err != nil {
		return Result{
			Observation: fmt.Sprintf("Tool %q is not registered. Available tools: %v.", name, e.registry.Names()),
			ErrorKind:   KindToolNotFound,
			Attempts:    0,
		}
	}

	if err := e.registry.ValidateArgs(name, args); err != nil {
		return Result{
			Observation: fmt.Sprintf("Arguments for tool %q were rejected: %v. Adjust the arguments; retrying the same call cannot succeed.", name, err),
			ErrorKind:   KindInvalidArguments,
			Attempts:    0,
		}
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.Attempts; attempt++ {
		if attempt > 0 {
			delay := reliability.ExponentialBackoff(attempt-1, e.cfg.BaseDelay, e.cfg.MaxDelay)
			select {
			case <-ctx.Done():
				return e.canceledResult(ctx, attempt)
			case <-time.After(delay):
			}
		}

		out, err := e.runOnce(ctx, tool, args)
		if err == nil {
			return Result{Success: true, Observation: out, Attempts: attempt + 1}
		}
		lastErr = err

		if errors.Is(err, tools.ErrInvalidArguments) {
			return Result{
				Observation: fmt.Sprintf("Tool %q rejected its arguments: %v. Adjust the arguments; retrying the same call cannot succeed.", name, err),
				ErrorKind:   KindInvalidArguments,
				Attempts:    attempt + 1,
			}
		}
		if ctx.Err() != nil {
			return e.canceledResult(ctx, attempt+1)
		}
		// Everything else is treated as an I/O or service fault and
		// retried; only explicit argument errors short-circuit above.
	}

	kind := KindTransient
	if errors.Is(lastErr, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return Result{
		Observation: fmt.Sprintf("Tool %q failed after %d attempt(s): %v. The failure was %s; consider a different tool or different arguments.",
			name, e.cfg.Attempts, lastErr, describeKind(kind)),
		ErrorKind: kind,
		Attempts:  e.cfg.Attempts,
	}
}

func (e *Executor) runOnce(ctx context.Context, tool *tools.Tool, args tools.Args) (string, error) {
	if e.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ToolTimeout)
		defer cancel()
	}
	return tool.Run(ctx, args)
}

func (e *Executor) canceledResult(ctx context.Context, attempts int) Result {
	kind := KindCanceled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return Result{
		Observation: fmt.Sprintf("Tool execution stopped: %v.", ctx.Err()),
		ErrorKind:   kind,
		Attempts:    attempts,
	}
}

func describeKind(k ErrorKind) string {
	switch k {
	case KindTimeout:
		return "a timeout"
	default:
		return "transient"
	}
}
