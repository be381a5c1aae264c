package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	// ErrNotFound signals a lookup for a tool that was never registered.
	ErrNotFound = errors.New("tool not found")
	// ErrInvalidArguments signals a deterministic argument failure.
	// Callers must not retry these.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Args is a decoded JSON argument object for one tool invocation.
type Args map[string]any

// Handler executes the tool's capability and returns a textual result
// suitable for feeding back into the reasoning window.
type Handler func(ctx context.Context, args Args) (string, error)

// Tool binds a callable capability to its name, permission tag and
// argument schema.
type Tool struct {
	Name        string
	Description string
	Permission  string
	Schema      string // JSON Schema source for the argument object
	Run         Handler

	compiled *jsonschema.Schema
}

// Registry maps tool names to capabilities. Registration happens at
// startup; lookups are concurrent-safe.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register compiles the tool's argument schema and adds it to the
// registry. Re-registering a name replaces the previous entry.
func (r *Registry) Register(t Tool) error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("tool name is required")
	}
	if t.Run == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	if strings.TrimSpace(t.Schema) != "" {
		compiled, err := compileSchema(t.Name, t.Schema)
		if err != nil {
			return err
		}
		t.compiled = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = &t
	return nil
}

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(source), &doc); err != nil {
		return nil, fmt.Errorf("tool %q schema is not valid JSON: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("tool %q schema resource: %w", name, err)
	}
	compiled, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("tool %q schema compile: %w", name, err)
	}
	return compiled, nil
}

// Get returns the registered tool, or ErrNotFound.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return t, nil
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders a one-line-per-tool listing for planner prompts.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.tools) == 0 {
		return "(no tools available)"
	}
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		t := r.tools[name]
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ValidateArgs checks args against the tool's compiled schema. Schema
// violations are wrapped in ErrInvalidArguments.
func (r *Registry) ValidateArgs(name string, args Args) error {
	t, err := r.Get(name)
	if err != nil {
		return err
	}
	if t.compiled == nil {
		return nil
	}
	// Round-trip through JSON so programmatically built args (Go ints,
	// typed values) match the decoded-JSON value space the validator
	// expects.
	raw, err := json.Marshal(map[string]any(args))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if value == nil {
		value = map[string]any{}
	}
	if err := t.compiled.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
