// Package completion abstracts the language model backend used for
// planning and history compression. Backends are selected by mode so the
// agent runs against OpenAI, a local HTTP endpoint, or a deterministic
// mock without code changes.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request is a single completion call.
type Request struct {
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Response carries the generated text.
type Response struct {
	Text string `json:"text"`
}

// Client generates text completions.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Config controls client construction.
type Config struct {
	Mode    string
	HTTPURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient builds a Client for the configured mode. Mode "auto" prefers
// OpenAI when an API key is set, then a local HTTP endpoint, then the mock.
func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoClient(cfg), nil
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("completion: api key is required for openai mode")
		}
		return NewOpenAIClient(cfg.APIKey, cfg.Model), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("completion: url is required for http mode")
		}
		return NewHTTPClient(cfg.HTTPURL, cfg.Timeout), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("completion: unsupported mode %q", cfg.Mode)
	}
}

func newAutoClient(cfg Config) Client {
	if strings.TrimSpace(cfg.APIKey) != "" {
		return NewOpenAIClient(cfg.APIKey, cfg.Model)
	}
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		return NewHTTPClient(cfg.HTTPURL, cfg.Timeout)
	}
	return NewMockClient()
}
