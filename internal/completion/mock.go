package completion

import (
	"context"
	"strings"
)

// MockClient provides deterministic local replies when no model backend
// is configured. Planning prompts get an immediate final answer so loops
// driven by the mock always terminate.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Generate(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	return Response{Text: buildMockReply(req)}, nil
}

func buildMockReply(req Request) string {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "Final Answer: I have nothing to go on."
	}

	if strings.Contains(strings.ToLower(req.System), "condense") {
		return digest(prompt, 200)
	}

	line := prompt
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	return "Final Answer: " + line
}

func digest(text string, limit int) string {
	fields := strings.Fields(text)
	out := strings.Join(fields, " ")
	runes := []rune(out)
	if len(runes) <= limit {
		return out
	}
	return string(runes[:limit])
}
