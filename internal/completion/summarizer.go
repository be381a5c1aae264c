package completion

import (
	"context"
	"errors"
	"strings"
	"time"
)

const summarizerSystem = `You condense conversation history for an agent.
Rewrite the transcript below into a short factual digest. Keep tool results,
numbers, file names and decisions. Drop pleasantries and repetition. Reply
with the digest only.`

const defaultCompressTimeout = 20 * time.Second

// Summarizer compresses transcript history through the completion
// backend. It satisfies the window manager's compressor contract.
type Summarizer struct {
	client  Client
	timeout time.Duration
}

func NewSummarizer(client Client, timeout time.Duration) *Summarizer {
	if timeout <= 0 {
		timeout = defaultCompressTimeout
	}
	return &Summarizer{client: client, timeout: timeout}
}

func (s *Summarizer) Compress(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("summarizer: empty input")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Generate(ctx, Request{
		System:    summarizerSystem,
		Prompt:    text,
		MaxTokens: 256,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
