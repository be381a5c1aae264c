package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/archivist/internal/reliability"
)

const defaultHTTPTimeout = 60 * time.Second

// HTTPClient forwards completion requests to a local or self-hosted
// model endpoint speaking a minimal JSON protocol.
type HTTPClient struct {
	url    string
	client *http.Client
}

func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPClient{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) Generate(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, reliability.MarkTransient(fmt.Errorf("send request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		statusErr := fmt.Errorf("completion http status %d: %s", res.StatusCode, string(body))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return Response{}, reliability.MarkTransient(statusErr)
		}
		return Response{}, statusErr
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, reliability.MarkTransient(fmt.Errorf("read response: %w", err))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		// Plain-text endpoints reply with the raw completion.
		return Response{Text: strings.TrimSpace(string(body))}, nil
	}
	return out, nil
}
