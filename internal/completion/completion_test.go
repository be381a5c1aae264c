package completion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/archivist/internal/reliability"
)

func TestNewClientModes(t *testing.T) {
	if _, err := NewClient(Config{Mode: "openai"}); err == nil {
		t.Fatal("expected error for openai mode without api key")
	}
	if _, err := NewClient(Config{Mode: "http"}); err == nil {
		t.Fatal("expected error for http mode without url")
	}
	if _, err := NewClient(Config{Mode: "banana"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}

	c, err := NewClient(Config{Mode: "mock"})
	if err != nil {
		t.Fatalf("mock mode: %v", err)
	}
	if _, ok := c.(*MockClient); !ok {
		t.Fatalf("expected *MockClient, got %T", c)
	}

	c, err = NewClient(Config{Mode: ""})
	if err != nil {
		t.Fatalf("auto mode: %v", err)
	}
	if _, ok := c.(*MockClient); !ok {
		t.Fatalf("auto without backends should fall back to mock, got %T", c)
	}

	c, err = NewClient(Config{Mode: "auto", HTTPURL: "http://localhost:1234"})
	if err != nil {
		t.Fatalf("auto http mode: %v", err)
	}
	if _, ok := c.(*HTTPClient); !ok {
		t.Fatalf("auto with url should pick http, got %T", c)
	}
}

func TestMockClientTerminates(t *testing.T) {
	c := NewMockClient()
	resp, err := c.Generate(context.Background(), Request{Prompt: "what is the capital of France?\nmore context"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(resp.Text, "Final Answer: ") {
		t.Fatalf("mock reply should carry a final answer, got %q", resp.Text)
	}
	if strings.Contains(resp.Text, "more context") {
		t.Fatalf("mock reply should echo only the first line, got %q", resp.Text)
	}
}

func TestHTTPClientSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello from model"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	resp, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "hello from model" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

func TestHTTPClientPlainTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  raw completion  "))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	resp, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "raw completion" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

func TestHTTPClientRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !reliability.IsTransient(err) {
		t.Fatalf("503 should be transient, got %v", err)
	}
}

func TestHTTPClientNonRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error for 400")
	}
	if reliability.IsTransient(err) {
		t.Fatalf("400 should not be transient, got %v", err)
	}
}

func TestSummarizerCompress(t *testing.T) {
	s := NewSummarizer(NewMockClient(), time.Second)
	out, err := s.Compress(context.Background(), "user asked about ports.\nobservation: the default port is 8080.")
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty digest")
	}
	if strings.HasPrefix(out, "Final Answer:") {
		t.Fatalf("digest should not look like a planning reply, got %q", out)
	}

	if _, err := s.Compress(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty input")
	}
}
