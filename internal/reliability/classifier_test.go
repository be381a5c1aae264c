package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

func TestTransientClassification(t *testing.T) {
	if IsTransient(nil) {
		t.Fatalf("nil error must not be transient")
	}
	if IsTransient(errors.New("bad arguments")) {
		t.Fatalf("unmarked errors must not be transient")
	}

	marked := MarkTransient(errors.New("connection reset"))
	if !IsTransient(marked) {
		t.Fatalf("marked error should be transient")
	}
	wrapped := fmt.Errorf("tool failed: %w", marked)
	if !IsTransient(wrapped) {
		t.Fatalf("wrapping must preserve transient classification")
	}

	if !IsTransient(context.DeadlineExceeded) {
		t.Fatalf("deadline overruns are transient")
	}
	if IsTransient(context.Canceled) {
		t.Fatalf("cancellation is not transient")
	}
}
