package tokens

import (
	"strings"
	"testing"
)

func TestCountEmpty(t *testing.T) {
	e := NewEstimator()
	if got := e.Count(""); got != 0 {
		t.Fatalf("Count(\"\") = %d, want 0", got)
	}
}

func TestCountScalesWithLength(t *testing.T) {
	e := NewEstimator()
	short := e.Count("hello world")
	long := e.Count(strings.Repeat("hello world ", 50))
	if long <= short {
		t.Fatalf("long text cost %d should exceed short text cost %d", long, short)
	}
}

func TestCountTurnIncludesOverhead(t *testing.T) {
	e := NewEstimator()
	content := strings.Repeat("a", 250)
	if got, want := e.CountTurn(content), e.Count(content)+turnOverhead; got != want {
		t.Fatalf("CountTurn = %d, want %d", got, want)
	}
	if e.CountTurn("") != turnOverhead {
		t.Fatalf("empty turn should still cost the framing overhead")
	}
}
