package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := NewStageWindow(8)
	for i := 1; i <= 4; i++ {
		w.Observe(StagePlan, time.Duration(i*10)*time.Millisecond)
	}

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("expected 1 stage, got %d", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StagePlan {
		t.Fatalf("unexpected stage %q", s.Stage)
	}
	if s.Samples != 4 {
		t.Fatalf("expected 4 samples, got %d", s.Samples)
	}
	if s.LastMS != 40 {
		t.Fatalf("expected last 40ms, got %v", s.LastMS)
	}
	if s.AvgMS != 25 {
		t.Fatalf("expected avg 25ms, got %v", s.AvgMS)
	}
	if s.P50MS != 25 {
		t.Fatalf("expected p50 25ms, got %v", s.P50MS)
	}
	if s.TargetP95MS != 2000 {
		t.Fatalf("expected plan target 2000ms, got %v", s.TargetP95MS)
	}
}

func TestStageWindowRingOverwrite(t *testing.T) {
	w := NewStageWindow(2)
	w.Observe(StageToolExec, 10*time.Millisecond)
	w.Observe(StageToolExec, 20*time.Millisecond)
	w.Observe(StageToolExec, 30*time.Millisecond)

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("expected 1 stage, got %d", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 2 {
		t.Fatalf("expected window of 2 samples, got %d", s.Samples)
	}
	if s.AvgMS != 25 {
		t.Fatalf("expected avg of last two samples, got %v", s.AvgMS)
	}
}

func TestStageWindowIgnoresBadInput(t *testing.T) {
	w := NewStageWindow(4)
	w.Observe("", 10*time.Millisecond)
	w.Observe(StagePlan, -time.Millisecond)

	if snap := w.Snapshot(); len(snap.Stages) != 0 {
		t.Fatalf("expected no stages, got %d", len(snap.Stages))
	}
}

func TestStageWindowReset(t *testing.T) {
	w := NewStageWindow(4)
	w.Observe(StagePlan, time.Millisecond)
	w.Reset()
	if snap := w.Snapshot(); len(snap.Stages) != 0 {
		t.Fatalf("expected empty window after reset, got %d stages", len(snap.Stages))
	}
}
