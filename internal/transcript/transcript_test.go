package transcript

import (
	"context"
	"testing"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i, content := range []string{"question", "thought", "answer"} {
		err := s.SaveTurn(ctx, TurnRecord{
			SessionID: "sess-1",
			Role:      "user",
			Content:   content,
			Seq:       i,
		})
		if err != nil {
			t.Fatalf("save turn %d: %v", i, err)
		}
	}

	got, err := s.BySession(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("by session: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].Content != "question" || got[2].Content != "answer" {
		t.Fatalf("records out of order: %+v", got)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatal("expected ID and CreatedAt to be filled in")
	}
}

func TestInMemoryStoreLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.SaveTurn(ctx, TurnRecord{SessionID: "sess-1", Seq: i, Content: string(rune('a' + i))}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.BySession(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("by session: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Content != "d" || got[1].Content != "e" {
		t.Fatalf("expected the most recent records, got %+v", got)
	}
}

func TestFactoryDefaultsToInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("expected *InMemoryStore, got %T", s)
	}
}

func TestBySessionUnknownSession(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.BySession(context.Background(), "missing", 10)
	if err != nil {
		t.Fatalf("by session: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no records, got %d", len(got))
	}
}
