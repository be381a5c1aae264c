// Package transcript archives reasoning turns so finished sessions can
// be audited after their context window is gone.
package transcript

import (
	"context"
	"time"
)

// TurnRecord is one archived reasoning turn.
type TurnRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	TokenCost int       `json:"token_cost"`
	Pinned    bool      `json:"pinned"`
	Seq       int       `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves archived turns.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	BySession(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	Close() error
}
