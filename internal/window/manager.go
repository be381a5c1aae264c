package window

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/archivist/internal/tokens"
)

// ErrOverBudget is returned when a single turn alone exceeds the window
// budget. Eviction and compression cannot fix that; the caller must
// truncate the input.
var ErrOverBudget = errors.New("turn exceeds window token budget")

// Compressor condenses a span of older history into a shorter paraphrase.
// Implementations delegate to the completion service.
type Compressor interface {
	Compress(ctx context.Context, text string) (string, error)
}

// Config controls budget enforcement.
type Config struct {
	// Budget is the maximum total token cost of the window.
	Budget int
	// RecentPinned is the number of most recent turns that are implicitly
	// protected from compression and eviction.
	RecentPinned int
	// TargetRatio is the fill ratio enforcement compresses down to, so a
	// window hovering at the budget does not trigger compression on every
	// append.
	TargetRatio float64
}

func (c *Config) applyDefaults() {
	if c.RecentPinned <= 0 {
		c.RecentPinned = 2
	}
	if c.TargetRatio <= 0 || c.TargetRatio >= 1 {
		c.TargetRatio = 0.8
	}
}

// Stats reports how often enforcement had to reclaim budget.
type Stats struct {
	Compressions int `json:"compressions"`
	Evictions    int `json:"evictions"`
}

// Manager owns the ordered turn history of one session and keeps its
// total token cost within budget. All mutation goes through Append;
// readers get copies via Snapshot.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	est        *tokens.Estimator
	compressor Compressor

	turns   []Turn
	used    int
	nextSeq int
	stats   Stats
}

func NewManager(cfg Config, est *tokens.Estimator, compressor Compressor) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:        cfg,
		est:        est,
		compressor: compressor,
	}
}

// Append computes the turn's token cost, adds it to the window and
// enforces the budget. It fails only when the turn alone cannot fit.
func (m *Manager) Append(ctx context.Context, role Role, content string, pinned bool) (Turn, error) {
	cost := m.est.CountTurn(content)
	if cost > m.cfg.Budget {
		return Turn{}, fmt.Errorf("%w: turn costs %d tokens against budget %d", ErrOverBudget, cost, m.cfg.Budget)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		TokenCost: cost,
		Pinned:    pinned,
		Seq:       m.nextSeq,
		CreatedAt: time.Now().UTC(),
	}
	m.nextSeq++
	m.turns = append(m.turns, t)
	m.used += cost

	m.enforceBudget(ctx)
	return t, nil
}

// Snapshot returns a read-only copy of the current window ordering.
func (m *Manager) Snapshot() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// UsedTokens reports the current total token cost.
func (m *Manager) UsedTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// Budget reports the configured maximum.
func (m *Manager) Budget() int { return m.cfg.Budget }

// Stats reports cumulative compression and eviction counts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// enforceBudget reclaims tokens until used <= budget. It prefers
// far-field compression of the oldest contiguous unprotected block and
// falls back to hard eviction when compression fails or does not shrink
// the history. Caller must hold m.mu.
func (m *Manager) enforceBudget(ctx context.Context) {
	target := int(float64(m.cfg.Budget) * m.cfg.TargetRatio)

	for m.used > m.cfg.Budget {
		start, end := m.compressibleBlock(m.used - target)
		if start < 0 {
			// The anchor and the recent window alone exceed the budget.
			// Recency protection yields to the budget invariant: trim the
			// recent window oldest first, keeping only explicitly pinned
			// turns exempt.
			if !m.evictUnpinned() {
				return
			}
			continue
		}

		blockCost := 0
		var parts []string
		for i := start; i < end; i++ {
			blockCost += m.turns[i].TokenCost
			parts = append(parts, string(m.turns[i].Role)+": "+m.turns[i].Content)
		}

		if m.compressor == nil {
			m.evict(start)
			continue
		}

		summaryText, err := m.compressor.Compress(ctx, strings.Join(parts, "\n"))
		if err != nil || strings.TrimSpace(summaryText) == "" {
			m.evict(start)
			continue
		}

		content := "[history digest] " + strings.TrimSpace(summaryText)
		cost := m.est.CountTurn(content)
		if cost >= blockCost {
			// The condensed form did not reclaim anything; treat the
			// oldest turn as retrieval noise and drop it.
			m.evict(start)
			continue
		}

		summary := Turn{
			ID:        uuid.NewString(),
			Role:      RoleSystem,
			Content:   content,
			TokenCost: cost,
			Seq:       m.nextSeq,
			Summary:   true,
			CreatedAt: time.Now().UTC(),
		}
		m.nextSeq++

		rest := make([]Turn, 0, len(m.turns)-(end-start)+1)
		rest = append(rest, m.turns[:start]...)
		rest = append(rest, summary)
		rest = append(rest, m.turns[end:]...)
		m.turns = rest
		m.used = m.used - blockCost + cost
		m.stats.Compressions++
	}
}

// compressibleBlock returns the oldest contiguous run of unprotected
// turns whose combined cost covers `needed` tokens, or the longest such
// run if none does. Returns start < 0 when nothing is eligible.
func (m *Manager) compressibleBlock(needed int) (start, end int) {
	start = -1
	for i := range m.turns {
		if m.protected(i) {
			if start >= 0 {
				break
			}
			continue
		}
		if start < 0 {
			start = i
			end = i
		}
		end = i + 1
		sum := 0
		for j := start; j < end; j++ {
			sum += m.turns[j].TokenCost
		}
		if sum >= needed {
			return start, end
		}
	}
	if start < 0 {
		return -1, -1
	}
	return start, end
}

// protected reports whether the turn at index i is exempt from
// compression and eviction: explicitly pinned turns (the system anchor)
// and the most recent RecentPinned turns.
func (m *Manager) protected(i int) bool {
	if m.turns[i].Pinned {
		return true
	}
	return i >= len(m.turns)-m.cfg.RecentPinned
}

// evictUnpinned drops the oldest turn that is not explicitly pinned,
// ignoring recency protection. Reports false when every remaining turn
// is pinned. Caller must hold m.mu.
func (m *Manager) evictUnpinned() bool {
	for i := range m.turns {
		if !m.turns[i].Pinned {
			m.evict(i)
			return true
		}
	}
	return false
}

// evict drops the turn at index i outright. Caller must hold m.mu.
func (m *Manager) evict(i int) {
	m.used -= m.turns[i].TokenCost
	m.turns = append(m.turns[:i], m.turns[i+1:]...)
	m.stats.Evictions++
}
