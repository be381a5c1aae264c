package tokens

import "unicode/utf8"

// turnOverhead accounts for role markers and message framing that the
// completion service charges on top of the raw content.
const turnOverhead = 6

// Estimator approximates token counts without shipping a model tokenizer.
// The ratio matches the character-based fallback used by common chat
// models and intentionally overestimates CJK-heavy text, which is the
// safe direction for budget enforcement.
type Estimator struct {
	charsPerToken float64
}

func NewEstimator() *Estimator {
	return &Estimator{charsPerToken: 2.5}
}

// Count estimates the token cost of a raw text span.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	return int(float64(utf8.RuneCountInString(text)) / e.charsPerToken)
}

// CountTurn estimates the cost of a full conversational turn, including
// per-message framing overhead.
func (e *Estimator) CountTurn(content string) int {
	return e.Count(content) + turnOverhead
}
