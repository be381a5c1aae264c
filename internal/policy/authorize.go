package policy

import (
	"regexp"
	"strings"
)

// QueryDecision is the result of screening an incoming question before
// any planning happens.
type QueryDecision struct {
	Blocked bool
	Reason  string
}

var blockedQueryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-rf\s+/(?:\s|$)`),
	regexp.MustCompile(`(?i)\b(sudo\s+)?cat\s+.*(?:id_rsa|id_ed25519|\.env|auth\.json)`),
	regexp.MustCompile(`(?i)\b(exfiltrate|steal|dump credentials|leak secrets?)\b`),
	regexp.MustCompile(`(?i)\b(print|show|reveal)\b.*\b(api[_ -]?key|token|password|secret)\b`),
}

// ScreenQuery rejects questions that ask the agent to surface secrets or
// perform destructive shell actions through its tools.
func ScreenQuery(query string) QueryDecision {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return QueryDecision{}
	}

	for _, re := range blockedQueryPatterns {
		if re.MatchString(q) {
			return QueryDecision{
				Blocked: true,
				Reason:  "request appears to target secrets or destructive shell behavior",
			}
		}
	}

	return QueryDecision{}
}
