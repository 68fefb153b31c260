package assessment

import (
	"regexp"
	"strings"

	"github.com/ashureev/vark-gateway/internal/domain"
)

// MinEvidence is the number of substantive answers a summary needs.
const MinEvidence = 4

var (
	lowSignalTokens = map[string]bool{
		"maybe":        true,
		"idk":          true,
		"i dont know":  true,
		"i don't know": true,
		"dont know":    true,
		"ok":           true,
		"okay":         true,
		"yes":          true,
		"no":           true,
		"k":            true,
		"nah":          true,
		"sure":         true,
		"fine":         true,
		"idc":          true,
		"n/a":          true,
		"na":           true,
	}

	punctuation = regexp.MustCompile(`[^\w\s]`)
)

var followUpQuestions = []string{
	"When learning something new, do you prefer pictures/videos, listening, reading, or hands-on practice?",
	"Tell me about a time school felt easy. What were you doing?",
	"Do you remember better after writing notes, talking about it, or building/trying it?",
}

var missingEvidence = []string{"Need at least 4 detailed responses."}

// isLowSignal reports whether a message says too little to count.
func isLowSignal(content string) bool {
	normalized := strings.ToLower(strings.TrimSpace(content))
	if normalized == "" {
		return true
	}
	if lowSignalTokens[normalized] {
		return true
	}
	stripped := strings.TrimSpace(punctuation.ReplaceAllString(normalized, ""))
	if stripped == "" || lowSignalTokens[stripped] {
		return true
	}
	if len(stripped) < 6 {
		return true
	}
	return len(strings.Fields(stripped)) < 3
}

// CountEvidence counts user messages substantive enough to assess.
func CountEvidence(msgs []domain.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role != domain.RoleUser {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" || isLowSignal(content) {
			continue
		}
		if len(content) >= 12 || len(strings.Fields(content)) >= 3 {
			n++
		}
	}
	return n
}

// decide maps an evidence count to a decision.
func decide(evidence int) domain.Decision {
	if evidence < MinEvidence {
		return domain.DecisionNeedsMoreData
	}
	return domain.DecisionFinal
}
