package assessment

import (
	"math"
	"sort"
	"time"

	"github.com/ashureev/vark-gateway/internal/domain"
)

// ModelVark labels profiles computed from questionnaire scores.
const ModelVark = "vark"

// BuildProfile turns a completed session result into the stored profile.
func BuildProfile(res *domain.Result, sessionID string, now time.Time) *domain.VarkProfile {
	total := res.Scores.Total()
	entries := []struct {
		style domain.LearningStyle
		value float64
	}{
		{domain.StyleVisual, res.Scores.V},
		{domain.StyleAuditory, res.Scores.A},
		{domain.StyleReadWrite, res.Scores.R},
		{domain.StyleKinesthetic, res.Scores.K},
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].value > entries[j].value })

	primary := domain.StyleFromCode(res.Primary)
	var secondary domain.LearningStyle
	for _, e := range entries {
		if e.style != primary {
			secondary = e.style
			break
		}
	}

	var confidence float64
	if total > 0 {
		confidence = math.Min(1, entries[0].value/total)
	}

	return &domain.VarkProfile{
		Model: ModelVark,
		Scores: domain.VarkScores{
			Visual:      percent(res.Scores.V, total),
			Auditory:    percent(res.Scores.A, total),
			ReadWrite:   percent(res.Scores.R, total),
			Kinesthetic: percent(res.Scores.K, total),
		},
		Primary:         primary,
		Secondary:       secondary,
		Confidence:      confidence,
		Summary:         res.Summary,
		Recommendations: append([]string(nil), res.Recommendations...),
		AssessedAt:      now,
		SessionID:       sessionID,
	}
}

func percent(value, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(value / total * 100))
}
