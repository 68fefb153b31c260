package provider

import (
	"context"
	"strings"
	"time"

	"github.com/ashureev/vark-gateway/internal/domain"
	"github.com/ashureev/vark-gateway/internal/questionbank"
)

// ModelStub labels insights produced by the fallback provider.
const ModelStub = "stub"

const (
	stubConfidence  = 0.62
	stubExplanation = "Based on the chat so far, this is a best-effort guess of how the student seems to learn."
)

// keywordOrder is checked top to bottom; the first vocabulary with a hit wins.
var keywordOrder = []struct {
	style domain.LearningStyle
	words []string
}{
	{domain.StyleVisual, []string{"visual", "see", "diagram"}},
	{domain.StyleAuditory, []string{"listen", "auditory", "hear"}},
	{domain.StyleReadWrite, []string{"read", "write", "notes"}},
	{domain.StyleKinesthetic, []string{"hands", "kinesthetic", "build"}},
}

var stubNextSteps = map[domain.LearningStyle][]string{
	domain.StyleVisual: {
		"Use diagrams or pictures when introducing new ideas.",
		"Summarize lessons with charts or color-coded notes.",
		"Try short videos before homework sessions.",
	},
	domain.StyleAuditory: {
		"Discuss key ideas out loud before writing answers.",
		"Use audiobooks or read assignments together.",
		"Encourage short verbal summaries after each lesson.",
	},
	domain.StyleReadWrite: {
		"Provide written checklists for study sessions.",
		"Encourage rewriting notes in their own words.",
		"Use flashcards with concise text prompts.",
	},
	domain.StyleKinesthetic: {
		"Add hands-on activities or experiments when possible.",
		"Take short movement breaks between study blocks.",
		"Use manipulatives or real-world examples.",
	},
	domain.StyleMultimodal: {
		"Mix visuals, discussion, and hands-on practice.",
		"Rotate study formats to keep engagement high.",
		"Let the student choose the format that feels easiest.",
	},
}

// Fallback is a deterministic provider that needs no network access.
type Fallback struct {
	band domain.GradeBand
	now  func() time.Time
}

// NewFallback returns a fallback provider. Band narrows question-bank
// matching; empty matches options from every band.
func NewFallback(band domain.GradeBand) *Fallback {
	return &Fallback{band: band, now: time.Now}
}

// Generate never fails.
func (f *Fallback) Generate(_ context.Context, transcript []domain.Message) (*domain.Insight, error) {
	style := f.fromAnswers(transcript)
	if style == "" {
		style = fromKeywords(transcript)
	}
	return &domain.Insight{
		LearningStyle: style,
		Confidence:    stubConfidence,
		Explanation:   stubExplanation,
		NextSteps:     append([]string(nil), stubNextSteps[style]...),
		Model:         ModelStub,
		CreatedAt:     f.now().UTC(),
	}, nil
}

// fromAnswers tallies user messages that are verbatim question-bank options.
// Ties between modalities resolve to Multimodal.
func (f *Fallback) fromAnswers(transcript []domain.Message) domain.LearningStyle {
	tally := make(map[domain.LearningStyle]int, len(domain.Modalities))
	matched := 0
	for _, m := range transcript {
		if m.Role != domain.RoleUser {
			continue
		}
		if style, ok := questionbank.MatchOption(f.band, m.Content); ok {
			tally[style]++
			matched++
		}
	}
	if matched == 0 {
		return ""
	}

	var best domain.LearningStyle
	bestCount, ties := 0, 0
	for _, style := range domain.Modalities {
		switch n := tally[style]; {
		case n > bestCount:
			best, bestCount, ties = style, n, 0
		case n == bestCount && n > 0:
			ties++
		}
	}
	if ties > 0 {
		return domain.StyleMultimodal
	}
	return best
}

func fromKeywords(transcript []domain.Message) domain.LearningStyle {
	parts := make([]string, len(transcript))
	for i, m := range transcript {
		parts[i] = m.Content
	}
	text := strings.ToLower(strings.Join(parts, " "))

	for _, entry := range keywordOrder {
		for _, w := range entry.words {
			if strings.Contains(text, w) {
				return entry.style
			}
		}
	}
	return domain.StyleMultimodal
}
