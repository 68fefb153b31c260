// Package questionbank holds the grade-banded VARK scenario items.
package questionbank

import (
	"strings"

	"github.com/ashureev/vark-gateway/internal/domain"
)

// Option is one answer choice tied to a modality.
type Option struct {
	Modality domain.LearningStyle `json:"modality"`
	Text     string               `json:"text"`
}

// Item is a single scenario prompt with one option per modality.
type Item struct {
	ID        string           `json:"id"`
	GradeBand domain.GradeBand `json:"gradeBand"`
	Prompt    string           `json:"prompt"`
	Options   []Option         `json:"options"`
}

func item(id string, band domain.GradeBand, prompt, v, a, r, k string) Item {
	return Item{
		ID:        id,
		GradeBand: band,
		Prompt:    prompt,
		Options: []Option{
			{Modality: domain.StyleVisual, Text: v},
			{Modality: domain.StyleAuditory, Text: a},
			{Modality: domain.StyleReadWrite, Text: r},
			{Modality: domain.StyleKinesthetic, Text: k},
		},
	}
}

var items = []Item{
	item("k2-1", domain.GradeBandK2, "You're learning a new game. What helps most?",
		"See pictures that show the steps.",
		"Hear someone tell me the steps.",
		"Look at simple words with a grown-up.",
		"Try it out while someone helps me."),
	item("k2-2", domain.GradeBandK2, "You want to remember a short story.",
		"Look at pictures from the story.",
		"Hear it read out loud again.",
		"Point to the words with a grown-up.",
		"Act it out with movement."),
	item("k2-3", domain.GradeBandK2, "You're learning about animals.",
		"Look at animal pictures.",
		"Listen to someone talk about animals.",
		"Look at animal words with help.",
		"Pretend to be the animal."),
	item("k2-4", domain.GradeBandK2, "You need to find your way to a room.",
		"See a picture map.",
		"Listen to directions.",
		"Follow simple words with a grown-up.",
		"Walk the path once with someone."),
	item("k2-5", domain.GradeBandK2, "You're learning a new song.",
		"Watch someone show the hand motions.",
		"Listen and sing it back.",
		"Look at the words with a grown-up.",
		"Do the motions while you sing."),

	item("35-1", domain.GradeBand35, "You're learning about the solar system.",
		"Look at a poster with planets.",
		"Listen to someone explain planets.",
		"Read a book about planets.",
		"Build a model of the planets."),
	item("35-2", domain.GradeBand35, "You need to remember a poem.",
		"Picture the poem in your head.",
		"Hear it read out loud again.",
		"Read or write it a few times.",
		"Act it out with gestures."),
	item("35-3", domain.GradeBand35, "You're learning a new sport skill.",
		"Watch a demo or video.",
		"Listen to tips and coaching.",
		"Read the steps or rules.",
		"Try it yourself right away."),
	item("35-4", domain.GradeBand35, "You're learning how to solve a puzzle.",
		"Watch how it's solved.",
		"Talk through it with someone.",
		"Read a guide with steps.",
		"Keep trying until it works."),
	item("35-5", domain.GradeBand35, "You're studying for a quiz.",
		"Use diagrams or charts.",
		"Explain it out loud.",
		"Read notes or rewrite them.",
		"Do practice activities or problems."),

	item("68-1", domain.GradeBand68, "You're preparing for a test.",
		"Make diagrams or mind maps.",
		"Discuss the material out loud.",
		"Read and rewrite notes.",
		"Do practice activities or problems."),
	item("68-2", domain.GradeBand68, "You're learning a science concept.",
		"Study a diagram or video.",
		"Listen to an explanation.",
		"Read the textbook section.",
		"Try a hands-on experiment."),
	item("68-3", domain.GradeBand68, "You're learning how something works.",
		"Watch a visual demo.",
		"Talk it through with someone.",
		"Read a step-by-step guide.",
		"Take it apart or build it."),
	item("68-4", domain.GradeBand68, "You're memorizing key facts.",
		"Use color-coded flashcards.",
		"Say the facts out loud.",
		"Write the facts in your own words.",
		"Use movement or hands-on practice."),
	item("68-5", domain.GradeBand68, "You want to learn a new skill (coding, art, music).",
		"Watch a tutorial or diagram.",
		"Listen to a teacher explain.",
		"Read instructions or notes.",
		"Practice by doing the skill."),

	item("912-1", domain.GradeBand912, "You need to learn a new math concept.",
		"Study a diagram or worked example.",
		"Listen to a teacher or tutor explain.",
		"Read the textbook and take notes.",
		"Work through problems yourself."),
	item("912-2", domain.GradeBand912, "You're learning a historical event.",
		"Look at timelines or maps.",
		"Listen to a lecture or podcast.",
		"Read and annotate a text.",
		"Do a simulation or project."),
	item("912-3", domain.GradeBand912, "You're preparing for a presentation.",
		"Design slides or visuals first.",
		"Practice speaking it out loud.",
		"Write a detailed outline.",
		"Rehearse while moving or using props."),
	item("912-4", domain.GradeBand912, "You're learning a complex process in science.",
		"Watch a diagram or animation.",
		"Listen to an explanation.",
		"Read a detailed guide and take notes.",
		"Use a model or lab activity."),
	item("912-5", domain.GradeBand912, "You're studying for finals.",
		"Use charts, diagrams, or mind maps.",
		"Teach it out loud or discuss.",
		"Read and rewrite notes.",
		"Practice with problems or labs."),
}

// All returns a copy of every item in bank order.
func All() []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// ForGradeBand returns the items written for band, in bank order.
func ForGradeBand(band domain.GradeBand) []Item {
	var out []Item
	for _, it := range items {
		if it.GradeBand == band {
			out = append(out, it)
		}
	}
	return out
}

// MatchOption returns the modality of the option whose text equals answer,
// ignoring case and surrounding whitespace. An empty band searches every band.
// Option texts repeat across bands but always with the same modality.
func MatchOption(band domain.GradeBand, answer string) (domain.LearningStyle, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false
	}
	candidates := All()
	if band != "" {
		candidates = ForGradeBand(band)
	}
	for _, it := range candidates {
		for _, opt := range it.Options {
			if strings.EqualFold(opt.Text, answer) {
				return opt.Modality, true
			}
		}
	}
	return "", false
}
