// Package domain contains core domain types for the VARK assessment gateway.
package domain

import "strings"

// GradeBand identifies the age band a question set is written for.
type GradeBand string

const (
	GradeBandK2  GradeBand = "K-2"
	GradeBand35  GradeBand = "3-5"
	GradeBand68  GradeBand = "6-8"
	GradeBand912 GradeBand = "9-12"
)

// GradeBands lists every supported band in ascending order.
var GradeBands = []GradeBand{GradeBandK2, GradeBand35, GradeBand68, GradeBand912}

// Valid reports whether g is one of the supported bands.
func (g GradeBand) Valid() bool {
	for _, b := range GradeBands {
		if g == b {
			return true
		}
	}
	return false
}

// LearningStyle is the resolved VARK label stored on a student record.
type LearningStyle string

const (
	StyleVisual      LearningStyle = "Visual"
	StyleAuditory    LearningStyle = "Auditory"
	StyleReadWrite   LearningStyle = "Read/Write"
	StyleKinesthetic LearningStyle = "Kinesthetic"
	StyleMultimodal  LearningStyle = "Multimodal"
)

// Modalities are the four single-modality styles, in VARK order.
var Modalities = []LearningStyle{StyleVisual, StyleAuditory, StyleReadWrite, StyleKinesthetic}

// Valid reports whether s is one of the five allowed labels.
func (s LearningStyle) Valid() bool {
	switch s {
	case StyleVisual, StyleAuditory, StyleReadWrite, StyleKinesthetic, StyleMultimodal:
		return true
	}
	return false
}

// StyleFromCode maps an upstream primary code (V, A, R, K) to a label.
// Anything else, including multi-dominant codes like "VK" or "Multi", is Multimodal.
func StyleFromCode(code string) LearningStyle {
	switch strings.TrimSpace(code) {
	case "V":
		return StyleVisual
	case "A":
		return StyleAuditory
	case "R":
		return StyleReadWrite
	case "K":
		return StyleKinesthetic
	default:
		return StyleMultimodal
	}
}

// Role is a transcript message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// Message is one entry of an assessment transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LatestUserMessage returns the trimmed content of the last user message, or "".
func LatestUserMessage(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return strings.TrimSpace(msgs[i].Content)
		}
	}
	return ""
}
