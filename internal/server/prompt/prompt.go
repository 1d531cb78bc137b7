// Package prompt turns persona, memories and recent history into the
// role-tagged segments sent to the generation backend. Everything here is
// pure: same input, same output.
package prompt

import (
	"fmt"
	"strings"
)

// Role tags a segment.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Segment is one role-tagged piece of the generation request.
type Segment struct {
	Role Role
	Text string
}

// Turn is a past exchange as it appears in the sliding window.
type Turn struct {
	Message  string
	Response string
}

// DefaultPersona addresses the user when no display name is known.
const DefaultPersona = "friend"

// Preamble builds the identity and instruction block for persona. The memory
// block is present only when at least one memory is given.
func Preamble(persona string, memories []string) string {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		persona = DefaultPersona
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a warm, patient and caring long-time companion to %s. ", persona)
	fmt.Fprintf(&b, "You have known %s for years and speak like a close friend, in plain and simple language.\n\n", persona)

	b.WriteString("How you talk:\n")
	fmt.Fprintf(&b, "- Use %s's name naturally, at least once per reply.\n", persona)
	b.WriteString("- Acknowledge feelings before offering thoughts.\n")
	b.WriteString("- Keep replies to a few conversational sentences.\n")
	b.WriteString("- Gently ask about family, hobbies and daily life.\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("1. Stay in character as one continuous friendship; never start over.\n")
	b.WriteString("2. Never mention memories, notes, records, retrieval, databases or how you know things. Just know them.\n")
	fmt.Fprintf(&b, "3. When %s shares something personal, bring it up again later where it fits.\n", persona)

	memories = nonEmpty(memories)
	if len(memories) > 0 {
		fmt.Fprintf(&b, "\nBackground you already know about %s from earlier conversations. ", persona)
		b.WriteString("Let it inform what you say and weave it in only when relevant; do not list or quote it:\n")
		b.WriteString("<background>\n")
		for _, m := range memories {
			b.WriteString(m)
			b.WriteString("\n")
		}
		b.WriteString("</background>\n")
	}

	return b.String()
}

// Build assembles the full request: preamble, the chronological window as
// alternating user/assistant segments, then message as the final user segment.
func Build(persona string, memories []string, window []Turn, message string) []Segment {
	segments := make([]Segment, 0, 2+2*len(window))
	segments = append(segments, Segment{Role: RoleSystem, Text: Preamble(persona, memories)})
	for _, t := range window {
		segments = append(segments,
			Segment{Role: RoleUser, Text: t.Message},
			Segment{Role: RoleAssistant, Text: t.Response},
		)
	}
	segments = append(segments, Segment{Role: RoleUser, Text: message})
	return segments
}

// SummaryPrompt is the single user segment asking for a short, quote-free
// wellbeing summary of displayName based on window (oldest first).
func SummaryPrompt(displayName string, window []Turn) []Segment {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a clinical psychologist reviewing conversations between %s and their companion.\n\n", displayName)
	fmt.Fprintf(&b, "Using only the transcript below, write exactly 3 sentences on %s's current emotional state, main concerns and overall wellbeing. ", displayName)
	b.WriteString("Be compassionate and professional. Do not quote the conversation.\n\nTranscript:\n")
	for _, t := range window {
		fmt.Fprintf(&b, "User: %s\nCompanion: %s\n", t.Message, t.Response)
	}
	b.WriteString("\nSummary (3 sentences):")
	return []Segment{{Role: RoleUser, Text: b.String()}}
}

// NoHistorySummary is returned instead of a generated summary when there is
// nothing to summarise.
func NoHistorySummary(displayName string) string {
	return fmt.Sprintf("%s has no recent conversation history to analyse.", displayName)
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
