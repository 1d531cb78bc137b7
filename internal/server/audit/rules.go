// Package audit is the post-hoc moderation pass: a case-insensitive phrase
// scan of each finished exchange that records flagged ones for review.
package audit

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPhrases is the built-in phrase list.
var DefaultPhrases = []string{
	// crisis
	"suicide", "self-harm", "kill myself", "end my life", "want to die",
	// abuse
	"abuse", "molest", "assault",
	// profanity
	"fuck you", "go to hell",
	// medical misinformation
	"stop taking your medication", "don't see a doctor",
}

// Rules is a compiled phrase list. The zero value matches nothing.
type Rules struct {
	phrases []string
}

// NewRules lowercases, trims and de-duplicates phrases, keeping first-seen order.
func NewRules(phrases []string) *Rules {
	seen := make(map[string]struct{}, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return &Rules{phrases: out}
}

// DefaultRules compiles DefaultPhrases.
func DefaultRules() *Rules { return NewRules(DefaultPhrases) }

// rulesFile is the YAML layout:
//
//	phrases:
//	  - suicide
//	categories:
//	  abuse: [abuse, assault]
type rulesFile struct {
	Phrases    []string            `yaml:"phrases"`
	Categories map[string][]string `yaml:"categories"`
}

// LoadRules reads a YAML phrase file. An empty path yields DefaultRules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read moderation rules: %w", err)
	}
	return ParseRules(b)
}

// ParseRules decodes YAML phrase rules.
func ParseRules(b []byte) (*Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse moderation rules: %w", err)
	}

	phrases := append([]string(nil), f.Phrases...)
	names := make([]string, 0, len(f.Categories))
	for name := range f.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		phrases = append(phrases, f.Categories[name]...)
	}

	r := NewRules(phrases)
	if len(r.phrases) == 0 {
		return nil, fmt.Errorf("parse moderation rules: no phrases")
	}
	return r, nil
}

// Phrases returns a copy of the compiled phrases.
func (r *Rules) Phrases() []string {
	return append([]string(nil), r.phrases...)
}

// Findings lists matched phrases per field.
type Findings struct {
	Message  []string
	Response []string
}

// Flagged reports whether anything matched.
func (f Findings) Flagged() bool {
	return len(f.Message) > 0 || len(f.Response) > 0
}

// Reason renders the findings, e.g.
// "User message contained: want to die; AI response contained: go to hell".
func (f Findings) Reason() string {
	parts := make([]string, 0, 2)
	if len(f.Message) > 0 {
		parts = append(parts, "User message contained: "+strings.Join(f.Message, ", "))
	}
	if len(f.Response) > 0 {
		parts = append(parts, "AI response contained: "+strings.Join(f.Response, ", "))
	}
	return strings.Join(parts, "; ")
}

// Scan matches message and, when present, response against the phrases.
func (r *Rules) Scan(message string, response *string) Findings {
	var f Findings
	if r == nil {
		return f
	}
	f.Message = r.match(message)
	if response != nil {
		f.Response = r.match(*response)
	}
	return f
}

func (r *Rules) match(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var out []string
	for _, p := range r.phrases {
		if strings.Contains(lower, p) {
			out = append(out, p)
		}
	}
	return out
}
