package bugreport

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// phrase is one compiled trigger. Devanagari phrases match as literal
// substrings; all others match on word boundaries, case-insensitively.
type phrase struct {
	raw     string
	literal string
	re      *regexp.Regexp
}

func (p phrase) match(text string) bool {
	if p.re == nil {
		return strings.Contains(text, p.literal)
	}
	return p.re.MatchString(text)
}

// Matcher classifies utterances against start and end trigger phrases.
type Matcher struct {
	start []phrase
	end   []phrase
}

// NewMatcher compiles the trigger phrase lists. Blank phrases are skipped.
func NewMatcher(start, end []string) (*Matcher, error) {
	s, err := compile(start)
	if err != nil {
		return nil, err
	}
	e, err := compile(end)
	if err != nil {
		return nil, err
	}
	return &Matcher{start: s, end: e}, nil
}

func compile(raw []string) ([]phrase, error) {
	out := make([]phrase, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if isDevanagari(r) {
			out = append(out, phrase{raw: r, literal: r})
			continue
		}
		words := strings.Fields(r)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		re, err := regexp.Compile(`(?i)` + boundary(r[0]) + strings.Join(words, `\s+`) + boundary(r[len(r)-1]))
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPhrase, r, err)
		}
		out = append(out, phrase{raw: r, re: re})
	}
	return out, nil
}

// boundary anchors a phrase edge only where it is a word character.
func boundary(c byte) string {
	if c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
		return `\b`
	}
	return ""
}

func isDevanagari(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Devanagari) {
			return true
		}
	}
	return false
}

// MatchStart reports whether text contains a start trigger.
func (m *Matcher) MatchStart(text string) bool {
	return matchAny(m.start, text)
}

// MatchEnd reports whether text contains an end trigger.
func (m *Matcher) MatchEnd(text string) bool {
	return matchAny(m.end, text)
}

func matchAny(phrases []phrase, text string) bool {
	for _, p := range phrases {
		if p.match(text) {
			return true
		}
	}
	return false
}
