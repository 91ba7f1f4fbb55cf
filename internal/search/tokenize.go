package search

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"
)

// Mode selects how query words are compared against page content.
type Mode string

const (
	// ModeSubstring matches a word anywhere in the content, case-insensitively.
	ModeSubstring Mode = "substring"
	// ModeWord matches whole tokens, case-insensitively.
	ModeWord Mode = "word"
	// ModeStem matches English snowball stems of tokens.
	ModeStem Mode = "stem"
)

// ParseMode validates a configured mode name. Empty selects ModeSubstring.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeSubstring, nil
	case ModeSubstring, ModeWord, ModeStem:
		return m, nil
	default:
		return "", fmt.Errorf("unknown search mode %q (want substring, word or stem)", s)
	}
}

// normalize collapses every whitespace run to a single space.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// tokens splits lowercase text on anything that is not a letter or digit.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stem(w string) string { return english.Stem(w, true) }

// matcher decides whether one query word occurs in a page.
type matcher interface {
	contains(word string) bool
}

type substringMatcher struct {
	lower string
}

func (m substringMatcher) contains(word string) bool {
	return strings.Contains(m.lower, strings.ToLower(word))
}

// tokenMatcher matches when every token of the query word is present.
type tokenMatcher struct {
	set      map[string]struct{}
	stemming bool
}

func newTokenMatcher(content string, stemming bool) tokenMatcher {
	set := make(map[string]struct{})
	for _, tok := range tokens(content) {
		if stemming {
			tok = stem(tok)
		}
		set[tok] = struct{}{}
	}
	return tokenMatcher{set: set, stemming: stemming}
}

func (m tokenMatcher) contains(word string) bool {
	toks := tokens(word)
	if len(toks) == 0 {
		return false
	}
	for _, tok := range toks {
		if m.stemming {
			tok = stem(tok)
		}
		if _, ok := m.set[tok]; !ok {
			return false
		}
	}
	return true
}

func newMatcher(mode Mode, normalized string) matcher {
	switch mode {
	case ModeWord:
		return newTokenMatcher(normalized, false)
	case ModeStem:
		return newTokenMatcher(normalized, true)
	default:
		return substringMatcher{lower: strings.ToLower(normalized)}
	}
}
