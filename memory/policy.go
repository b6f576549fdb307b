package memory

import (
	"fmt"
	"strings"
	"unicode"
)

// IngestPolicy decides whether a user turn is worth remembering.
type IngestPolicy interface {
	Name() string
	ShouldStore(text string) bool
}

// StoreAll keeps every turn. This is the default policy.
type StoreAll struct{}

func (StoreAll) Name() string { return "all" }

func (StoreAll) ShouldStore(string) bool { return true }

// DefaultMarkers are phrases that usually introduce a personal fact.
// Matching is on whole words after lowercasing and stripping punctuation.
var DefaultMarkers = []string{
	"my",
	"i am",
	"i'm",
	"im",
	"i have",
	"i like",
	"i love",
	"i hate",
	"i live",
	"i work",
	"i prefer",
	"remember",
	"favorite",
	"favourite",
	"name is",
	"birthday",
	"allergic",
}

// KeywordPolicy keeps only turns that contain a personal-fact marker.
type KeywordPolicy struct {
	Markers []string
}

// NewKeywordPolicy returns a KeywordPolicy using DefaultMarkers.
func NewKeywordPolicy() *KeywordPolicy {
	return &KeywordPolicy{Markers: DefaultMarkers}
}

func (p *KeywordPolicy) Name() string { return "keyword" }

func (p *KeywordPolicy) ShouldStore(text string) bool {
	padded := " " + normalizeWords(text) + " "
	for _, marker := range p.Markers {
		if strings.Contains(padded, " "+marker+" ") {
			return true
		}
	}
	return false
}

// normalizeWords lowercases text and collapses anything that is not a
// letter, digit or apostrophe into single spaces.
func normalizeWords(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == '\'' || r == '’':
			return '\''
		default:
			return ' '
		}
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (IngestPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all":
		return StoreAll{}, nil
	case "keyword":
		return NewKeywordPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown ingest policy %q (want all or keyword)", name)
	}
}
