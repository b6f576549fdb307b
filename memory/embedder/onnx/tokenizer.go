package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token ids in the bert-base-uncased vocabulary MiniLM ships with.
const (
	clsTokenID = 101
	sepTokenID = 102
	unkTokenID = 100
)

// maxWordChars mirrors the HuggingFace limit; longer words become [UNK].
const maxWordChars = 100

// Tokenizer performs lowercase BERT WordPiece tokenization from a
// HuggingFace tokenizer.json vocabulary.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the vocabulary out of a tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}

	return NewTokenizer(file.Model.Vocab), nil
}

// NewTokenizer creates a tokenizer over an in-memory vocabulary.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Encode tokenizes text into ids wrapped in [CLS] ... [SEP], truncated so
// the result never exceeds maxLen.
func (t *Tokenizer) Encode(text string, maxLen int) []int64 {
	tokens := t.Tokenize(text)
	if limit := maxLen - 2; len(tokens) > limit {
		tokens = tokens[:max(limit, 0)]
	}

	ids := make([]int64, 0, len(tokens)+2)
	ids = append(ids, clsTokenID)
	ids = append(ids, tokens...)
	ids = append(ids, sepTokenID)
	return ids
}

// Tokenize converts text to WordPiece token ids without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

// wordPiece splits word greedily into the longest known subwords.
// A word with any unmatchable remainder maps to a single [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []int64{unkTokenID}
	}

	var ids []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		matched := -1
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				matched = id
				break
			}
		}
		if matched < 0 {
			return []int64{unkTokenID}
		}
		ids = append(ids, int64(matched))
		start = end
	}
	return ids
}

// splitWords splits on whitespace and isolates each punctuation rune as its
// own word, the way BERT's basic tokenizer does.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}
