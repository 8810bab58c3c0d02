// Package tokenize turns column text into normalized token streams and
// scores rows against a search query, per the tokenizer/scorer
// component of the query engine. The pipeline is: lowercase, strip
// punctuation, collapse whitespace, split on space; then, depending on
// mode, optionally stem and/or metaphone-fold each word.
package tokenize

import (
	"strings"
	"unicode"
)

// Mode selects which normalization stages run on each token after the
// common lowercase/strip/split pipeline.
type Mode string

const (
	ModeRaw         Mode = "raw"
	ModeEnglishStem Mode = "english-stem"
	ModeEnglishMeta Mode = "english-meta"
	ModeEnglish     Mode = "english" // metaphone(stem(word))
)

// Token is one normalized word occurrence within a piece of text.
type Token struct {
	Original   string
	Normalized string
	Position   int
}

// Stemmer reduces a word to its linguistic stem (e.g. Porter
// stemming). Implementations wrap a third-party stemming library.
type Stemmer interface {
	Stem(word string) string
}

// Metaphoner folds a word to a phonetic key so near-homophones match.
type Metaphoner interface {
	Metaphone(word string) string
}

// FuzzyMatcher measures approximate string distance between two
// already-normalized tokens.
type FuzzyMatcher interface {
	Distance(a, b string) int
}

// Tokenizer turns text into a normalized token stream. A user-provided
// Tokenizer may preempt the pipeline for a (column, text) pair; if its
// Tokenize method reports ok=false, callers fall back to the default
// pipeline.
type Tokenizer interface {
	Tokenize(column, text string) (tokens []Token, ok bool)
}

// Pipeline is the default Tokenizer, applying lowercase/strip/split
// followed by the configured Mode's stemming/metaphone stages.
type Pipeline struct {
	Mode       Mode
	Stemmer    Stemmer
	Metaphoner Metaphoner
}

// NewPipeline builds a Pipeline with the default stemmer and
// metaphoner implementations for the given mode.
func NewPipeline(mode Mode) *Pipeline {
	return &Pipeline{
		Mode:       mode,
		Stemmer:    NewPorterStemmer(),
		Metaphoner: NewMetaphone(),
	}
}

// Tokenize implements Tokenizer. It always succeeds (ok=true), since
// it is the fallback pipeline itself.
func (p *Pipeline) Tokenize(column, text string) ([]Token, bool) {
	words := split(normalizeWhitespaceAndPunct(text))
	out := make([]Token, 0, len(words))
	for i, w := range words {
		if w == "" {
			continue
		}
		out = append(out, Token{
			Original:   w,
			Normalized: p.normalize(w),
			Position:   i,
		})
	}
	return out, true
}

func (p *Pipeline) normalize(word string) string {
	switch p.Mode {
	case ModeRaw:
		return word
	case ModeEnglishStem:
		return p.stem(word)
	case ModeEnglishMeta:
		return p.meta(word)
	case ModeEnglish:
		return p.meta(p.stem(word))
	default:
		return word
	}
}

func (p *Pipeline) stem(word string) string {
	if p.Stemmer == nil {
		return word
	}
	return p.Stemmer.Stem(word)
}

func (p *Pipeline) meta(word string) string {
	if p.Metaphoner == nil {
		return word
	}
	return p.Metaphoner.Metaphone(word)
}

// normalizeWhitespaceAndPunct lowercases text, strips punctuation,
// tabs and newlines, and collapses runs of whitespace to single
// spaces.
func normalizeWhitespaceAndPunct(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastWasSpace := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastWasSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
			}
		default:
			// drop anything else (control chars, symbols)
		}
	}
	return strings.TrimSpace(b.String())
}

func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, " ")
}
