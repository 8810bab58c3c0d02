package tokenize

import (
	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// PorterStemmer wraps blevesearch/go-porterstemmer's Porter2
// implementation behind the Stemmer interface.
type PorterStemmer struct{}

// NewPorterStemmer returns the default Stemmer implementation.
func NewPorterStemmer() *PorterStemmer { return &PorterStemmer{} }

// Stem reduces word to its Porter stem.
func (PorterStemmer) Stem(word string) string {
	if word == "" {
		return word
	}
	return porterstemmer.StemString(word)
}
