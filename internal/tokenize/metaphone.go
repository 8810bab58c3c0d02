package tokenize

import "strings"

// Metaphone is a hand-rolled implementation of the classic Metaphone
// phonetic algorithm. No library in the retrieval pack offers
// metaphone folding (grep across the pack turned up zero hits), so
// this is the one tokenizer primitive built on nothing but the
// standard library; see DESIGN.md for that justification.
type Metaphone struct{}

// NewMetaphone returns the default Metaphoner implementation.
func NewMetaphone() *Metaphone { return &Metaphone{} }

// Metaphone folds word to its phonetic key.
func (Metaphone) Metaphone(word string) string {
	return metaphoneKey(word)
}

func isVowel(b byte) bool {
	switch b {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

// metaphoneKey implements a simplified rendering of the original
// Metaphone algorithm: enough of its consonant-reduction rules to fold
// common near-homophones (e.g. "knight"/"night", "phone"/"fone")
// without chasing every documented edge case of the full algorithm.
func metaphoneKey(word string) string {
	if word == "" {
		return ""
	}
	s := strings.ToUpper(word)
	// Keep letters only.
	var clean strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			clean.WriteRune(r)
		}
	}
	s = clean.String()
	if s == "" {
		return ""
	}

	// Initial-letter transformations.
	switch {
	case strings.HasPrefix(s, "KN"), strings.HasPrefix(s, "GN"),
		strings.HasPrefix(s, "PN"), strings.HasPrefix(s, "AE"),
		strings.HasPrefix(s, "WR"):
		s = s[1:]
	case strings.HasPrefix(s, "X"):
		s = "S" + s[1:]
	case strings.HasPrefix(s, "WH"):
		s = "W" + s[2:]
	}

	var out strings.Builder
	n := len(s)
	for i := 0; i < n; i++ {
		c := s[i]
		prev := byte(0)
		if i > 0 {
			prev = s[i-1]
		}
		next := byte(0)
		if i+1 < n {
			next = s[i+1]
		}

		// Drop duplicate consonants.
		if c == prev && c != 'C' {
			continue
		}

		switch c {
		case 'A', 'E', 'I', 'O', 'U':
			if i == 0 {
				out.WriteByte(c)
			}
		case 'B':
			if !(i == n-1 && prev == 'M') {
				out.WriteByte('B')
			}
		case 'C':
			switch {
			case next == 'I' && i+2 < n && s[i+2] == 'A':
				out.WriteByte('X')
			case next == 'H':
				out.WriteByte('X')
				i++
			case next == 'I' || next == 'E' || next == 'Y':
				out.WriteByte('S')
			default:
				out.WriteByte('K')
			}
		case 'D':
			if next == 'G' && i+2 < n && (s[i+2] == 'E' || s[i+2] == 'Y' || s[i+2] == 'I') {
				out.WriteByte('J')
				i += 2
			} else {
				out.WriteByte('T')
			}
		case 'G':
			switch {
			case next == 'H' && !(i+2 < n && isVowel(s[i+2])):
				i++
			case next == 'N':
				// silent in -GN, -GNED
			case next == 'I' || next == 'E' || next == 'Y':
				out.WriteByte('J')
			default:
				out.WriteByte('K')
			}
		case 'H':
			if isVowel(prev) && !isVowel(next) {
				// silent
			} else if prev == 'C' || prev == 'S' || prev == 'P' || prev == 'T' || prev == 'G' {
				// handled by the consonant digraph cases above
			} else {
				out.WriteByte('H')
			}
		case 'K':
			if prev != 'C' {
				out.WriteByte('K')
			}
		case 'P':
			if next == 'H' {
				out.WriteByte('F')
				i++
			} else {
				out.WriteByte('P')
			}
		case 'Q':
			out.WriteByte('K')
		case 'S':
			switch {
			case next == 'H':
				out.WriteByte('X')
				i++
			case next == 'I' && i+2 < n && (s[i+2] == 'O' || s[i+2] == 'A'):
				out.WriteByte('X')
			default:
				out.WriteByte('S')
			}
		case 'T':
			switch {
			case next == 'H':
				out.WriteByte('0')
				i++
			case next == 'I' && i+2 < n && (s[i+2] == 'O' || s[i+2] == 'A'):
				out.WriteByte('X')
			default:
				out.WriteByte('T')
			}
		case 'V':
			out.WriteByte('F')
		case 'W', 'Y':
			if isVowel(next) {
				out.WriteByte(c)
			}
		case 'X':
			out.WriteString("KS")
		case 'Z':
			out.WriteByte('S')
		case 'F', 'J', 'L', 'M', 'N', 'R':
			out.WriteByte(c)
		}
	}

	return out.String()
}
