package tokenize

import "sort"

// WordHit records one occurrence of an indexed word, within one
// column, for one row, that matched a query term (exactly or, in fuzzy
// mode, approximately).
type WordHit struct {
	// Word is the indexed word found in the row.
	Word string
	// QueryTerm is the query token this hit matched against; equal to
	// Word in exact mode.
	QueryTerm string
	Positions []int
}

// ColumnMatch accumulates every query-term hit found in one column of
// one row, plus that column's total token count (its "document
// length") needed by the relevance formula.
type ColumnMatch struct {
	DocLen int
	Boost  float64
	Hits   []WordHit
}

// RowMatch accumulates every column's matches for one row, keyed by
// primary key, as built by the row selector's fast-leaf execution
// (4.4.1) while walking search index records.
type RowMatch struct {
	PK      interface{}
	Columns map[string]*ColumnMatch
}

// Location is one (word, positions) pair surfaced to callers via the
// `_locations` SELECT result adornment.
type Location struct {
	Word string   `json:"word"`
	Loc  []int    `json:"loc"`
}

// Scorer computes relevance weights for rows matched by a search leaf,
// per the formula in the tokenizer/scorer component design: sum over
// matched columns of (hit_positions / docLen) + column_boost, plus one
// point per distinct matched token; fuzzy mode adds proximity and
// edit-distance terms; exact multi-term queries require contiguous
// positions.
type Scorer struct {
	Fuzzy   bool
	Matcher FuzzyMatcher
}

// NewScorer builds a Scorer. matcher may be nil when Fuzzy is false.
func NewScorer(fuzzy bool, matcher FuzzyMatcher) *Scorer {
	return &Scorer{Fuzzy: fuzzy, Matcher: matcher}
}

// Score computes the raw relevance score for one row's accumulated
// matches against the query's tokenized terms. queryTerms must be in
// original query order so contiguous-position checking can apply in
// exact multi-term mode.
func (s *Scorer) Score(rm *RowMatch, queryTerms []string) (score float64, locations map[string][]Location, ok bool) {
	if rm == nil || len(rm.Columns) == 0 {
		return 0, nil, false
	}

	locations = make(map[string][]Location)
	distinctTokens := make(map[string]bool)

	for col, cm := range rm.Columns {
		if len(cm.Hits) == 0 {
			continue
		}

		if !s.Fuzzy && len(queryTerms) > 1 {
			if !contiguous(cm.Hits, queryTerms) {
				continue
			}
		}

		hitPositions := 0
		for _, h := range cm.Hits {
			hitPositions += len(h.Positions)
			distinctTokens[h.Word] = true
			locations[col] = append(locations[col], Location{Word: h.Word, Loc: h.Positions})
		}

		docLen := cm.DocLen
		if docLen == 0 {
			docLen = 1
		}
		score += float64(hitPositions)/float64(docLen) + cm.Boost

		if s.Fuzzy && s.Matcher != nil {
			score += fuzzyBonus(cm.Hits, s.Matcher)
		}
	}

	if len(locations) == 0 {
		return 0, nil, false
	}

	score += float64(len(distinctTokens))
	return score, locations, true
}

// fuzzyBonus adds the proximity and edit-distance terms the scorer
// applies in fuzzy mode: 10/(distance*10) per co-locating pair of
// hits, and 10/(5*levenshtein(term, matched)) per fuzzy hit.
func fuzzyBonus(hits []WordHit, matcher FuzzyMatcher) float64 {
	var bonus float64
	for _, h := range hits {
		d := matcher.Distance(h.QueryTerm, h.Word)
		if d > 0 {
			bonus += 10.0 / (5.0 * float64(d))
		}
	}
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if coLocates(hits[i].Positions, hits[j].Positions) {
				d := matcher.Distance(hits[i].Word, hits[j].Word)
				if d == 0 {
					d = 1
				}
				bonus += 10.0 / (float64(d) * 10.0)
			}
		}
	}
	return bonus
}

func coLocates(a, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y+1 || y == x+1 {
				return true
			}
		}
	}
	return false
}

// contiguous reports whether, for an exact multi-term query, the
// matched hits' positions form a contiguous run matching the query
// term order — e.g. "brown fox" must appear as adjacent tokens, not
// merely co-present anywhere in the column.
func contiguous(hits []WordHit, queryTerms []string) bool {
	byTerm := make(map[string][]int)
	for _, h := range hits {
		byTerm[h.QueryTerm] = append(byTerm[h.QueryTerm], h.Positions...)
	}

	first, ok := byTerm[queryTerms[0]]
	if !ok {
		return false
	}
	for _, start := range first {
		matched := true
		for i := 1; i < len(queryTerms); i++ {
			positions, ok := byTerm[queryTerms[i]]
			if !ok || !containsInt(positions, start+i) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// Normalize scales every score in scores to [0,1] relative to the
// maximum score present, per "after scoring, normalize weights to the
// maximum".
func Normalize(scores map[interface{}]float64) map[interface{}]float64 {
	if len(scores) == 0 {
		return scores
	}
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	out := make(map[interface{}]float64, len(scores))
	if max == 0 {
		for pk := range scores {
			out[pk] = 0
		}
		return out
	}
	for pk, s := range scores {
		out[pk] = s / max
	}
	return out
}

// PassesThreshold implements the comparator semantics on a search
// leaf's right-hand value: "=" selects exact mode and always passes;
// ">X" keeps scores > X; "<X" keeps scores < |X|.
func PassesThreshold(op string, threshold, score float64) bool {
	switch op {
	case ">":
		return score > threshold
	case "<":
		return score < absFloat(threshold)
	default:
		return true
	}
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// SortByScoreDesc returns pks ordered by descending score, for callers
// that want deterministic ordering of search results (ties broken by
// insertion order via a stable sort).
func SortByScoreDesc(pks []interface{}, scores map[interface{}]float64) []interface{} {
	out := make([]interface{}, len(pks))
	copy(out, pks)
	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i]] > scores[out[j]]
	})
	return out
}
