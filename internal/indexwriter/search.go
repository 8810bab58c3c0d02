package indexwriter

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage"
	"github.com/kvquery/kvquery/internal/tokenize"
	"github.com/kvquery/kvquery/internal/value"
)

type tokenKey struct {
	position int
	word     string
}

// updateSearchIndexes implements 4.6 step 2: for each search-indexed
// column, diff old vs new tokens by (position, normalized) identity
// against the stored content hash, and apply only the delta to the
// exact/fuzzy index records.
func (w *Writer) updateSearchIndexes(ctx context.Context, td *schema.TableDescriptor, pk interface{}, newRow value.Row) error {
	for col, sc := range td.SearchColumns {
		text, _ := newRow[col].(string)
		tokensTable := schema.SearchTokensTable(td.Name, col)

		existing, err := w.Adapter.Read(ctx, tokensTable, pk)
		hasExisting := err == nil
		if err != nil && err != storage.ErrNotFound && err != storage.ErrNoTable {
			return err
		}

		newHash := contentHash(text)
		if hasExisting {
			if oldHash, _ := existing["contentHash"].(string); oldHash == newHash {
				continue // unchanged content, nothing to diff
			}
		} else if text == "" {
			continue // no prior record and nothing to index
		}

		pipeline := tokenize.NewPipeline(w.pipelineMode(sc.Mode))
		newTokens, _ := pipeline.Tokenize(col, text)

		oldTokens := decodeTokenRecord(existing)

		oldSet := make(map[tokenKey]tokenize.Token, len(oldTokens))
		for _, t := range oldTokens {
			oldSet[tokenKey{t.Position, t.Normalized}] = t
		}
		newSet := make(map[tokenKey]tokenize.Token, len(newTokens))
		for _, t := range newTokens {
			newSet[tokenKey{t.Position, t.Normalized}] = t
		}

		for k, t := range oldSet {
			if _, stillPresent := newSet[k]; !stillPresent {
				if err := w.retractToken(ctx, td.Name, col, pk, t); err != nil {
					return err
				}
			}
		}

		if err := w.applyAddedTokens(ctx, td.Name, col, pk, oldSet, newSet, len(newTokens)); err != nil {
			return err
		}

		if len(newTokens) == 0 {
			if hasExisting {
				if err := w.Adapter.Delete(ctx, tokensTable, pk); err != nil {
					return err
				}
			}
			continue
		}

		if _, err := w.Adapter.Write(ctx, tokensTable, pk, encodeTokenRecord(newHash, newTokens)); err != nil {
			return err
		}
	}
	return nil
}

// retractSearchIndexes implements the delete-path inverse: the stored
// token record is authoritative for what must be retracted.
func (w *Writer) retractSearchIndexes(ctx context.Context, td *schema.TableDescriptor, pk interface{}) error {
	for col := range td.SearchColumns {
		tokensTable := schema.SearchTokensTable(td.Name, col)
		existing, err := w.Adapter.Read(ctx, tokensTable, pk)
		if err != nil {
			if err == storage.ErrNotFound || err == storage.ErrNoTable {
				continue
			}
			return err
		}
		for _, t := range decodeTokenRecord(existing) {
			if err := w.retractToken(ctx, td.Name, col, pk, t); err != nil {
				return err
			}
		}
		if err := w.Adapter.Delete(ctx, tokensTable, pk); err != nil {
			return err
		}
	}
	return nil
}

// applyAddedTokens groups tokens newly present in newSet by normalized
// word, builds the row entry {pk, docLen, positions}, and merges it
// into both the exact index (keyed by normalized word) and the fuzzy
// index (keyed by the word's original-form spelling).
func (w *Writer) applyAddedTokens(ctx context.Context, table, col string, pk interface{}, oldSet, newSet map[tokenKey]tokenize.Token, docLen int) error {
	byNormalized := make(map[string][]int)
	originalOf := make(map[string]string)
	for k, t := range newSet {
		if _, already := oldSet[k]; already {
			continue
		}
		byNormalized[t.Normalized] = append(byNormalized[t.Normalized], t.Position)
		originalOf[t.Normalized] = t.Original
	}
	for normalized, positions := range byNormalized {
		exactTable := schema.SearchIndexTable(table, col)
		if err := w.upsertRowEntry(ctx, exactTable, normalized, pk, docLen, positions); err != nil {
			return err
		}
		fuzzyTable := schema.SearchFuzzyIndexTable(table, col)
		if err := w.upsertRowEntry(ctx, fuzzyTable, originalOf[normalized], pk, docLen, positions); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) retractToken(ctx context.Context, table, col string, pk interface{}, t tokenize.Token) error {
	exactTable := schema.SearchIndexTable(table, col)
	if err := w.removeRowEntry(ctx, exactTable, t.Normalized, pk); err != nil {
		return err
	}
	fuzzyTable := schema.SearchFuzzyIndexTable(table, col)
	if err := w.removeRowEntry(ctx, fuzzyTable, t.Original, pk); err != nil {
		return err
	}
	return nil
}

func (w *Writer) upsertRowEntry(ctx context.Context, table, word string, pk interface{}, docLen int, positions []int) error {
	if err := w.Adapter.MakeTable(ctx, table, nil); err != nil {
		return err
	}
	row, err := w.Adapter.Read(ctx, table, word)
	if err != nil {
		if err != storage.ErrNotFound {
			return err
		}
		row = value.Row{"word": word, "rows": []interface{}{}}
	}
	rows, _ := row["rows"].([]interface{})
	out := make([]interface{}, 0, len(rows)+1)
	pkStr := value.Stringify(pk)
	for _, r := range rows {
		entry, ok := r.(map[string]interface{})
		if !ok || value.Stringify(entry["pk"]) != pkStr {
			out = append(out, r)
		}
	}
	posArr := make([]interface{}, len(positions))
	for i, p := range positions {
		posArr[i] = float64(p)
	}
	out = append(out, map[string]interface{}{"pk": pk, "docLen": float64(docLen), "positions": posArr})
	row["rows"] = out
	_, err = w.Adapter.Write(ctx, table, word, row)
	return err
}

func (w *Writer) removeRowEntry(ctx context.Context, table, word string, pk interface{}) error {
	row, err := w.Adapter.Read(ctx, table, word)
	if err != nil {
		if err == storage.ErrNotFound || err == storage.ErrNoTable {
			return nil
		}
		return err
	}
	rows, _ := row["rows"].([]interface{})
	pkStr := value.Stringify(pk)
	out := rows[:0]
	for _, r := range rows {
		entry, ok := r.(map[string]interface{})
		if ok && value.Stringify(entry["pk"]) == pkStr {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return w.Adapter.Delete(ctx, table, word)
	}
	row["rows"] = out
	_, err = w.Adapter.Write(ctx, table, word, row)
	return err
}

func decodeTokenRecord(row value.Row) []tokenize.Token {
	if row == nil {
		return nil
	}
	raw, _ := row["tokens"].([]interface{})
	out := make([]tokenize.Token, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		normalized, _ := m["normalized"].(string)
		original, _ := m["original"].(string)
		pos := 0
		if p, ok := m["position"].(float64); ok {
			pos = int(p)
		}
		out = append(out, tokenize.Token{Original: original, Normalized: normalized, Position: pos})
	}
	return out
}

func encodeTokenRecord(hash string, tokens []tokenize.Token) value.Row {
	out := make([]interface{}, len(tokens))
	for i, t := range tokens {
		out[i] = map[string]interface{}{
			"normalized": t.Normalized,
			"original":   t.Original,
			"position":   float64(t.Position),
		}
	}
	return value.Row{"contentHash": hash, "tokens": out}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum)
}

// defaultModeFromConfig maps pkg/config's SearchConfig.DefaultMode
// vocabulary onto the tokenizer modes schema.SearchColumn.Mode itself
// uses. "stem+metaphone" names ModeEnglish, which applies both passes.
func defaultModeFromConfig(defaultMode string) tokenize.Mode {
	switch defaultMode {
	case "raw":
		return tokenize.ModeRaw
	case "stem":
		return tokenize.ModeEnglishStem
	case "metaphone":
		return tokenize.ModeEnglishMeta
	case "stem+metaphone":
		return tokenize.ModeEnglish
	default:
		return tokenize.ModeRaw
	}
}

// pipelineMode translates col's configured tokenizer mode, falling
// back to w.defaultMode when the column doesn't set one.
func (w *Writer) pipelineMode(m schema.TokenizerMode) tokenize.Mode {
	switch m {
	case schema.TokenizerRaw:
		return tokenize.ModeRaw
	case schema.TokenizerEnglishStem:
		return tokenize.ModeEnglishStem
	case schema.TokenizerEnglishMeta:
		return tokenize.ModeEnglishMeta
	case schema.TokenizerEnglish:
		return tokenize.ModeEnglish
	default:
		return w.defaultMode
	}
}
