package schema

import "fmt"

// The core owns these reserved table-name prefixes in the storage
// adapter namespace. No user table may collide with them; callers
// constructing table names by hand should treat them as reserved.

// SecondaryIndexTable returns the reserved table name backing the
// secondary index for table T, column col.
func SecondaryIndexTable(table, column string) string {
	return fmt.Sprintf("_%s_idx_%s", table, column)
}

// SearchIndexTable returns the reserved table name backing the exact
// full-text index for table T, column col.
func SearchIndexTable(table, column string) string {
	return fmt.Sprintf("_%s_search_%s", table, column)
}

// SearchFuzzyIndexTable returns the reserved table name backing the
// fuzzy full-text index for table T, column col.
func SearchFuzzyIndexTable(table, column string) string {
	return fmt.Sprintf("_%s_search_fuzzy_%s", table, column)
}

// SearchTokensTable returns the reserved table name backing the
// per-row token record snapshot for table T, column col.
func SearchTokensTable(table, column string) string {
	return fmt.Sprintf("_%s_search_tokens_%s", table, column)
}

// TrieIndexTable returns the reserved table name backing the
// prefix/trie index for table T, column col. Not one of the four
// prefixes named in the external-interfaces reserved list, but drawn
// from the same `_<T>_<kind>_<col>` convention since trie lookup is
// one more derived index the core owns in the adapter namespace.
func TrieIndexTable(table, column string) string {
	return fmt.Sprintf("_%s_trie_%s", table, column)
}
