// Package schema describes user tables, their derived indexes, view
// projections, and ORM relationships, and registers them in a
// process-wide Registry that every other component consults.
package schema

import "fmt"

// TokenizerMode selects how a search-indexed column's text is
// normalized before indexing.
type TokenizerMode string

const (
	TokenizerRaw         TokenizerMode = "raw"
	TokenizerEnglish     TokenizerMode = "english"
	TokenizerEnglishStem TokenizerMode = "english-stem"
	TokenizerEnglishMeta TokenizerMode = "english-meta"
)

// ViewMode controls what happens to a projected column when its
// reference disappears: LIVE nulls it out, GHOST keeps the last
// known value.
type ViewMode string

const (
	ViewLive  ViewMode = "LIVE"
	ViewGhost ViewMode = "GHOST"
)

// Arity describes whether an ORM relationship column holds a single
// foreign key or an array of them.
type Arity string

const (
	ArityArray  Arity = "array"
	ArityScalar Arity = "single"
)

// ColumnDescriptor describes one column of a table.
type ColumnDescriptor struct {
	Name    string
	Type    string
	Default interface{}
}

// SearchColumn configures full-text indexing for one column.
type SearchColumn struct {
	Boost float64
	Mode  TokenizerMode
}

// ColumnMapping copies a column from the referenced row under the
// same or a different local name.
type ColumnMapping struct {
	SourceColumn string
	LocalColumn  string
}

// ViewDefinition projects columns from another table into this one,
// keyed by a local foreign-key column.
type ViewDefinition struct {
	SourceTable string
	PKColumn    string
	Columns     []ColumnMapping
	Mode        ViewMode
}

// RemoteView records that some other table projects from this one, so
// the view projector's "remote" direction can find it without scanning
// every table on every write.
type RemoteView struct {
	Table    string
	PKColumn string
}

// ORMRelation is one directed half of a symmetric ORM edge:
// thisTable.ThisColumn <-> FromTable.FromColumn.
type ORMRelation struct {
	ThisColumn string
	ThisArity  Arity
	FromTable  string
	FromColumn string
	FromArity  Arity
}

// TableDescriptor is the full schema of one user table.
type TableDescriptor struct {
	Name            string
	PKColumn        string
	PKNumeric       bool
	Columns         []ColumnDescriptor
	SecondaryIndex  map[string]bool
	SearchColumns   map[string]SearchColumn
	Views           map[string]ViewDefinition // keyed by PKColumn
	RemoteViews     []RemoteView
	ORMRelations    []ORMRelation
	TrieColumns     map[string]bool
}

// NewTableDescriptor creates an empty descriptor for the given table
// and primary key.
func NewTableDescriptor(name, pkColumn string, pkNumeric bool) *TableDescriptor {
	return &TableDescriptor{
		Name:           name,
		PKColumn:       pkColumn,
		PKNumeric:      pkNumeric,
		SecondaryIndex: make(map[string]bool),
		SearchColumns:  make(map[string]SearchColumn),
		Views:          make(map[string]ViewDefinition),
		TrieColumns:    make(map[string]bool),
	}
}

// HasColumn reports whether name is a declared column.
func (t *TableDescriptor) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Registry holds every registered table descriptor for a connected
// engine instance. It is the "single context object" piece of process
// state named in the design notes: construct-on-connect,
// teardown-on-destroy, passed explicitly rather than hidden behind a
// package-level singleton.
type Registry struct {
	tables map[string]*TableDescriptor
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*TableDescriptor)}
}

// Register adds a table descriptor to the registry. It rejects a
// registration that would introduce a cycle in the view-projection
// graph (A projects from B, B projects from A, ...): the projector
// runs one hop per write and only converges on an acyclic graph.
func (r *Registry) Register(td *TableDescriptor) error {
	if td == nil {
		return fmt.Errorf("schema: nil table descriptor")
	}
	if td.Name == "" {
		return fmt.Errorf("schema: table descriptor missing name")
	}

	next := make(map[string]*TableDescriptor, len(r.tables)+1)
	for k, v := range r.tables {
		next[k] = v
	}
	next[td.Name] = td

	if cycle := detectViewCycle(next); cycle != "" {
		return fmt.Errorf("schema: view projection cycle detected: %s", cycle)
	}

	r.tables = next

	// Maintain inverse RemoteViews links for every view registered so
	// the "remote" projector direction does not need to scan all
	// tables to find who projects from it.
	for _, view := range td.Views {
		src, ok := r.tables[view.SourceTable]
		if !ok {
			continue
		}
		already := false
		for _, rv := range src.RemoteViews {
			if rv.Table == td.Name && rv.PKColumn == view.PKColumn {
				already = true
				break
			}
		}
		if !already {
			src.RemoteViews = append(src.RemoteViews, RemoteView{Table: td.Name, PKColumn: view.PKColumn})
		}
	}

	return nil
}

// Table looks up a registered table descriptor.
func (r *Registry) Table(name string) (*TableDescriptor, bool) {
	td, ok := r.tables[name]
	return td, ok
}

// Tables returns every registered table descriptor, unordered.
func (r *Registry) Tables() []*TableDescriptor {
	out := make([]*TableDescriptor, 0, len(r.tables))
	for _, td := range r.tables {
		out = append(out, td)
	}
	return out
}

// detectViewCycle walks the view-projection graph (table -> tables it
// views from) looking for a cycle. Returns a description of the first
// cycle found, or "" if the graph is acyclic.
func detectViewCycle(tables map[string]*TableDescriptor) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tables))

	var visit func(name string, path []string) string
	visit = func(name string, path []string) string {
		switch color[name] {
		case gray:
			return fmt.Sprintf("%v -> %s", path, name)
		case black:
			return ""
		}
		color[name] = gray
		path = append(path, name)

		td, ok := tables[name]
		if ok {
			for _, view := range td.Views {
				if cyc := visit(view.SourceTable, path); cyc != "" {
					return cyc
				}
			}
		}
		color[name] = black
		return ""
	}

	for name := range tables {
		if color[name] == white {
			if cyc := visit(name, nil); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}
