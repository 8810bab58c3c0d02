package api

import (
	"encoding/json"
	"fmt"

	"github.com/kvquery/kvquery/internal/engine"
	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/value"
)

// queryRequest is the JSON shape POST /api/v1/query accepts. It mirrors
// engine.Query field for field, except the expression-valued fields
// (where, having, orm[].where) arrive as json.RawMessage so they can be
// decoded into the concrete *predicate.Leaf / predicate.List / plain
// value the evaluator expects, and table/actionArgs are decoded by
// shape since the engine accepts more than one concrete type for each.
type queryRequest struct {
	Action     string            `json:"action"`
	Table      json.RawMessage   `json:"table"`
	ActionArgs json.RawMessage   `json:"actionArgs"`
	Where      json.RawMessage   `json:"where"`
	Range      []int             `json:"range"`
	Trie       *engine.TrieSpec  `json:"trie"`
	Join       *joinSpecDTO      `json:"join"`
	GroupBy    []engine.OrderColumn `json:"groupBy"`
	OrderBy    []engine.OrderColumn `json:"orderBy"`
	Having     json.RawMessage   `json:"having"`
	Offset     int               `json:"offset"`
	Limit      int               `json:"limit"`
	ORM        []ormSpecDTO      `json:"orm"`
	Comments   []string          `json:"comments"`
	QueryID    string            `json:"queryID"`
}

type joinSpecDTO struct {
	Type  string               `json:"type"`
	Table string               `json:"table"`
	Where engine.JoinCondition `json:"where"`
}

type ormSpecDTO struct {
	Key     string               `json:"key"`
	Select  []string             `json:"select"`
	Where   json.RawMessage      `json:"where"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
	OrderBy []engine.OrderColumn `json:"orderBy"`
}

// toQuery converts the wire request into an engine.Query, decoding
// every expression-valued field.
func (r *queryRequest) toQuery() (*engine.Query, error) {
	where, err := decodeExpr(r.Where)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	having, err := decodeExpr(r.Having)
	if err != nil {
		return nil, fmt.Errorf("having: %w", err)
	}
	table, err := decodeTable(r.Table)
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	actionArgs, err := decodeActionArgs(r.ActionArgs)
	if err != nil {
		return nil, fmt.Errorf("actionArgs: %w", err)
	}

	var join *engine.JoinSpec
	if r.Join != nil {
		join = &engine.JoinSpec{Type: r.Join.Type, Table: r.Join.Table, Where: r.Join.Where}
	}

	var ormSpecs []engine.ORMSpec
	for _, o := range r.ORM {
		w, err := decodeExpr(o.Where)
		if err != nil {
			return nil, fmt.Errorf("orm[%s].where: %w", o.Key, err)
		}
		ormSpecs = append(ormSpecs, engine.ORMSpec{
			Key:     o.Key,
			Select:  o.Select,
			Where:   w,
			Limit:   o.Limit,
			Offset:  o.Offset,
			OrderBy: o.OrderBy,
		})
	}

	return &engine.Query{
		Action:     engine.Action(r.Action),
		Table:      table,
		ActionArgs: actionArgs,
		Where:      where,
		Range:      r.Range,
		Trie:       r.Trie,
		Join:       join,
		GroupBy:    r.GroupBy,
		OrderBy:    r.OrderBy,
		Having:     having,
		Offset:     r.Offset,
		Limit:      r.Limit,
		ORM:        ormSpecs,
		Comments:   r.Comments,
		QueryID:    r.QueryID,
	}, nil
}

// decodeTable accepts either a bare table-name string or a literal
// array of rows (an instance table).
func decodeTable(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, nil
	}
	var rows []value.Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("must be a table name or a row array: %w", err)
	}
	return rows, nil
}

// decodeActionArgs accepts either a row object (upsert) or a string
// array column projection (select).
func decodeActionArgs(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var row value.Row
	if err := json.Unmarshal(raw, &row); err == nil {
		return row, nil
	}
	var cols []string
	if err := json.Unmarshal(raw, &cols); err != nil {
		return nil, fmt.Errorf("must be a row object or a string array: %w", err)
	}
	return cols, nil
}

type leafDTO struct {
	Path  string      `json:"path"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// decodeExpr decodes a where/having/orm-where expression: null, a leaf
// object {path, op, value}, or a list array alternating leaf objects
// with "AND"/"OR" connective strings.
func decodeExpr(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var probe interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	switch probe.(type) {
	case []interface{}:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		list := make(predicate.List, 0, len(items))
		for _, item := range items {
			var s string
			if err := json.Unmarshal(item, &s); err == nil && (s == "AND" || s == "OR") {
				list = append(list, s)
				continue
			}
			leaf, err := decodeLeaf(item)
			if err != nil {
				return nil, err
			}
			list = append(list, leaf)
		}
		return list, nil
	case map[string]interface{}:
		return decodeLeaf(raw)
	default:
		return nil, fmt.Errorf("expected a leaf object or a list array, got %T", probe)
	}
}

func decodeLeaf(raw json.RawMessage) (*predicate.Leaf, error) {
	var dto leafDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, err
	}
	return &predicate.Leaf{Path: dto.Path, Op: dto.Op, Value: dto.Value}, nil
}
