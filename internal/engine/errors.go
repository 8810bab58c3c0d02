package engine

import "fmt"

// SchemaError is a fatal schema-misuse failure: unknown action,
// join+orm in the same query, more than one of {where, range, trie},
// or join/orm/trie on an instance table. It is surfaced to the caller
// with no partial effects committed.
type SchemaError struct {
	Op     string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("engine: schema misuse in %s: %s", e.Op, e.Reason)
}

// AdapterError wraps a failure returned by the underlying
// storage.Adapter, keeping the failing table and operation for
// diagnostics.
type AdapterError struct {
	Table string
	Op    string
	Err   error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("engine: adapter error in %s on %s: %v", e.Op, e.Table, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
