package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kvquery/kvquery/internal/engine"
	"github.com/kvquery/kvquery/internal/predicate"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/pkg/config"
)

var queryFile string

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one query descriptor against the configured storage backend",
	Long: `Read a JSON query descriptor from --file (or stdin), execute it, and
print the result as JSON.

Examples:
  kvquery query --file ./select-users.json
  cat upsert.json | kvquery query`,
	Run: func(cmd *cobra.Command, args []string) {
		runQuery()
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryFile, "file", "f", "", "path to a JSON query descriptor (defaults to stdin)")
	rootCmd.AddCommand(queryCmd)
}

func readQueryDescriptor() ([]byte, error) {
	if queryFile != "" {
		return os.ReadFile(queryFile)
	}
	return io.ReadAll(os.Stdin)
}

type leafDescriptor struct {
	Path  string      `json:"path"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// queryDescriptor is the CLI's JSON query shape. Where accepts either a
// single leaf object or a list array alternating leaves with
// "AND"/"OR" connectives, same as internal/api's wire format.
type queryDescriptor struct {
	Action     string          `json:"action"`
	Table      interface{}     `json:"table"`
	ActionArgs interface{}     `json:"actionArgs"`
	Where      json.RawMessage `json:"where"`
	Range      []int           `json:"range"`
	Offset     int             `json:"offset"`
	Limit      int             `json:"limit"`
}

func decodeCLIExpr(raw json.RawMessage) (interface{}, error) {
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
			var leaf leafDescriptor
			if err := json.Unmarshal(item, &leaf); err != nil {
				return nil, err
			}
			list = append(list, &predicate.Leaf{Path: leaf.Path, Op: leaf.Op, Value: leaf.Value})
		}
		return list, nil
	default:
		var leaf leafDescriptor
		if err := json.Unmarshal(raw, &leaf); err != nil {
			return nil, err
		}
		return &predicate.Leaf{Path: leaf.Path, Op: leaf.Op, Value: leaf.Value}, nil
	}
}

func runQuery() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	data, err := readQueryDescriptor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading query descriptor: %v\n", err)
		os.Exit(1)
	}

	var desc queryDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing query descriptor: %v\n", err)
		os.Exit(1)
	}
	where, err := decodeCLIExpr(desc.Where)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing where clause: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	eng, err := openEngine(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Disconnect(ctx)

	if err := loadRegisteredSchemas(ctx, eng, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error loading schemas: %v\n", err)
		os.Exit(1)
	}

	q := &engine.Query{
		Action:     engine.Action(desc.Action),
		Table:      desc.Table,
		ActionArgs: desc.ActionArgs,
		Where:      where,
		Range:      desc.Range,
		Offset:     desc.Offset,
		Limit:      desc.Limit,
	}

	result, err := eng.Execute(ctx, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query error: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error encoding result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// schemaDir is where `kvquery schema register` persists table
// descriptor JSON files, alongside the storage path, so a later
// `kvquery query` invocation registers the same schema a long-running
// `serve` process would have.
func schemaDir(cfg *config.Config) string {
	base := cfg.Storage.Path
	if base == "" {
		base = "."
	}
	return filepath.Join(filepath.Dir(base), "schemas")
}

// loadRegisteredSchemas re-registers every table descriptor under
// schemaDir(cfg) into eng's registry and storage backend.
func loadRegisteredSchemas(ctx context.Context, eng *engine.Engine, cfg *config.Config) error {
	dir := schemaDir(cfg)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		var td schema.TableDescriptor
		if err := json.Unmarshal(data, &td); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if err := eng.RegisterTable(ctx, &td); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}
	return nil
}
