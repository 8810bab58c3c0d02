package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kvquery/kvquery/internal/engine"
	"github.com/kvquery/kvquery/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Register, describe, or drop a table descriptor",
}

var schemaRegisterCmd = &cobra.Command{
	Use:   "register <descriptor.json>",
	Short: "Register a table from a JSON table descriptor file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSchemaRegister(args[0])
	},
}

var schemaDescribeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Print the registered descriptor for a table",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSchemaDescribe(args[0])
	},
}

var schemaDropCmd = &cobra.Command{
	Use:   "drop <table>",
	Short: "Drop a table and forget its registration",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSchemaDrop(args[0])
	},
}

func init() {
	schemaCmd.AddCommand(schemaRegisterCmd, schemaDescribeCmd, schemaDropCmd)
	rootCmd.AddCommand(schemaCmd)
}

func runSchemaRegister(path string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading descriptor: %v\n", err)
		os.Exit(1)
	}
	var td schema.TableDescriptor
	if err := json.Unmarshal(data, &td); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing descriptor: %v\n", err)
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
		fmt.Fprintf(os.Stderr, "error loading existing schemas: %v\n", err)
		os.Exit(1)
	}
	if err := eng.RegisterTable(ctx, &td); err != nil {
		fmt.Fprintf(os.Stderr, "error registering table: %v\n", err)
		os.Exit(1)
	}

	dir := schemaDir(cfg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating schema directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(filepath.Join(dir, td.Name+".json"), data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error saving descriptor: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("registered table %q\n", td.Name)
}

func runSchemaDescribe(table string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
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

	td, ok := eng.Registry.Table(table)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown table %q\n", table)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(td, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error encoding descriptor: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func runSchemaDrop(table string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
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

	if _, err := eng.Execute(ctx, &engine.Query{Action: engine.ActionDrop, Table: table}); err != nil {
		fmt.Fprintf(os.Stderr, "error dropping table: %v\n", err)
		os.Exit(1)
	}

	if err := os.Remove(filepath.Join(schemaDir(cfg), table+".json")); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "error forgetting registration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("dropped table %q\n", table)
}
