// Command relcoredb is a demo driver for the engine package: it builds
// Statement values directly (no SQL parser exists) and walks through
// database/table lifecycle, inserts, a foreign key, and a secondary
// index, printing each Result the way the teacher's old demo printed
// each storage engine's output.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relcore/engine/engine"
	"github.com/relcore/engine/internal/config"
	"github.com/relcore/engine/internal/record"
)

func main() {
	root := &cobra.Command{
		Use:   "relcoredb",
		Short: "Run a scripted demo against the relcore storage engine",
		RunE:  runDemo,
	}
	root.Flags().String("data-dir", "", "override the data directory (defaults to config.Load()'s resolution)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relcoredb:", err)
		os.Exit(1)
	}
}

func runDemo(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}

	ctx, err := engine.NewWithDefaultLogger(cfg)
	if err != nil {
		return err
	}
	defer ctx.Close()

	instanceID := uuid.New()
	fmt.Printf("relcoredb instance %s — data dir %s\n\n", instanceID, cfg.DataDir)

	run := func(label string, stmt engine.Statement) engine.Result {
		result := ctx.Execute(stmt)
		fmt.Printf("%-28s", label)
		if result.Error != nil {
			fmt.Printf("ERROR: %v\n", result.Error)
		} else if result.Message != "" {
			fmt.Printf("%s\n", result.Message)
		} else {
			fmt.Printf("%d row(s)\n", len(result.Rows))
		}
		return result
	}

	run("CreateDatabase(shop)", engine.Statement{Kind: engine.KindCreateDatabase, Database: "shop"})
	run("UseDatabase(shop)", engine.Statement{Kind: engine.KindUseDatabase, Database: "shop"})

	customers := []record.ColumnDescriptor{
		{Name: "id", Type: record.TypeInt, IsPrimary: true},
		{Name: "name", Type: record.TypeStr, MaxLen: 64},
	}
	run("CreateTable(customers)", engine.Statement{Kind: engine.KindCreateTable, Table: "customers", Columns: customers})

	orders := []record.ColumnDescriptor{
		{Name: "id", Type: record.TypeInt, IsPrimary: true},
		{Name: "customer_id", Type: record.TypeInt, IsForeign: true, ForeignTableName: "customers"},
		{Name: "total", Type: record.TypeFloat, CanBeNull: true},
	}
	run("CreateTable(orders)", engine.Statement{Kind: engine.KindCreateTable, Table: "orders", Columns: orders})

	run("Desc(customers)", engine.Statement{Kind: engine.KindDesc, Table: "customers"})

	nameCell, err := insertName(ctx, "customers", "Ada Lovelace")
	if err != nil {
		return err
	}
	insertCustomer := engine.Statement{
		Kind:  engine.KindInsert,
		Table: "customers",
		Rows: []record.Record{{Cells: []record.ColumnData{
			record.NewInt(0, 1, false),
			nameCell,
		}}},
	}
	run("Insert(customers)", insertCustomer)

	insertOrder := engine.Statement{
		Kind:  engine.KindInsert,
		Table: "orders",
		Rows: []record.Record{{Cells: []record.ColumnData{
			record.NewInt(0, 100, false),
			record.NewInt(1, 1, false),
			record.NewFloat(2, 42.5, false),
		}}},
	}
	run("Insert(orders)", insertOrder)

	run("CreateIndex(orders.total)", engine.Statement{Kind: engine.KindCreateIndex, Table: "orders", IndexColumn: "total"})

	selectResult := run("Select(customers)", engine.Statement{Kind: engine.KindSelect, Table: "customers"})
	for _, row := range selectResult.Rows {
		fmt.Printf("  customer id=%d\n", row.Cells[0].Int())
	}

	run("DropIndex(orders.total)", engine.Statement{Kind: engine.KindDropIndex, Table: "orders", IndexColumn: "total"})
	run("ShowTables", engine.Statement{Kind: engine.KindShowTables})

	return nil
}

// insertName allocates the string backing a customer's name column
// before the Insert statement is built — the engine's Statement carries
// already-resolved ColumnData cells, not raw Go values, matching
// record.ColumnData's (page, slot) representation for Str cells.
func insertName(ctx *engine.Context, table, name string) (record.ColumnData, error) {
	ptr, err := ctx.InsertTableString(table, name)
	if err != nil {
		return record.ColumnData{}, err
	}
	return record.NewStr(1, ptr.Page, ptr.Slot, false), nil
}
