package engine

import (
	"strconv"
	"strings"

	"github.com/relcore/engine/internal/record"
	"github.com/relcore/engine/internal/relerr"
)

// Kind names one of spec.md §6's abstract statement families.
type Kind string

const (
	KindShowDatabases Kind = "ShowDatabases"
	KindShowTables    Kind = "ShowTables"
	KindCreateDatabase Kind = "CreateDatabase"
	KindDropDatabase  Kind = "DropDatabase"
	KindUseDatabase   Kind = "UseDatabase"
	KindCreateTable   Kind = "CreateTable"
	KindDropTable     Kind = "DropTable"
	KindDesc          Kind = "Desc"
	KindInsert        Kind = "Insert"
	KindSelect        Kind = "Select"
	KindUpdate        Kind = "Update"
	KindDelete        Kind = "Delete"
	KindCreateIndex   Kind = "CreateIndex"
	KindDropIndex     Kind = "DropIndex"

	KindAlterAddColumn      Kind = "AlterAddColumn"
	KindAlterDropColumn     Kind = "AlterDropColumn"
	KindAlterChangeColumn   Kind = "AlterChangeColumn"
	KindAlterRenameTable    Kind = "AlterRenameTable"
	KindAlterAddPrimaryKey  Kind = "AlterAddPrimaryKey"
	KindAlterDropPrimaryKey Kind = "AlterDropPrimaryKey"
	KindAlterAddForeignKey  Kind = "AlterAddForeignKey"
	KindAlterDropForeignKey Kind = "AlterDropForeignKey"
)

// Statement is the Go struct standing in for the external parser's AST
// node (SPEC_FULL §4.13): the engine dispatches on Kind and never
// parses SQL text itself.
type Statement struct {
	Kind     Kind
	Database string
	Table    string

	Columns []record.ColumnDescriptor // CreateTable
	Rows    []record.Record           // Insert

	// Where is supplied by the external executor; the engine only walks
	// rows it selects (spec §1 Non-goals: no WHERE-clause evaluation
	// here).
	Where func(record.Record) bool

	Set map[uint32]record.ColumnData // Update, keyed by column ordinal

	IndexColumn string // CreateIndex / DropIndex

	// Alter family (SPEC_FULL §4.13 "Alter"). Columns[0] carries the new
	// column descriptor for AlterAddColumn/AlterChangeColumn.
	Column       string   // AlterDropColumn/AlterChangeColumn: existing name; AlterAddForeignKey/AlterDropForeignKey: referencing column
	ColumnNames  []string // AlterAddPrimaryKey: columns forming the new primary key
	NewTable     string   // AlterRenameTable
	ForeignTable string   // AlterAddForeignKey: referenced table
}

// Result is the outcome of executing one Statement (spec.md §6).
type Result struct {
	Rows    []record.Record
	Message string
	Error   error
}

// Execute dispatches stmt against c. Io and Invariant failures are
// fatal for the process (spec §7 "reported at process scope"): Execute
// catches exactly those two relerr.Kinds at this single boundary,
// whether raised as a panic or returned as an error, and turns them
// into a fatal log line and process exit rather than a Result.Error,
// matching SPEC_FULL §4.10. Every other error kind (Catalog,
// Constraint, Type, Codec) comes back as Result.Error.
func (c *Context) Execute(stmt Statement) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && relerr.IsFatal(err) {
				c.log.Fatal().Err(err).Str("statement", string(stmt.Kind)).Msg("fatal storage engine error")
			}
			panic(r)
		}
		if relerr.IsFatal(result.Error) {
			c.log.Fatal().Err(result.Error).Str("statement", string(stmt.Kind)).Msg("fatal storage engine error")
		}
	}()

	switch stmt.Kind {
	case KindShowDatabases:
		names, err := c.ShowDatabases()
		return rowsResult(names, err)
	case KindShowTables:
		names, err := c.ShowTables()
		return rowsResult(names, err)
	case KindCreateDatabase:
		return Result{Error: c.CreateDatabase(stmt.Database)}
	case KindDropDatabase:
		return Result{Error: c.DropDatabase(stmt.Database)}
	case KindUseDatabase:
		return Result{Error: c.UseDatabase(stmt.Database)}
	case KindCreateTable:
		return Result{Error: c.CreateTable(stmt.Table, stmt.Columns)}
	case KindDropTable:
		return Result{Error: c.DropTable(stmt.Table)}
	case KindDesc:
		rows, err := c.Desc(stmt.Table)
		if err != nil {
			return Result{Error: err}
		}
		return Result{Message: descSummary(rows)}
	case KindInsert:
		return Result{Error: c.Insert(stmt.Table, stmt.Rows)}
	case KindSelect:
		rows, err := c.Select(stmt.Table, stmt.Where)
		return Result{Rows: rows, Error: err}
	case KindUpdate:
		n, err := c.Update(stmt.Table, stmt.Where, stmt.Set)
		return Result{Message: countMessage(n), Error: err}
	case KindDelete:
		n, err := c.Delete(stmt.Table, stmt.Where)
		return Result{Message: countMessage(n), Error: err}
	case KindCreateIndex:
		return Result{Error: c.CreateIndex(stmt.Table, stmt.IndexColumn)}
	case KindDropIndex:
		return Result{Error: c.DropIndex(stmt.Table, stmt.IndexColumn)}
	case KindAlterAddColumn:
		var col record.ColumnDescriptor
		if len(stmt.Columns) > 0 {
			col = stmt.Columns[0]
		}
		return Result{Error: c.AlterAddColumn(stmt.Table, col)}
	case KindAlterDropColumn:
		return Result{Error: c.AlterDropColumn(stmt.Table, stmt.Column)}
	case KindAlterChangeColumn:
		var col record.ColumnDescriptor
		if len(stmt.Columns) > 0 {
			col = stmt.Columns[0]
		}
		return Result{Error: c.AlterChangeColumn(stmt.Table, stmt.Column, col)}
	case KindAlterRenameTable:
		return Result{Error: c.AlterRenameTable(stmt.Table, stmt.NewTable)}
	case KindAlterAddPrimaryKey:
		return Result{Error: c.AlterAddPrimaryKey(stmt.Table, stmt.ColumnNames)}
	case KindAlterDropPrimaryKey:
		return Result{Error: c.AlterDropPrimaryKey(stmt.Table)}
	case KindAlterAddForeignKey:
		return Result{Error: c.AlterAddForeignKey(stmt.Table, stmt.Column, stmt.ForeignTable)}
	case KindAlterDropForeignKey:
		return Result{Error: c.AlterDropForeignKey(stmt.Table, stmt.Column)}
	default:
		return Result{Error: relerr.New(relerr.Syntax, "engine.Execute", "unknown statement kind: "+string(stmt.Kind))}
	}
}

// rowsResult renders a name list (ShowDatabases/ShowTables) as a
// Result.Message — these statements return identifiers, not typed
// rows, so there's no Record shape to put them in.
func rowsResult(names []string, err error) Result {
	if err != nil {
		return Result{Error: err}
	}
	return Result{Message: strings.Join(names, ", ")}
}

func descSummary(rows []DescRow) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		s := r.Field + " " + r.Type
		if r.Key != "" {
			s += " " + r.Key
		}
		parts[i] = s
	}
	return strings.Join(parts, "; ")
}

func countMessage(n int) string {
	if n == 1 {
		return "1 row affected"
	}
	return strconv.Itoa(n) + " rows affected"
}
