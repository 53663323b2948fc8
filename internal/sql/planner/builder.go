package planner

import (
	"fmt"
	"strings"

	"github.com/njudb/njudb"
	"github.com/njudb/njudb/internal/record"
	"github.com/njudb/njudb/internal/sql/parser"
)

// BuildPlan lowers an AST statement into a physical plan. db supplies the
// catalog (schemas, registered indexes); statements that don't need one
// (DDL, INSERT) accept a nil db, which the planner tests rely on.
func BuildPlan(stmt parser.Statement, db *novasql.Database) (Plan, error) {
	switch s := stmt.(type) {
	case *parser.CreateDatabaseStmt:
		return &CreateDatabasePlan{Name: s.Name}, nil
	case *parser.DropDatabaseStmt:
		return &DropDatabasePlan{Name: s.Name}, nil
	case *parser.UseDatabaseStmt:
		return &UseDatabasePlan{Name: s.Name}, nil

	case *parser.CreateTableStmt:
		return buildCreateTablePlan(s)
	case *parser.DropTableStmt:
		return &DropTablePlan{TableName: s.TableName}, nil

	case *parser.InsertStmt:
		return &InsertPlan{TableName: s.TableName, Values: s.Values}, nil
	case *parser.SelectStmt:
		return buildSelectPlan(s, db)
	case *parser.UpdateStmt:
		return buildUpdatePlan(s, db)
	case *parser.DeleteStmt:
		return buildDeletePlan(s, db)

	default:
		return nil, fmt.Errorf("planner: unsupported statement type %T", stmt)
	}
}

func buildCreateTablePlan(s *parser.CreateTableStmt) (Plan, error) {
	var cols []record.Column
	for _, c := range s.Columns {
		colType, err := mapSQLType(c.Type)
		if err != nil {
			return nil, err
		}
		cols = append(cols, record.Column{
			Name:     c.Name,
			Type:     colType,
			Nullable: true, // default
		})
	}
	return &CreateTablePlan{
		TableName: s.TableName,
		Schema:    record.Schema{Cols: cols},
	}, nil
}

func buildSelectPlan(s *parser.SelectStmt, db *novasql.Database) (Plan, error) {
	if s.Where == nil {
		return &SeqScanPlan{TableName: s.TableName}, nil
	}

	schema, haveSchema := tableSchema(db, s.TableName)
	if !haveSchema {
		// No catalog at hand: fall back to a scan with the raw literal.
		v, err := literalValue(s.Where.Value)
		if err != nil {
			return nil, err
		}
		return &SeqScanPlan{TableName: s.TableName, Where: &WhereEq{Column: s.Where.Column, Value: v}}, nil
	}

	where, err := bindWhereEq(schema, s.Where)
	if err != nil {
		return nil, err
	}

	// An equality predicate on an indexed int64 column becomes a point
	// lookup; the executor re-checks the predicate against the heap row.
	if key, ok := where.Value.(int64); ok {
		if base, found := btreeIndexOn(db, s.TableName, where.Column); found {
			return &IndexLookupPlan{
				TableName:     s.TableName,
				IndexFileBase: base,
				Column:        where.Column,
				Key:           key,
				Where:         where,
			}, nil
		}
	}
	return &SeqScanPlan{TableName: s.TableName, Where: where}, nil
}

func buildUpdatePlan(s *parser.UpdateStmt, db *novasql.Database) (Plan, error) {
	schema, haveSchema := tableSchema(db, s.TableName)

	assigns := make([]Assignment, 0, len(s.Assignments))
	for _, a := range s.Assignments {
		v, err := literalValue(a.Value)
		if err != nil {
			return nil, err
		}
		if haveSchema {
			v, err = coerceLiteralToColumn(schema, a.Column, v)
			if err != nil {
				return nil, err
			}
		}
		assigns = append(assigns, Assignment{Column: a.Column, Value: v})
	}

	plan := &UpdatePlan{TableName: s.TableName, Assigns: assigns}
	if s.Where != nil {
		var err error
		if haveSchema {
			plan.Where, err = bindWhereEq(schema, s.Where)
		} else {
			var v any
			v, err = literalValue(s.Where.Value)
			plan.Where = &WhereEq{Column: s.Where.Column, Value: v}
		}
		if err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func buildDeletePlan(s *parser.DeleteStmt, db *novasql.Database) (Plan, error) {
	plan := &DeletePlan{TableName: s.TableName}
	if s.Where == nil {
		return plan, nil
	}

	schema, haveSchema := tableSchema(db, s.TableName)
	if haveSchema {
		where, err := bindWhereEq(schema, s.Where)
		if err != nil {
			return nil, err
		}
		plan.Where = where
		return plan, nil
	}

	v, err := literalValue(s.Where.Value)
	if err != nil {
		return nil, err
	}
	plan.Where = &WhereEq{Column: s.Where.Column, Value: v}
	return plan, nil
}

func mapSQLType(t string) (record.ColumnType, error) {
	switch strings.ToUpper(t) {
	case "INT", "INTEGER":
		return record.ColInt64, nil
	case "TEXT":
		return record.ColText, nil
	case "BOOL", "BOOLEAN":
		return record.ColBool, nil
	default:
		return 0, fmt.Errorf("unsupported column type: %s", t)
	}
}

// literalValue unwraps a literal expression; anything else is rejected
// (expressions are not evaluated in this iteration).
func literalValue(e parser.Expr) (any, error) {
	lit, ok := e.(*parser.LiteralExpr)
	if !ok {
		return nil, fmt.Errorf("planner: only literal expressions are supported, got %T", e)
	}
	return lit.Value, nil
}

// coerceLiteralToColumn checks v against the named column and normalizes
// integer widths to int64.
func coerceLiteralToColumn(schema record.Schema, column string, v any) (any, error) {
	pos := -1
	for i := range schema.Cols {
		if schema.Cols[i].Name == column {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, fmt.Errorf("planner: unknown column %q", column)
	}
	col := schema.Cols[pos]

	if v == nil {
		if !col.Nullable {
			return nil, fmt.Errorf("planner: column %q is NOT NULL", column)
		}
		return nil, nil
	}

	switch col.Type {
	case record.ColInt64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		}
		return nil, fmt.Errorf("planner: column %q expects INT64, got %T", column, v)
	case record.ColText:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("planner: column %q expects TEXT, got %T", column, v)
	case record.ColBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("planner: column %q expects BOOL, got %T", column, v)
	default:
		return nil, fmt.Errorf("planner: column %q has unsupported type %v", column, col.Type)
	}
}

// bindWhereEq resolves a parsed equality predicate against schema,
// coercing the literal to the column's type.
func bindWhereEq(schema record.Schema, w *parser.WhereEq) (*WhereEq, error) {
	v, err := literalValue(w.Value)
	if err != nil {
		return nil, err
	}
	v, err = coerceLiteralToColumn(schema, w.Column, v)
	if err != nil {
		return nil, err
	}
	return &WhereEq{Column: w.Column, Value: v}, nil
}

// tableSchema looks the table's schema up through db's catalog. A nil db,
// unselected database, or unknown table all report ok=false.
func tableSchema(db *novasql.Database, table string) (record.Schema, bool) {
	if db == nil {
		return record.Schema{}, false
	}
	metas, err := db.ListTables()
	if err != nil {
		return record.Schema{}, false
	}
	for _, m := range metas {
		if m != nil && m.Name == table {
			return m.Schema, true
		}
	}
	return record.Schema{}, false
}

// btreeIndexOn reports the file base of a BTree index keyed on column.
func btreeIndexOn(db *novasql.Database, table, column string) (string, bool) {
	if db == nil {
		return "", false
	}
	metas, err := db.ListIndexes(table)
	if err != nil {
		return "", false
	}
	for _, im := range metas {
		if im.Kind == novasql.IndexKindBTree && im.KeyColumn == column {
			return im.FileBase, true
		}
	}
	return "", false
}
