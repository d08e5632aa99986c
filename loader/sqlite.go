package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

// splitTable splits "file.db#table" into its path and table name.
func splitTable(path string) (string, string) {
	if i := strings.LastIndexByte(path, '#'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

func sqliteTarget(path string, opts Options) (string, string, error) {
	file, name := splitTable(path)
	if name == "" {
		name = opts.Table
	}
	if name == "" {
		return "", "", fmt.Errorf("no table named: use %s#table", file)
	}
	return file, name, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// readSQLite reads one table. Column selection and row limits are pushed
// into the query.
func readSQLite(path string, opts Options) (value.Value, error) {
	file, name, err := sqliteTarget(path, opts)
	if err != nil {
		return value.Null(), err
	}
	db, err := sql.Open("sqlite", file)
	if err != nil {
		return value.Null(), err
	}
	defer db.Close()

	cols := "*"
	if len(opts.Columns) > 0 {
		quoted := make([]string, len(opts.Columns))
		for i, c := range opts.Columns {
			quoted[i] = quoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s", cols, quoteIdent(name))
	var args []any
	if opts.MaxRows > 0 || opts.SkipRows > 0 {
		limit := -1
		if opts.MaxRows > 0 {
			limit = opts.MaxRows
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.SkipRows)
	}

	rows, err := db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return value.Null(), err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return value.Null(), err
	}
	b := table.NewBuilder(columns)
	dest := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return value.Null(), err
		}
		cells := make([]table.Cell, len(columns))
		for i, x := range dest {
			cells[i] = cellOf(x)
		}
		b.AddRow(cells)
	}
	if err := rows.Err(); err != nil {
		return value.Null(), err
	}
	t, err := b.Build()
	if err != nil {
		return value.Null(), err
	}
	return value.TableVal(t), nil
}

func sqliteType(typ string) string {
	switch typ {
	case "long", "boolean":
		return "INTEGER"
	case "double":
		return "REAL"
	}
	return "TEXT"
}

func writeSQLite(path string, v value.Value, opts Options) error {
	file, name, err := sqliteTarget(path, opts)
	if err != nil {
		return err
	}
	t, err := tableOf(v)
	if err != nil {
		return err
	}
	db, err := sql.Open("sqlite", file)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if opts.Overwrite {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
			return err
		}
	}
	defs := make([]string, t.NumCols())
	marks := make([]string, t.NumCols())
	types := make([]string, t.NumCols())
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColumnAt(i)
		types[i] = columnType(c)
		defs[i] = quoteIdent(c.Name()) + " " + sqliteType(types[i])
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s (set overwrite to replace it): %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()
	args := make([]any, t.NumCols())
	for r := 0; r < t.NumRows(); r++ {
		for i, c := range t.Row(r) {
			args[i] = sqliteArg(c, types[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("row %d: %w", r, err)
		}
	}
	return tx.Commit()
}

func sqliteArg(c table.Cell, typ string) any {
	if c.IsNull() {
		return nil
	}
	switch typ {
	case "long":
		return c.Int
	case "boolean":
		return c.Bool
	case "double":
		f, _ := c.AsFloat()
		return f
	}
	return csvField(c)
}
