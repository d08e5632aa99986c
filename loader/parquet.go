package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

func readParquet(r io.Reader, opts Options) (value.Value, error) {
	var (
		ra   io.ReaderAt
		size int64
	)
	if f, ok := r.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return value.Null(), err
		}
		ra, size = f, stat.Size()
	} else {
		data, err := io.ReadAll(r)
		if err != nil {
			return value.Null(), err
		}
		ra, size = bytes.NewReader(data), int64(len(data))
	}

	pqFile, err := parquet.OpenFile(ra, size)
	if err != nil {
		return value.Null(), fmt.Errorf("cannot open parquet file: %w", err)
	}
	fields := pqFile.Schema().Fields()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name()
	}

	reader := parquet.NewReader(pqFile)
	defer reader.Close()

	b := table.NewBuilder(columns)
	n := 0
	for {
		row := make(map[string]any)
		if err := reader.Read(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return value.Null(), fmt.Errorf("row %d: %w", n, err)
		}
		cells := make([]table.Cell, len(columns))
		for i, col := range columns {
			cells[i] = cellOf(row[col])
		}
		b.AddRow(cells)
		n++
		if opts.MaxRows > 0 && n >= opts.SkipRows+opts.MaxRows {
			break
		}
	}
	t, err := b.Build()
	if err != nil {
		return value.Null(), err
	}
	return value.TableVal(t), nil
}

func parquetNode(typ string) parquet.Node {
	switch typ {
	case "long":
		return parquet.Optional(parquet.Int(64))
	case "double":
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case "boolean":
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	}
	return parquet.Optional(parquet.String())
}

func writeParquet(w io.Writer, v value.Value, _ Options) error {
	t, err := tableOf(v)
	if err != nil {
		return err
	}
	group := make(parquet.Group, t.NumCols())
	types := make(map[string]string, t.NumCols())
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColumnAt(i)
		types[c.Name()] = columnType(c)
		group[c.Name()] = parquetNode(types[c.Name()])
	}
	schema := parquet.NewSchema("row", group)

	// leaf columns are numbered in schema field order, not table order
	fields := schema.Fields()
	cols := make([]*table.Column, len(fields))
	for i, f := range fields {
		cols[i], _ = t.Column(f.Name())
	}

	pw := parquet.NewWriter(w, schema)
	rows := make([]parquet.Row, t.NumRows())
	for r := range rows {
		row := make(parquet.Row, len(cols))
		for i, c := range cols {
			cell := c.Get(r)
			if cell.IsNull() {
				row[i] = parquet.NullValue().Level(0, 0, i)
				continue
			}
			row[i] = parquetValue(cell, types[c.Name()]).Level(0, 1, i)
		}
		rows[r] = row
	}
	if _, err := pw.WriteRows(rows); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}

func parquetValue(c table.Cell, typ string) parquet.Value {
	switch typ {
	case "long":
		return parquet.ValueOf(c.Int)
	case "double":
		f, _ := c.AsFloat()
		return parquet.ValueOf(f)
	case "boolean":
		return parquet.ValueOf(c.Bool)
	}
	return parquet.ValueOf(csvField(c))
}
