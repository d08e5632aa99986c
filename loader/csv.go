package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

func readCSV(r io.Reader, opts Options) (value.Value, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return value.TableVal(table.Empty(nil)), nil
	}
	if err != nil {
		return value.Null(), fmt.Errorf("cannot read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	b := table.NewBuilder(columns)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return value.Null(), fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) > len(columns) {
			return value.Null(), fmt.Errorf("line %d: %d fields, header has %d", line, len(record), len(columns))
		}
		cells := make([]table.Cell, len(record))
		for i, s := range record {
			cells[i] = parseCell(strings.TrimSpace(s))
		}
		b.AddRow(cells)
	}
	t, err := b.Build()
	if err != nil {
		return value.Null(), err
	}
	return value.TableVal(t), nil
}

// parseCell infers the type of a CSV field.
func parseCell(s string) table.Cell {
	if s == "" || strings.EqualFold(s, "null") {
		return table.Null()
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return table.IntVal(v)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return table.FloatVal(v)
	}
	switch strings.ToLower(s) {
	case "true":
		return table.BoolVal(true)
	case "false":
		return table.BoolVal(false)
	}
	return table.StrVal(s)
}

func writeCSV(w io.Writer, v value.Value, opts Options) error {
	t, err := tableOf(v)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if opts.IncludeHeader {
		if err := cw.Write(t.Columns()); err != nil {
			return err
		}
	}
	record := make([]string, t.NumCols())
	for i := 0; i < t.NumRows(); i++ {
		for j, c := range t.Row(i) {
			record[j] = csvField(c)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvField(c table.Cell) string {
	switch c.Type {
	case table.CellNull:
		return ""
	case table.CellList, table.CellOpaque:
		return value.FromCell(c).String()
	}
	return c.AsString()
}
